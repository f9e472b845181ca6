package sanitizer

import (
	"strings"
	"unicode"
)

func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)

	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool

	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
		} else {
			result.WriteRune(r)
			lastWasSpace = false
		}
	}

	return result.String()
}

// NormalizeDisplayName is used for activity and holder names.
func NormalizeDisplayName(name string) string {
	return TrimAndNormalize(name)
}

// NormalizeSlotID keeps the caller's spelling of a slot id apart from
// surrounding and repeated whitespace.
func NormalizeSlotID(slotID string) string {
	return TrimAndNormalize(slotID)
}

// FoldSlotID is the comparison form of a slot id. Only case and whitespace
// are folded, so "Room  2" and "room 2" match while "Seat A" and "Seat-A"
// stay distinct.
func FoldSlotID(slotID string) string {
	return strings.ToLower(TrimAndNormalize(slotID))
}
