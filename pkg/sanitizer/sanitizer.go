package sanitizer

import (
	"regexp"
	"strings"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reKeySeparators = regexp.MustCompile(`[\s_]+`)
	reKeyInvalid    = regexp.MustCompile(`[^0-9\p{L}\-.]+`)
	reMultiDash     = regexp.MustCompile(`-+`)
)

func lower(s string) string {
	return strings.ToLower(s)
}

func collapseDashes(s string) string {
	s = reMultiDash.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SanitizeKey turns "  Study Room_2 " into "study-room-2". Service names
// pass through it so catalog lookups match however a client spelled them.
func SanitizeKey(input string) string {
	p := Pipeline{
		strings.TrimSpace,
		lower,
		func(s string) string { return reKeySeparators.ReplaceAllString(s, "-") },
		func(s string) string { return reKeyInvalid.ReplaceAllString(s, "") },
		collapseDashes,
	}
	return p.Apply(input)
}

func SanitizeSlice(values []string, strategy Strategy) []string {
	seen := make(map[string]struct{})
	out := []string{}

	for _, v := range values {
		s := strategy(v)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	return out
}
