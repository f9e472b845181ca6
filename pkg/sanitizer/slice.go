package sanitizer

// NormalizeItems cleans the equipment list attached to a reservation.
func NormalizeItems(items []string) []string {
	return SanitizeSlice(items, TrimAndNormalize)
}
