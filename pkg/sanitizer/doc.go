// Package sanitizer normalizes free-text input before validation and
// storage.
//
// All functions are idempotent. Invalid input degrades to an empty string
// or an empty slice rather than an error; validators decide whether empty
// is acceptable.
//
// Normalization includes:
//   - Display names: collapse whitespace, trim
//   - Service keys: collapse whitespace and underscores to dashes, trim,
//     lowercase, drop punctuation
//   - Slot ids: collapse whitespace, trim; lowercase only when comparing
//   - Item lists: normalize each entry, drop empties and duplicates
package sanitizer
