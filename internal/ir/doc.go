// Package ir defines the search-definition types handed to the compilers:
// Matrix, Column and LayerMatch.
//
// All other internal packages that deal with searches import ir; ir imports
// nothing internal. Layer ordering inside a column is not defined here: a
// Column stores layers in a map and callers order them by schema declaration
// order (see Column.LayerIDs).
//
// Key design constraints:
//   - A LayerMatch carries a regular expression XOR a numeric range
//   - JSON and YAML tags use snake_case
//   - Fingerprint hashes RFC 8785 canonical JSON; floats are rendered as
//     strings first so the canonical form never contains a float
package ir
