// Package ir provides the constrained value types shared by every relq
// package: filter literals, identifier sets, query parameters and result
// rows.
//
// This package imports nothing internal. All other internal packages
// import ir; ir stays the foundational layer with no circular
// dependencies.
//
// Key design constraints:
//   - NO float types anywhere - use int64 for numbers, strings for dates
//   - Canonical JSON (RFC 8785) is the only encoding used for fingerprints
//   - Rows keep column order; IRObject is only for unordered lookups
package ir
