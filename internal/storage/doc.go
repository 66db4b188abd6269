// Package storage persists run history.
//
// Drivers:
//   - file: append-only JSON Lines, compacted to the newest records
//   - sqlite: modernc.org/sqlite (pure Go, no cgo)
//
// Driver "none" (or empty) disables persistence; Open then returns a nil Store.
package storage
