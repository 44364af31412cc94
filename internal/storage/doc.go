// Package storage is the operator journal and notifier dedup state.
//
// It records subscribe, unsubscribe and price_drop events, and keeps
// suppress-until timestamps so the notifier does not repeat a drop after a
// restart. Nothing here is read back into the subscription store.
//
// Drivers:
//   - "file": jsonl audit log plus a dedup snapshot and journal
//   - "sqlite": a single SQLite database (modernc.org/sqlite, no cgo)
package storage
