// Package store provides the GORM-backed job store.
//
// The store is the only shared mutable resource between workers, so its
// claim path runs inside a single transaction: selecting eligible rows and
// leasing them is one atomic unit. Running the two steps separately under
// concurrent workers double-claims jobs.
//
// Backed by SQLite in the default deployment; any GORM dialect with
// transactional semantics works.
package store
