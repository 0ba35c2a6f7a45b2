// Package database provides SQLite connectivity for FleetGate's record
// store.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Embedded schema migrations (up/down SQL file pairs)
//   - Transactions for multi-table mutations (device cascade deletes)
//
// All queries use parameterised statements and the database file is
// created with 0600 permissions. The connection pool is capped at one
// connection to match SQLite's single-writer model.
package database
