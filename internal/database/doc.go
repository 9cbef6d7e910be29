// Package database provides connection pool management for the PostgreSQL
// user store. All ledger-owned state lives on the ledger; Postgres holds only
// user profiles and their identity links.
package database
