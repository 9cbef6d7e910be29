// Package model defines the data types shared across the marketplace
// service: telemetry batches, listing views and user profiles. Ledger account
// layouts live with their program packages, not here.
package model
