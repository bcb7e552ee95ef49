// Package models contains the GORM models for the tables the integrity engine
// reads and corrects. Domain types in internal/domain stay free of GORM tags;
// the ToDomain and ...ModelFromDomain mappers convert between the two.
//
// Files:
// - base.go: shared id, timestamp and version columns
// - catalog.go: items and their unit conversions
// - purchase.go: purchase batches and lines
// - inventory.go: stock ledger, mutations and stock summaries
// - integrity.go: the audit trail
package models
