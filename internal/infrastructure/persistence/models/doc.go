// Package models contains GORM persistence models for domain types that are
// kept free of ORM tags: the outbox entry and the bill documents. Ledger,
// inventory, idempotency, audit and projection types carry their own tags
// and are persisted directly.
package models
