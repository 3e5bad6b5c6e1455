package persistence

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate row-locks the selected rows until the transaction ends.
// SQLite ignores the clause.
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
