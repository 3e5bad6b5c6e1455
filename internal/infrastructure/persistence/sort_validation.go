package persistence

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ValidateSortOrder normalizes the sort order to ASC or DESC, defaulting to DESC
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField returns sortField when it is whitelisted, otherwise defaultField
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" || !allowedFields[trimmed] {
		return defaultField
	}
	return trimmed
}

// JournalSortFields contains allowed sort fields for journal entries
var JournalSortFields = map[string]bool{
	"date":        true,
	"created_at":  true,
	"source_type": true,
}

// StockMoveSortFields contains allowed sort fields for stock moves.
// seq alone is only meaningful within one item and location.
var StockMoveSortFields = map[string]bool{
	"move_date":          true,
	"seq":                true,
	"created_at":         true,
	"quantity":           true,
	"total_cost_applied": true,
}

// orderAndPage applies a whitelisted order, a stable id tiebreak and pagination
func orderAndPage(query *gorm.DB, sortBy, sortOrder string, allowed map[string]bool, defaultField string, page, pageSize int) *gorm.DB {
	field := ValidateSortField(sortBy, allowed, defaultField)
	dir := ValidateSortOrder(sortOrder)
	query = query.Order(fmt.Sprintf("%s %s", field, dir)).Order("id " + dir)

	if pageSize > 0 {
		query = query.Limit(pageSize)
		if offset := (page - 1) * pageSize; offset > 0 {
			query = query.Offset(offset)
		}
	}
	return query
}
