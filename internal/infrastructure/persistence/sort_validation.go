package persistence

import (
	"strings"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns "DESC" as the default if the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	if strings.EqualFold(strings.TrimSpace(orderDir), "asc") {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.ToLower(strings.TrimSpace(sortField))
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// ItemSortFields are the inventory_items columns GET /items may order by
var ItemSortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"title":      true,
	"price":      true,
	"quantity":   true,
	"sku":        true,
	"brand":      true,
}

// orderClause builds a whitelisted ORDER BY with id as the tie breaker so
// paging is stable
func orderClause(field, dir string, allowed map[string]bool, defaultField string) string {
	return ValidateSortField(field, allowed, defaultField) + " " + ValidateSortOrder(dir) + ", id " + ValidateSortOrder(dir)
}
