package marketplace

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// MaxSKULength is the longest SKU eBay accepts for inventory items
const MaxSKULength = 50

var (
	skuDisallowed = regexp.MustCompile(`[^a-zA-Z0-9_/-]`)
	skuDashRun    = regexp.MustCompile(`-+`)
)

// SanitizeSKU rewrites raw into a SKU that marketplaces accept.
// Disallowed characters become dashes, dash runs collapse, and leading or
// trailing dashes and underscores are trimmed. Empty results become "SKU".
func SanitizeSKU(raw string) string {
	s := skuDisallowed.ReplaceAllString(strings.TrimSpace(raw), "-")
	s = skuDashRun.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-_")
	if len(s) > MaxSKULength {
		s = strings.Trim(s[:MaxSKULength], "-_")
	}
	if s == "" {
		return "SKU"
	}
	return s
}

// DefaultSKU derives a stable SKU from the item id
func DefaultSKU(itemID uuid.UUID) string {
	return "ITEM-" + strings.ReplaceAll(itemID.String(), "-", "")[:20]
}
