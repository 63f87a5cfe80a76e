package config

import (
	"os"
	"strings"
)

// LegacyCartItemDedup restores the source system's broad cart-item dedup key
// (tenant, customer, item). Under that key an item materialized once for a
// customer is never materialized again in any future cart. The corrected
// default scopes dedup to (tenant, customer, item, delivery date).
//
// Set via env:
// - LEGACY_CART_ITEM_DEDUP=true
func LegacyCartItemDedup() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("LEGACY_CART_ITEM_DEDUP")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
