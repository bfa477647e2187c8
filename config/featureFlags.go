package config

import (
	"os"
	"strings"
)

// ReorderAlertsEnabled turns on warn-level logging when a reservation drops a
// product's on-hand stock to or below its reorder level.
//
// Set via env:
// - REORDER_ALERTS=true
func ReorderAlertsEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("REORDER_ALERTS")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
