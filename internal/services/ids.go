package services

import (
	"time"

	"github.com/google/uuid"
)

// NewScanID returns a sortable, unique scan id: the UTC start time followed
// by eight random hex digits.
func NewScanID(now time.Time) string {
	return now.UTC().Format("20060102-150405") + "-" + uuid.New().String()[:8]
}
