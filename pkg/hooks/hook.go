// Package hooks runs follow-up work once a scan has finished.
package hooks

import (
	"context"

	"vigil/internal/models"
	"vigil/internal/notification"
)

// Hook is called with the final state of a scan, results included.
type Hook interface {
	Name() string
	OnScanComplete(ctx context.Context, scan *models.Scan) error
}

// Notifier delivers a message somewhere a human will read it.
type Notifier interface {
	Send(msg notification.Message) error
}
