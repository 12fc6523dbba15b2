package hooks

import (
	"context"
	"sync"
	"time"

	"vigil/internal/models"
	"vigil/internal/notification"
	"vigil/pkg/logger"
)

// NotifierHook posts a summary of every finished scan that produced at
// least one finding at MinSeverity or above.
type NotifierHook struct {
	Client      Notifier
	MinSeverity models.Severity
}

func (n *NotifierHook) Name() string {
	return "notification"
}

func (n *NotifierHook) OnScanComplete(ctx context.Context, scan *models.Scan) error {
	if countAtLeast(scan, n.MinSeverity) == 0 {
		return nil
	}
	return n.Client.Send(notification.ScanSummary(scan))
}

// FindingNotifierHook sends one alert per finding at MinSeverity or above.
type FindingNotifierHook struct {
	Client      Notifier
	MinSeverity models.Severity
	Workers     int
	Delay       time.Duration
	Logger      *logger.Logger
}

func (n *FindingNotifierHook) Name() string {
	return "finding_notifier"
}

type alert struct {
	module  string
	finding models.Finding
}

func (n *FindingNotifierHook) OnScanComplete(ctx context.Context, scan *models.Scan) error {
	workers := n.Workers
	if workers < 1 {
		workers = 3
	}
	log := n.Logger
	if log == nil {
		log = logger.Default()
	}

	alerts := make(chan alert)
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range alerts {
				if err := n.Client.Send(notification.FindingAlert(scan, a.module, a.finding)); err != nil {
					log.WithFields(logger.Fields{
						"scan_id": scan.ScanID,
						"module":  a.module,
						"title":   a.finding.Title,
						"error":   err,
					}).Error("Failed to send finding notification")
				}
				if n.Delay > 0 {
					time.Sleep(n.Delay)
				}
			}
		}()
	}

	var err error
feed:
	for _, r := range scan.Results {
		for _, f := range r.Findings {
			if !f.Severity.AtLeast(n.MinSeverity) {
				continue
			}
			if err = ctx.Err(); err != nil {
				break feed
			}
			select {
			case alerts <- alert{module: r.Module, finding: f}:
			case <-ctx.Done():
				err = ctx.Err()
				break feed
			}
		}
	}

	close(alerts)
	wg.Wait()
	return err
}

func countAtLeast(scan *models.Scan, min models.Severity) int {
	n := 0
	for _, r := range scan.Results {
		for _, f := range r.Findings {
			if f.Severity.AtLeast(min) {
				n++
			}
		}
	}
	return n
}
