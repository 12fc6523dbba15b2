package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"vigil/pkg/hub"
	"vigil/pkg/logger"
	"vigil/pkg/runner"
)

// OutputMonitor watches the module output directory while a scan runs and
// turns growth of a module's output file into progress events.
type OutputMonitor struct {
	dir      string
	hub      *hub.Hub
	logger   *logger.Logger
	interval time.Duration
}

func NewOutputMonitor(dir string, h *hub.Hub, log *logger.Logger) *OutputMonitor {
	return &OutputMonitor{
		dir:      dir,
		hub:      h,
		logger:   log,
		interval: 2 * time.Second,
	}
}

type watchedFile struct {
	module   string
	lastSize int64
	pending  bool
}

// Watch follows output files of moduleNames for target until ctx ends. The
// returned channel is closed once the watcher has stopped.
func (m *OutputMonitor) Watch(ctx context.Context, scanID, target string, moduleNames []string) <-chan struct{} {
	done := make(chan struct{})

	watcher, err := m.newWatcher()
	if err != nil {
		m.logger.WithError(err).WithFields(logger.Fields{
			"scan_id": scanID,
			"dir":     m.dir,
		}).Warn("Output monitoring disabled")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		defer watcher.Close()
		m.loop(ctx, watcher, scanID, outputPattern{
			scanID:  runner.SanitizeForFilename(scanID),
			target:  runner.SanitizeForFilename(target),
			modules: moduleNames,
		})
	}()
	return done
}

func (m *OutputMonitor) newWatcher() (*fsnotify.Watcher, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", m.dir, err)
	}
	return watcher, nil
}

func (m *OutputMonitor) loop(ctx context.Context, watcher *fsnotify.Watcher, scanID string, pattern outputPattern) {
	files := make(map[string]*watchedFile)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.flush(scanID, files)
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Remove != 0 {
				delete(files, event.Name)
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			module, ok := pattern.match(filepath.Base(event.Name))
			if !ok {
				continue
			}
			f, exists := files[event.Name]
			if !exists {
				f = &watchedFile{module: module}
				files[event.Name] = f
			}
			f.pending = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.WithError(err).WithFields(logger.Fields{"scan_id": scanID}).Warn("Output watcher error")

		case <-ticker.C:
			m.flush(scanID, files)
		}
	}
}

func (m *OutputMonitor) flush(scanID string, files map[string]*watchedFile) {
	for path, f := range files {
		if !f.pending {
			continue
		}
		f.pending = false

		lines, size, err := countNewLines(path, f.lastSize)
		if err != nil {
			m.logger.WithError(err).WithFields(logger.Fields{
				"scan_id": scanID,
				"file":    path,
			}).Debug("Failed to read module output")
			continue
		}
		f.lastSize = size
		if lines == 0 {
			continue
		}

		m.hub.Publish(scanID, hub.Info(f.module, fmt.Sprintf("%d new line(s) of output", lines)).
			With("file", filepath.Base(path)))
	}
}

// outputPattern recognises output files of one scan, named
// "<module>_<scan_id>_<target>" with the scan ID and target sanitized.
type outputPattern struct {
	scanID  string
	target  string
	modules []string
}

// match reports which module wrote name. Files of other scans never match,
// even for the same target.
func (p outputPattern) match(name string) (string, bool) {
	for _, mod := range p.modules {
		rest, ok := strings.CutPrefix(name, mod+"_"+p.scanID+"_")
		if ok && strings.HasPrefix(rest, p.target) {
			return mod, true
		}
	}
	return "", false
}

// countNewLines counts non-empty lines written after offset. A file that
// shrank is read from the start.
func countNewLines(path string, offset int64) (int, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, offset, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return 0, offset, err
	}
	size := info.Size()
	if size < offset {
		offset = 0
	}
	if size == offset {
		return 0, size, nil
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return 0, offset, err
	}
	data, err := io.ReadAll(io.LimitReader(file, size-offset))
	if err != nil {
		return 0, offset, err
	}

	n := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			n++
		}
	}
	return n, size, nil
}
