package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ScanLogger archives raw module output and the scan outcome under the
// scan's work directory.
type ScanLogger struct {
	*Logger
	scanID    string
	scanDir   string
	logFile   *os.File
	errorFile *os.File
	mu        sync.Mutex
}

func NewScanLogger(scanID, scanDir string, level logrus.Level) (*ScanLogger, error) {
	if err := os.MkdirAll(scanDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scan directory: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(scanDir, "scan.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create scan log file: %w", err)
	}

	errorFile, err := os.OpenFile(filepath.Join(scanDir, "error.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to create error log file: %w", err)
	}

	header := fmt.Sprintf("\n=== Scan Log Started: %s ===\n", time.Now().Format(time.RFC3339))
	header += fmt.Sprintf("Scan ID: %s\n", scanID)
	header += "==========================================\n\n"
	logFile.WriteString(header)

	base := NewLogger(level)
	base.SetOutput(logFile)

	return &ScanLogger{
		Logger:    base,
		scanID:    scanID,
		scanDir:   scanDir,
		logFile:   logFile,
		errorFile: errorFile,
	}, nil
}

func (sl *ScanLogger) LogError(component string, err error, fields Fields) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if fields == nil {
		fields = Fields{}
	}
	fields["component"] = component
	fields["scan_id"] = sl.scanID

	sl.WithFields(fields).WithError(err).Error("Error occurred")

	sl.errorFile.WriteString(fmt.Sprintf("[%s] [%s] Error in %s: %v\n",
		time.Now().Format(time.RFC3339), sl.scanID, component, err))
}

// LogModuleOutput appends one stream of a module's raw output.
func (sl *ScanLogger) LogModuleOutput(module, stream, output string) {
	if output == "" {
		return
	}

	sl.mu.Lock()
	defer sl.mu.Unlock()

	header := fmt.Sprintf("\n--- [%s] Module: %s (%s) ---\n", time.Now().Format(time.RFC3339), module, stream)
	footer := fmt.Sprintf("--- End %s ---\n\n", module)
	sl.logFile.WriteString(header + output + "\n" + footer)
}

func (sl *ScanLogger) LogScanOutcome(status string, results int, findings int) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	msg := fmt.Sprintf("\n=== SCAN %s: %s ===\n", status, time.Now().Format(time.RFC3339))
	msg += fmt.Sprintf("Scan ID: %s\nResults: %d\nFindings: %d\n", sl.scanID, results, findings)
	msg += "=========================================\n\n"
	sl.logFile.WriteString(msg)
	if status != "success" {
		sl.errorFile.WriteString(msg)
	}
}

func (sl *ScanLogger) Close() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	var errs []error

	if sl.logFile != nil {
		sl.logFile.WriteString(fmt.Sprintf("\n=== Scan Log Ended: %s ===\n", time.Now().Format(time.RFC3339)))
		if err := sl.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close log file: %w", err))
		}
		sl.logFile = nil
	}

	if sl.errorFile != nil {
		if err := sl.errorFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close error file: %w", err))
		}
		sl.errorFile = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing scan logger: %v", errs)
	}

	return nil
}

func (sl *ScanLogger) GetLogFilePath() string {
	return filepath.Join(sl.scanDir, "scan.log")
}

func (sl *ScanLogger) GetErrorLogFilePath() string {
	return filepath.Join(sl.scanDir, "error.log")
}
