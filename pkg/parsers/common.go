// Package parsers turns raw scanner output into findings.
package parsers

import (
	"fmt"
	"sort"
	"sync"

	"vigil/internal/models"
)

// Func parses one module's raw output.
type Func func(data []byte) ([]models.Finding, error)

var (
	mu       sync.RWMutex
	registry = map[string]Func{
		"nuclei":   ParseNuclei,
		"nikto":    ParseNikto,
		"zap":      ParseZap,
		"wapiti":   ParseWapiti,
		"sqlmap":   ParseSqlmap,
		"xsstrike": ParseXSStrike,
		"testssl":  ParseTestssl,
		"ffuf":     ParseFfuf,
	}
)

// Get returns the parser registered under name.
func Get(name string) (Func, error) {
	mu.RLock()
	defer mu.RUnlock()

	fn, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("no parser named %q", name)
	}
	return fn, nil
}

// Register adds or replaces a parser.
func Register(name string, fn Func) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
}

func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// cvssForSeverity approximates a CVSS base score for tools that only report
// a severity level.
func cvssForSeverity(s models.Severity) float64 {
	switch s {
	case models.SeverityCritical:
		return 9.5
	case models.SeverityHigh:
		return 7.5
	case models.SeverityMedium:
		return 5.0
	case models.SeverityLow:
		return 3.0
	default:
		return 0.0
	}
}
