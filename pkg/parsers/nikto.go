package parsers

import (
	"bufio"
	"bytes"
	"strings"

	"vigil/internal/models"
)

const niktoReference = "https://cirt.net/nikto2"

// ParseNikto reads nikto's plain text report, one finding per "+" line.
func ParseNikto(data []byte) ([]models.Finding, error) {
	var findings []models.Finding

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "+") {
			continue
		}

		description := strings.TrimSpace(line[1:])
		if description == "" {
			continue
		}

		findings = append(findings, models.Finding{
			Severity:    niktoSeverity(description),
			Title:       "Nikto Finding",
			Description: description,
			Reference:   models.StringPtr(niktoReference),
		})
	}

	return findings, scanner.Err()
}

func niktoSeverity(description string) models.Severity {
	lower := strings.ToLower(description)
	for _, kw := range []string{"vulnerability", "exploit", "critical"} {
		if strings.Contains(lower, kw) {
			return models.SeverityHigh
		}
	}
	for _, kw := range []string{"outdated", "misconfiguration", "warning"} {
		if strings.Contains(lower, kw) {
			return models.SeverityMedium
		}
	}
	return models.SeverityInfo
}
