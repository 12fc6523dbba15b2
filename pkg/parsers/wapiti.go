package parsers

import (
	"encoding/json"
	"fmt"
	"sort"

	"vigil/internal/models"
)

// ParseWapiti reads a wapiti JSON report.
func ParseWapiti(data []byte) ([]models.Finding, error) {
	var report WapitiReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode wapiti report: %w", err)
	}

	// map iteration order is random; keep output stable
	kinds := make([]string, 0, len(report.Vulnerabilities))
	for kind := range report.Vulnerabilities {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	var findings []models.Finding
	for _, kind := range kinds {
		for _, v := range report.Vulnerabilities[kind] {
			severity := wapitiSeverity(v.Level)
			description := v.Info
			if description == "" {
				description = "No description available"
			}

			f := models.Finding{
				Severity:    severity,
				Title:       "Wapiti: " + kind,
				Description: description,
				CVSSScore:   models.Float64Ptr(cvssForSeverity(severity)),
			}
			if len(v.WSTG) > 0 {
				f.Reference = models.StringPtr(v.WSTG[0])
			}
			if len(v.CVE) > 0 {
				f.CVE = models.StringPtr(v.CVE[0])
			}
			findings = append(findings, f)
		}
	}

	return findings, nil
}

func wapitiSeverity(level int) models.Severity {
	switch level {
	case 3:
		return models.SeverityCritical
	case 2:
		return models.SeverityHigh
	case 1:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
