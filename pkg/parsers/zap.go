package parsers

import (
	"encoding/json"
	"fmt"

	"vigil/internal/models"
)

var zapRisk = map[string]models.Severity{
	"3": models.SeverityHigh,
	"2": models.SeverityMedium,
	"1": models.SeverityLow,
	"0": models.SeverityInfo,
}

// ParseZap reads a ZAP baseline JSON report.
func ParseZap(data []byte) ([]models.Finding, error) {
	var report ZapReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode zap report: %w", err)
	}

	var findings []models.Finding
	for _, site := range report.Site {
		for _, alert := range site.Alerts {
			severity, ok := zapRisk[alert.RiskCode]
			if !ok {
				severity = models.SeverityInfo
			}

			title := alert.Alert
			if title == "" {
				title = "ZAP Alert"
			}
			description := alert.Desc
			if description == "" {
				description = "No description available"
			}

			var cwe string
			if alert.CWEID != "" && alert.CWEID != "-1" && alert.CWEID != "0" {
				cwe = "CWE-" + alert.CWEID
			}

			findings = append(findings, models.Finding{
				Severity:    severity,
				Title:       title,
				Description: description,
				Reference:   models.StringPtr(alert.Reference),
				CVE:         models.StringPtr(cwe),
			})
		}
	}

	return findings, nil
}
