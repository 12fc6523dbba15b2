package parsers

import (
	"fmt"
	"strings"

	"vigil/internal/models"
)

const xssReference = "https://owasp.org/www-community/attacks/xss/"

// ParseXSStrike scans XSStrike's console output.
func ParseXSStrike(data []byte) ([]models.Finding, error) {
	out := string(data)
	lower := strings.ToLower(out)

	var findings []models.Finding

	if strings.Contains(out, "XSS") && strings.Contains(lower, "detected") {
		findings = append(findings, models.Finding{
			Severity:    models.SeverityHigh,
			Title:       "Cross-Site Scripting (XSS) Vulnerability Detected",
			Description: fmt.Sprintf("XSStrike detected %d potential XSS vulnerability points in the target application.", strings.Count(lower, "xss")),
			Reference:   models.StringPtr(xssReference),
			CVSSScore:   models.Float64Ptr(7.5),
		})
	}

	if strings.Contains(lower, "reflected") {
		findings = append(findings, models.Finding{
			Severity:    models.SeverityHigh,
			Title:       "Reflected XSS Vulnerability",
			Description: "Reflected XSS vulnerability detected where user input is immediately returned by the application.",
			Reference:   models.StringPtr(xssReference + "#reflected-xss-attacks"),
			CVSSScore:   models.Float64Ptr(7.0),
		})
	}

	return findings, nil
}
