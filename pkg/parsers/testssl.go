package parsers

import (
	"encoding/json"
	"fmt"
	"strings"

	"vigil/internal/models"
)

type tlsCheck struct {
	title    string
	severity models.Severity
	cvss     float64
}

// well-known testssl ids get a fixed title and score; everything else keeps
// testssl's own wording.
var knownTLSChecks = map[string]tlsCheck{
	"SSLv2":               {"SSL 2.0 Enabled", models.SeverityCritical, 7.5},
	"SSLv3":               {"SSL 3.0 Enabled (POODLE)", models.SeverityHigh, 3.4},
	"TLS1":                {"TLS 1.0 Enabled", models.SeverityMedium, 5.0},
	"TLS1_1":              {"TLS 1.1 Enabled", models.SeverityMedium, 5.0},
	"heartbleed":          {"Heartbleed Vulnerability", models.SeverityCritical, 7.5},
	"CCS":                 {"OpenSSL CCS Injection Vulnerability", models.SeverityHigh, 6.8},
	"cert_chain_of_trust": {"Invalid Certificate Chain", models.SeverityHigh, 7.4},
}

// ParseTestssl reads testssl.sh --jsonfile output. OK and INFO entries are
// not findings.
func ParseTestssl(data []byte) ([]models.Finding, error) {
	var entries []TestsslEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode testssl report: %w", err)
	}

	var findings []models.Finding
	for _, e := range entries {
		sev := strings.ToUpper(e.Severity)
		if sev == "OK" || sev == "INFO" || sev == "DEBUG" || sev == "" {
			continue
		}

		f := models.Finding{
			Severity:    models.ParseSeverity(sev),
			Title:       e.ID,
			Description: e.Finding,
		}
		if cves := strings.Fields(e.CVE); len(cves) > 0 {
			f.CVE = models.StringPtr(cves[0])
		}
		if check, ok := knownTLSChecks[e.ID]; ok {
			f.Title = check.title
			f.Severity = check.severity
			f.CVSSScore = models.Float64Ptr(check.cvss)
		}
		findings = append(findings, f)
	}

	return findings, nil
}
