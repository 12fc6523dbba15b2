package parsers

import (
	"bufio"
	"bytes"
	"strings"

	"vigil/internal/models"
)

const sqlInjectionReference = "https://owasp.org/www-community/attacks/SQL_Injection"

// ParseSqlmap scans sqlmap's console output for injection verdicts.
func ParseSqlmap(data []byte) ([]models.Finding, error) {
	var findings []models.Finding
	lower := strings.ToLower(string(data))

	if strings.Contains(lower, "sqlmap identified the following injection") {
		findings = append(findings, models.Finding{
			Severity:    models.SeverityCritical,
			Title:       "SQL Injection Vulnerability Detected",
			Description: "SQLMap detected SQL injection vulnerabilities in the target application.",
			Reference:   models.StringPtr(sqlInjectionReference),
			CVSSScore:   models.Float64Ptr(9.8),
		})
	}

	if strings.Contains(lower, "parameter") && strings.Contains(lower, "injectable") {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := scanner.Text()
			if strings.Contains(line, "Parameter:") && strings.Contains(strings.ToLower(line), "is vulnerable") {
				findings = append(findings, models.Finding{
					Severity:    models.SeverityHigh,
					Title:       "Injectable Parameter Found",
					Description: strings.TrimSpace(line),
					Reference:   models.StringPtr(sqlInjectionReference),
					CVSSScore:   models.Float64Ptr(8.5),
				})
			}
		}
		if err := scanner.Err(); err != nil {
			return findings, err
		}
	}

	return findings, nil
}
