package parsers

import (
	"encoding/json"
	"fmt"

	"vigil/internal/models"
)

// ParseFfuf reads ffuf's JSON output. Every hit becomes a finding; paths
// matching a known sensitive pattern are graded by that pattern, the rest
// are info.
func ParseFfuf(data []byte) ([]models.Finding, error) {
	var out FfufOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode ffuf output: %w", err)
	}

	patterns := DefaultPatterns()

	findings := make([]models.Finding, 0, len(out.Results))
	for _, r := range out.Results {
		f := models.Finding{
			Severity:    models.SeverityInfo,
			Title:       "Discovered Path",
			Description: fmt.Sprintf("%s responded %d (%d bytes)", r.URL, r.Status, r.Length),
			Reference:   models.StringPtr(r.URL),
		}
		if p, ok := DetectSensitivePattern(r.URL, patterns); ok {
			f.Severity = p.Severity
			f.Title = p.Description
		}
		findings = append(findings, f)
	}

	return findings, nil
}
