package parsers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"vigil/internal/models"
)

// ParseNuclei reads nuclei JSONL output. Lines that are not JSON objects
// are skipped.
func ParseNuclei(data []byte) ([]models.Finding, error) {
	var findings []models.Finding

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		var item NucleiResult
		if err := json.Unmarshal(line, &item); err != nil {
			continue
		}

		title := item.Info.Name
		if title == "" {
			title = "Nuclei Finding"
		}
		description := item.Info.Description
		if description == "" {
			description = "No description available"
		}

		f := models.Finding{
			Severity:    models.ParseSeverity(item.Info.Severity),
			Title:       title,
			Description: description,
			Reference:   models.StringPtr(firstString(item.Info.Reference)),
			CVE:         models.StringPtr(nucleiCVE(item)),
		}
		if item.Info.Classification.CVSSScore > 0 {
			f.CVSSScore = models.Float64Ptr(item.Info.Classification.CVSSScore)
		}
		findings = append(findings, f)
	}

	if err := scanner.Err(); err != nil {
		return findings, fmt.Errorf("read nuclei output: %w", err)
	}
	return findings, nil
}

func nucleiCVE(item NucleiResult) string {
	if cve := firstString(item.Info.Classification.CVEID); cve != "" {
		return strings.ToUpper(cve)
	}
	if strings.Contains(strings.ToUpper(item.TemplateID), "CVE") {
		return strings.ToUpper(item.TemplateID)
	}
	return ""
}

// firstString accepts either a string or a list of strings.
func firstString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
