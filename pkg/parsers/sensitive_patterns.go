package parsers

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"vigil/internal/models"
)

type SensitivePattern struct {
	Pattern     string
	Regex       *regexp.Regexp
	Severity    models.Severity
	Description string
	Category    string
}

// Ordered most specific first; the first match wins.
var defaultPatterns = []SensitivePattern{
	{Pattern: "/actuator/heapdump", Severity: models.SeverityCritical, Description: "Spring Boot Heap Dump", Category: "Configuration"},
	{Pattern: "/actuator/env", Severity: models.SeverityCritical, Description: "Spring Boot Environment Exposure", Category: "Configuration"},
	{Pattern: "/actuator", Severity: models.SeverityHigh, Description: "Spring Boot Actuator", Category: "Configuration"},
	{Pattern: "/.env", Severity: models.SeverityCritical, Description: "Environment Configuration File", Category: "Configuration"},
	{Pattern: "/.git", Severity: models.SeverityCritical, Description: "Git Repository Exposed", Category: "Source"},
	{Pattern: "/.svn", Severity: models.SeverityCritical, Description: "SVN Repository Exposed", Category: "Source"},
	{Pattern: "/.aws/credentials", Severity: models.SeverityCritical, Description: "AWS Credentials File", Category: "Secrets"},
	{Pattern: "/web.config", Severity: models.SeverityCritical, Description: "IIS Web Configuration", Category: "Configuration"},
	{Pattern: "/phpinfo.php", Severity: models.SeverityCritical, Description: "PHP Info Page", Category: "Debug"},
	{Pattern: ".sql", Severity: models.SeverityCritical, Description: "SQL Database Dump", Category: "Backup"},
	{Pattern: "/config.json", Severity: models.SeverityHigh, Description: "JSON Configuration File", Category: "Configuration"},
	{Pattern: "/config.yml", Severity: models.SeverityHigh, Description: "YAML Configuration File", Category: "Configuration"},
	{Pattern: "/application.properties", Severity: models.SeverityHigh, Description: "Application Properties File", Category: "Configuration"},
	{Pattern: "/server-status", Severity: models.SeverityHigh, Description: "Apache Server Status", Category: "Debug"},
	{Pattern: "/phpmyadmin", Severity: models.SeverityHigh, Description: "phpMyAdmin", Category: "Admin"},
	{Pattern: "/admin", Severity: models.SeverityHigh, Description: "Admin Panel", Category: "Admin"},
	{Pattern: "/debug", Severity: models.SeverityHigh, Description: "Debug Endpoint", Category: "Debug"},
	{Pattern: ".bak", Severity: models.SeverityHigh, Description: "Backup File", Category: "Backup"},
	{Pattern: "/swagger", Severity: models.SeverityMedium, Description: "Swagger API Documentation", Category: "Documentation"},
	{Pattern: "/graphql", Severity: models.SeverityMedium, Description: "GraphQL Endpoint", Category: "Documentation"},
	{Pattern: ".zip", Severity: models.SeverityMedium, Description: "Archive File", Category: "Backup"},
}

// LoadSensitivePatterns reads one regular expression per line. Blank lines,
// comments and invalid expressions are skipped.
func LoadSensitivePatterns(filePath string) ([]SensitivePattern, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []SensitivePattern
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		re, err := regexp.Compile(line)
		if err != nil {
			continue
		}

		patterns = append(patterns, SensitivePattern{
			Pattern:     line,
			Regex:       re,
			Severity:    models.SeverityHigh,
			Description: "Custom Pattern Match",
			Category:    "Custom",
		})
	}

	return patterns, scanner.Err()
}

func DefaultPatterns() []SensitivePattern {
	patterns := make([]SensitivePattern, len(defaultPatterns))
	copy(patterns, defaultPatterns)
	for i := range patterns {
		patterns[i].Regex = regexp.MustCompile(regexp.QuoteMeta(patterns[i].Pattern))
	}
	return patterns
}

// DetectSensitivePattern returns the first pattern matching url.
func DetectSensitivePattern(url string, patterns []SensitivePattern) (SensitivePattern, bool) {
	lower := strings.ToLower(url)
	for _, p := range patterns {
		if p.Regex != nil && p.Regex.MatchString(lower) {
			return p, true
		}
	}
	return SensitivePattern{}, false
}
