package models

import "strings"

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

var severityRank = map[Severity]int{
	SeverityCritical: 4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityInfo:     0,
}

// ParseSeverity maps tool-specific spellings onto the five levels.
// Anything unrecognised is info.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "crit":
		return SeverityCritical
	case "high", "error":
		return SeverityHigh
	case "medium", "moderate", "warn", "warning":
		return SeverityMedium
	case "low":
		return SeverityLow
	default:
		return SeverityInfo
	}
}

func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

type Finding struct {
	ID           uint     `gorm:"primaryKey" json:"-"`
	ScanResultID uint     `gorm:"index" json:"-"`
	ScanID       string   `gorm:"type:varchar(64);index" json:"-"`
	Severity     Severity `gorm:"type:varchar(16)" json:"severity"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Reference    *string  `json:"reference,omitempty"`
	CVE          *string  `gorm:"column:cve" json:"cve,omitempty"`
	CVSSScore    *float64 `gorm:"column:cvss_score" json:"cvss_score,omitempty"`
}

// Normalize coerces severity onto the known set and drops a CVSS score
// outside [0,10].
func (f *Finding) Normalize() {
	f.Severity = ParseSeverity(string(f.Severity))
	if f.CVSSScore != nil && (*f.CVSSScore < 0 || *f.CVSSScore > 10) {
		f.CVSSScore = nil
	}
}

// StringPtr returns nil for an empty string.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func Float64Ptr(f float64) *float64 {
	return &f
}
