package models

import "time"

type Status string

const (
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// IsTerminal reports whether a scan in this status can no longer change.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusTimeout
}

type Category string

const (
	CategoryQuick    Category = "quick"
	CategoryDeep     Category = "deep"
	CategorySecurity Category = "security"
)

func (c Category) Valid() bool {
	return c == CategoryQuick || c == CategoryDeep || c == CategorySecurity
}

// Scan is one user request to run a set of modules against a target.
type Scan struct {
	ID          uint         `gorm:"primaryKey" json:"-"`
	ScanID      string       `gorm:"type:varchar(64);uniqueIndex" json:"scan_id"`
	Target      string       `gorm:"not null" json:"target"`
	Status      Status       `gorm:"type:varchar(16);index" json:"status"`
	Modules     []string     `gorm:"type:text;serializer:json" json:"modules,omitempty"`
	Timeout     int          `json:"timeout"`
	StartedAt   time.Time    `gorm:"index" json:"started_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	Results     []ScanResult `gorm:"foreignKey:ScanID;references:ScanID" json:"results"`
}

// ScanResult is the outcome of exactly one module run. Written once.
type ScanResult struct {
	ID         uint           `gorm:"primaryKey" json:"-"`
	ScanID     string         `gorm:"type:varchar(64);index" json:"-"`
	Module     string         `gorm:"type:varchar(64)" json:"module"`
	Category   Category       `gorm:"type:varchar(16)" json:"category"`
	Target     string         `json:"target"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMS int64          `json:"duration_ms"`
	Status     Status         `gorm:"type:varchar(16)" json:"status"`
	Data       map[string]any `gorm:"type:text;serializer:json" json:"data"`
	Findings   []Finding      `gorm:"foreignKey:ScanResultID" json:"findings"`
	Error      *string        `json:"error,omitempty"`
}

// FindingsCount sums findings across results.
func (s *Scan) FindingsCount() int {
	n := 0
	for _, r := range s.Results {
		n += len(r.Findings)
	}
	return n
}
