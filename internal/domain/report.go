package domain

import (
	"fmt"
	"strings"
	"time"
)

// Severity ranks a concurrency warning.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func (s Severity) String() string { return string(s) }

func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	}
	return false
}

// Rank orders severities; higher is more severe and unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

func (s Severity) Label() string {
	switch s {
	case SeverityCritical:
		return "Critical"
	case SeverityHigh:
		return "High"
	case SeverityMedium:
		return "Medium"
	case SeverityLow:
		return "Low"
	default:
		return "Unknown"
	}
}

// WarningType is the category the parser assigned to a warning.
type WarningType string

const (
	WarningTypeActorIsolation        WarningType = "actor_isolation"
	WarningTypeSendableConformance   WarningType = "sendable_conformance"
	WarningTypeDataRace              WarningType = "data_race"
	WarningTypePerformanceRegression WarningType = "performance_regression"
	WarningTypeUnknown               WarningType = "unknown"
)

// WarningTypes lists every known warning type in display order.
var WarningTypes = []WarningType{
	WarningTypeActorIsolation,
	WarningTypeSendableConformance,
	WarningTypeDataRace,
	WarningTypePerformanceRegression,
	WarningTypeUnknown,
}

func (t WarningType) String() string { return string(t) }

func (t WarningType) Label() string {
	switch t {
	case WarningTypeActorIsolation:
		return "Actor Isolation"
	case WarningTypeSendableConformance:
		return "Sendable Conformance"
	case WarningTypeDataRace:
		return "Data Race"
	case WarningTypePerformanceRegression:
		return "Performance Regression"
	default:
		return "Unknown"
	}
}

// SeverityCounts holds the number of warnings per severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

func (c SeverityCounts) Count(s Severity) int {
	switch s {
	case SeverityCritical:
		return c.Critical
	case SeverityHigh:
		return c.High
	case SeverityMedium:
		return c.Medium
	case SeverityLow:
		return c.Low
	default:
		return 0
	}
}

func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low
}

// Highest returns the most severe level with a non-zero count, or "" when
// there are no warnings.
func (c SeverityCounts) Highest() Severity {
	for _, s := range Severities {
		if c.Count(s) > 0 {
			return s
		}
	}
	return ""
}

// WarningSummary is one of the top offending warnings of a run.
type WarningSummary struct {
	Message  string      `json:"message"`
	File     string      `json:"file"`
	Line     int         `json:"line"`
	Severity Severity    `json:"severity"`
	Type     WarningType `json:"type"`
}

// Location renders file:line, or just the file when the line is unknown.
func (w WarningSummary) Location() string {
	file := strings.TrimSpace(w.File)
	if file == "" {
		file = "unknown file"
	}
	if w.Line <= 0 {
		return file
	}
	return fmt.Sprintf("%s:%d", file, w.Line)
}

// NotificationData summarizes one completed analysis for one commit/build.
// It is immutable once produced and consumed by every channel independently.
type NotificationData struct {
	EventID        string              `json:"eventId"`
	RepositoryID   string              `json:"repositoryId"`
	RepositoryName string              `json:"repositoryName"`
	CommitSHA      string              `json:"commitSha,omitempty"`
	Branch         string              `json:"branch,omitempty"`
	BuildID        string              `json:"buildId,omitempty"`
	PullRequest    *int                `json:"pullRequest,omitempty"`
	SeverityCounts SeverityCounts      `json:"severityCounts"`
	TypeCounts     map[WarningType]int `json:"typeCounts,omitempty"`
	TopWarnings    []WarningSummary    `json:"topWarnings,omitempty"`
	DashboardURL   string              `json:"dashboardUrl,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
}

func (d *NotificationData) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: notification data is required", ErrValidation)
	}
	if strings.TrimSpace(d.EventID) == "" {
		return fmt.Errorf("%w: eventId is required", ErrValidation)
	}
	if strings.TrimSpace(d.RepositoryID) == "" {
		return fmt.Errorf("%w: repositoryId is required", ErrValidation)
	}
	if d.SeverityCounts.Critical < 0 || d.SeverityCounts.High < 0 ||
		d.SeverityCounts.Medium < 0 || d.SeverityCounts.Low < 0 {
		return fmt.Errorf("%w: severity counts must not be negative", ErrValidation)
	}
	return nil
}

// DisplayName is the repository name, falling back to its identifier.
func (d *NotificationData) DisplayName() string {
	if name := strings.TrimSpace(d.RepositoryName); name != "" {
		return name
	}
	return d.RepositoryID
}

// ShortCommit abbreviates the commit sha to seven characters.
func (d *NotificationData) ShortCommit() string {
	sha := strings.TrimSpace(d.CommitSHA)
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
