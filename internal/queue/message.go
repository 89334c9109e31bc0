package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/concur-gateway/internal/domain"
)

// AnalysisJob asks the analysis consumer to process a stored report.
type AnalysisJob struct {
	ReportID      string    `json:"reportId"`
	RepositoryID  string    `json:"repositoryId"`
	ArtifactRef   string    `json:"artifactRef"`
	CommitSHA     string    `json:"commitSha,omitempty"`
	Branch        string    `json:"branch,omitempty"`
	RunID         string    `json:"runId,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

func (j AnalysisJob) Validate() error {
	if strings.TrimSpace(j.ReportID) == "" {
		return fmt.Errorf("reportId is required")
	}
	if strings.TrimSpace(j.RepositoryID) == "" {
		return fmt.Errorf("repositoryId is required")
	}
	if strings.TrimSpace(j.ArtifactRef) == "" {
		return fmt.Errorf("artifactRef is required")
	}
	return nil
}

func (j AnalysisJob) MessageID() string   { return j.ReportID }
func (j AnalysisJob) Correlation() string { return j.CorrelationID }

// NotificationJob carries an analysis result to be fanned out. Attempt starts
// at 1; retries restrict delivery to ChannelIDs.
type NotificationJob struct {
	EventID       string                  `json:"eventId"`
	Attempt       int                     `json:"attempt"`
	ChannelIDs    []string                `json:"channelIds,omitempty"`
	CorrelationID string                  `json:"correlationId,omitempty"`
	Data          domain.NotificationData `json:"data"`
}

func (j NotificationJob) Validate() error {
	if strings.TrimSpace(j.EventID) == "" {
		return fmt.Errorf("eventId is required")
	}
	if j.Attempt < 1 {
		return fmt.Errorf("attempt must be positive")
	}
	if err := j.Data.Validate(); err != nil {
		return err
	}
	if j.Data.EventID != j.EventID {
		return fmt.Errorf("data eventId %q does not match %q", j.Data.EventID, j.EventID)
	}
	return nil
}

func (j NotificationJob) MessageID() string {
	return fmt.Sprintf("%s#%d", j.EventID, j.Attempt)
}

func (j NotificationJob) Correlation() string { return j.CorrelationID }
