package domain

import (
	"fmt"
	"time"
)

// ReportArtifact is a raw CI report as submitted, kept for the analysis consumer.
type ReportArtifact struct {
	ID           string
	RepositoryID string
	SHA256       string
	SizeBytes    int64
	ContentType  string
	Content      []byte
	CreatedAt    time.Time
}

// Ref returns the content reference handed to analysis jobs.
func (a *ReportArtifact) Ref() string {
	if a == nil {
		return ""
	}
	return fmt.Sprintf("artifact://%s", a.ID)
}
