package notify

import (
	"time"

	"github.com/kursadbilgin/concur-gateway/internal/domain"
)

const (
	EnvelopeType          = "concurrency.analysis.completed"
	EnvelopeSchemaVersion = "1"
	ProbeEnvelopeType     = "concurrency.connection.test"
)

// Envelope is the JSON payload POSTed to generic webhook endpoints.
type Envelope struct {
	Type          string                   `json:"type"`
	SchemaVersion string                   `json:"schemaVersion"`
	Timestamp     string                   `json:"timestamp"`
	Title         string                   `json:"title,omitempty"`
	Text          string                   `json:"text"`
	Data          *domain.NotificationData `json:"data,omitempty"`
}

// WebhookEnvelope wraps data with a plain-text rendering for generic consumers.
func WebhookEnvelope(data domain.NotificationData, opts Options, now time.Time) Envelope {
	return Envelope{
		Type:          EnvelopeType,
		SchemaVersion: EnvelopeSchemaVersion,
		Timestamp:     now.UTC().Format(time.RFC3339),
		Text:          PlainText(data, opts),
		Data:          &data,
	}
}

// SimpleEnvelope carries a titled text message without report data.
func SimpleEnvelope(title, text string, now time.Time) Envelope {
	return Envelope{
		Type:          ProbeEnvelopeType,
		SchemaVersion: EnvelopeSchemaVersion,
		Timestamp:     now.UTC().Format(time.RFC3339),
		Title:         title,
		Text:          text,
	}
}
