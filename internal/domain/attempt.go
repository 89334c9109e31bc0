package domain

import "time"

// DeliveryOutcome classifies a single channel delivery.
type DeliveryOutcome string

const (
	OutcomeSent             DeliveryOutcome = "sent"
	OutcomeRejected         DeliveryOutcome = "rejected"
	OutcomeTransientFailure DeliveryOutcome = "transient_failure"
)

func (o DeliveryOutcome) String() string { return string(o) }

// Retryable reports whether the queueing layer may try the delivery again.
func (o DeliveryOutcome) Retryable() bool { return o == OutcomeTransientFailure }

// DeliveryAttempt records one (channel, event) delivery.
type DeliveryAttempt struct {
	ID            string
	EventID       string
	ChannelID     string
	ChannelKind   ChannelKind
	AttemptNumber int
	Outcome       DeliveryOutcome
	StatusCode    *int
	ResponseBody  *string
	Error         *string
	CreatedAt     time.Time
}
