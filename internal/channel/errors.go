package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/kursadbilgin/concur-gateway/internal/domain"
)

// DeliveryError describes why a single channel delivery did not succeed.
type DeliveryError struct {
	ChannelID  string
	Kind       domain.ChannelKind
	StatusCode int
	Body       string
	Outcome    domain.DeliveryOutcome
	Cause      error
}

func (e *DeliveryError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	parts = append(parts, fmt.Sprintf("%s delivery %s", e.Kind, e.Outcome))

	if e.ChannelID != "" {
		parts = append(parts, fmt.Sprintf("channel=%s", e.ChannelID))
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		parts = append(parts, body)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *DeliveryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// OutcomeOf classifies the result of a Send call.
func OutcomeOf(err error) domain.DeliveryOutcome {
	if err == nil {
		return domain.OutcomeSent
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) && deliveryErr.Outcome != "" {
		return deliveryErr.Outcome
	}

	if IsTransient(err) {
		return domain.OutcomeTransientFailure
	}
	return domain.OutcomeRejected
}

// IsTransient reports whether a failed delivery may succeed when retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) && deliveryErr.Outcome != "" {
		return deliveryErr.Outcome.Retryable()
	}

	// Cancellation comes from shutdown or the fan-out deadline.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// classifyStatus maps an HTTP status code to a delivery outcome.
func classifyStatus(statusCode int) domain.DeliveryOutcome {
	switch {
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		return domain.OutcomeSent
	case statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusTooManyRequests,
		statusCode >= http.StatusInternalServerError && statusCode <= 599:
		return domain.OutcomeTransientFailure
	default:
		return domain.OutcomeRejected
	}
}
