package queue

import (
	"context"
	"time"
)

// Queue names. The retry queue has no consumer: messages wait there for their
// per-message TTL and are then dead-lettered back into NotificationsQueue.
const (
	AnalysisJobsQueue       = "analysis.jobs"
	NotificationsQueue      = "notifications"
	NotificationsRetryQueue = "notifications.retry"
)

// Message is a broker payload.
type Message interface {
	Validate() error
	MessageID() string
	Correlation() string
}

// Publisher publishes messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg Message) error
	// PublishDelayed publishes msg with a per-message expiration of delay.
	PublishDelayed(ctx context.Context, queue string, msg Message, delay time.Duration) error
	Close() error
}

// MessageHandler handles a consumed notification job.
type MessageHandler func(ctx context.Context, job NotificationJob) error

// Consumer consumes notification jobs from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// DLQName returns the dead-letter queue name for a work queue, e.g.
// dlq.notifications.
func DLQName(queue string) string {
	return "dlq." + queue
}

// WorkQueueNames returns the queues that dead-letter poison messages.
func WorkQueueNames() []string {
	return []string{AnalysisJobsQueue, NotificationsQueue}
}

// DLQNames returns the dead-letter queue of every work queue.
func DLQNames() []string {
	work := WorkQueueNames()
	queues := make([]string, 0, len(work))
	for _, name := range work {
		queues = append(queues, DLQName(name))
	}
	return queues
}
