package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/concur-gateway/internal/channel"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"github.com/kursadbilgin/concur-gateway/internal/queue"
	"github.com/kursadbilgin/concur-gateway/internal/ratelimit"
)

type fakeTokenRepo struct {
	createFn      func(ctx context.Context, t *domain.APIToken) error
	getByDigestFn func(ctx context.Context, digest string) (*domain.APIToken, error)
	revokeFn      func(ctx context.Context, digest string, at time.Time) error
}

func (f *fakeTokenRepo) Create(ctx context.Context, t *domain.APIToken) error {
	if f.createFn != nil {
		return f.createFn(ctx, t)
	}
	return nil
}

func (f *fakeTokenRepo) GetByDigest(ctx context.Context, digest string) (*domain.APIToken, error) {
	if f.getByDigestFn != nil {
		return f.getByDigestFn(ctx, digest)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTokenRepo) Revoke(ctx context.Context, digest string, at time.Time) error {
	if f.revokeFn != nil {
		return f.revokeFn(ctx, digest, at)
	}
	return nil
}

type fakeTokenVerifier struct {
	verifyFn func(ctx context.Context, raw string) (string, error)
}

func (f *fakeTokenVerifier) Verify(ctx context.Context, raw string) (string, error) {
	if f.verifyFn != nil {
		return f.verifyFn(ctx, raw)
	}
	return "repo-1", nil
}

type fakeLimiter struct {
	checkFn func(ctx context.Context, key ratelimit.Key, limit int, window time.Duration) (ratelimit.Decision, error)
}

func (f *fakeLimiter) CheckAndIncrement(ctx context.Context, key ratelimit.Key, limit int, window time.Duration) (ratelimit.Decision, error) {
	if f.checkFn != nil {
		return f.checkFn(ctx, key, limit, window)
	}
	return ratelimit.Decision{Allowed: true, Count: 1, Limit: limit, Remaining: limit - 1}, nil
}

type fakeArtifactRepo struct {
	createFn func(ctx context.Context, a *domain.ReportArtifact) error
}

func (f *fakeArtifactRepo) Create(ctx context.Context, a *domain.ReportArtifact) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

type fakeChannelRepo struct {
	createFn           func(ctx context.Context, c *domain.ChannelConfig) error
	getByIDFn          func(ctx context.Context, id string) (*domain.ChannelConfig, error)
	listByRepositoryFn func(ctx context.Context, repositoryID string) ([]domain.ChannelConfig, error)
	setEnabledFn       func(ctx context.Context, id string, enabled bool) error
}

func (f *fakeChannelRepo) Create(ctx context.Context, c *domain.ChannelConfig) error {
	if f.createFn != nil {
		return f.createFn(ctx, c)
	}
	return nil
}

func (f *fakeChannelRepo) GetByID(ctx context.Context, id string) (*domain.ChannelConfig, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeChannelRepo) ListByRepository(ctx context.Context, repositoryID string) ([]domain.ChannelConfig, error) {
	if f.listByRepositoryFn != nil {
		return f.listByRepositoryFn(ctx, repositoryID)
	}
	return nil, nil
}

func (f *fakeChannelRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	if f.setEnabledFn != nil {
		return f.setEnabledFn(ctx, id, enabled)
	}
	return nil
}

type fakeAttemptRepo struct {
	mu               sync.Mutex
	created          []domain.DeliveryAttempt
	createFn         func(ctx context.Context, a *domain.DeliveryAttempt) error
	sentChannelIDsFn func(ctx context.Context, eventID string) (map[string]struct{}, error)
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	f.mu.Lock()
	f.created = append(f.created, *a)
	f.mu.Unlock()

	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAttemptRepo) SentChannelIDs(ctx context.Context, eventID string) (map[string]struct{}, error) {
	if f.sentChannelIDsFn != nil {
		return f.sentChannelIDsFn(ctx, eventID)
	}
	return map[string]struct{}{}, nil
}

func (f *fakeAttemptRepo) byChannel() map[string]domain.DeliveryAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]domain.DeliveryAttempt, len(f.created))
	for _, a := range f.created {
		out[a.ChannelID] = a
	}
	return out
}

type publishedMessage struct {
	queue string
	msg   queue.Message
	delay time.Duration
}

type fakePublisher struct {
	mu               sync.Mutex
	published        []publishedMessage
	publishFn        func(ctx context.Context, queueName string, msg queue.Message) error
	publishDelayedFn func(ctx context.Context, queueName string, msg queue.Message, delay time.Duration) error
	closeFn          func() error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.Message) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, queueName, msg); err != nil {
			return err
		}
	}
	f.record(publishedMessage{queue: queueName, msg: msg})
	return nil
}

func (f *fakePublisher) PublishDelayed(ctx context.Context, queueName string, msg queue.Message, delay time.Duration) error {
	if f.publishDelayedFn != nil {
		if err := f.publishDelayedFn(ctx, queueName, msg, delay); err != nil {
			return err
		}
	}
	f.record(publishedMessage{queue: queueName, msg: msg, delay: delay})
	return nil
}

func (f *fakePublisher) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

func (f *fakePublisher) record(m publishedMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, m)
}

func (f *fakePublisher) messages() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMessage, len(f.published))
	copy(out, f.published)
	return out
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queue string, handler queue.MessageHandler) error
	closeFn   func() error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	if f.closeFn != nil {
		return f.closeFn()
	}
	return nil
}

type fakeDispatcher struct {
	id     string
	kind   domain.ChannelKind
	sendFn func(ctx context.Context, data domain.NotificationData) error
	testFn func(ctx context.Context) bool

	mu    sync.Mutex
	calls int
}

func (f *fakeDispatcher) ID() string               { return f.id }
func (f *fakeDispatcher) Kind() domain.ChannelKind { return f.kind }

func (f *fakeDispatcher) Send(ctx context.Context, data domain.NotificationData) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, data)
	}
	return nil
}

func (f *fakeDispatcher) SendSimpleMessage(ctx context.Context, text, title string) error {
	return nil
}

func (f *fakeDispatcher) TestConnection(ctx context.Context) bool {
	if f.testFn != nil {
		return f.testFn(ctx)
	}
	return true
}

func (f *fakeDispatcher) sendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResolver struct {
	resolveFn func(configs []domain.ChannelConfig) ([]channel.Dispatcher, error)
}

func (f *fakeResolver) Resolve(configs []domain.ChannelConfig) ([]channel.Dispatcher, error) {
	if f.resolveFn != nil {
		return f.resolveFn(configs)
	}
	return nil, nil
}

func staticResolver(dispatchers ...channel.Dispatcher) *fakeResolver {
	return &fakeResolver{
		resolveFn: func(configs []domain.ChannelConfig) ([]channel.Dispatcher, error) {
			return dispatchers, nil
		},
	}
}

func testNotificationData(eventID string) domain.NotificationData {
	return domain.NotificationData{
		EventID:        eventID,
		RepositoryID:   "repo-1",
		RepositoryName: "acme/widgets",
		CommitSHA:      "0123456789abcdef",
		Branch:         "main",
		SeverityCounts: domain.SeverityCounts{Critical: 1, High: 2},
		CreatedAt:      time.Unix(1_700_000_000, 0).UTC(),
	}
}
