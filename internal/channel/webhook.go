package channel

import (
	"context"

	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"github.com/kursadbilgin/concur-gateway/internal/notify"
)

// Webhook posts a versioned JSON envelope to an arbitrary endpoint. When the
// channel has a secret, the body is signed with HMAC-SHA256.
type Webhook struct {
	*endpoint
}

func NewWebhook(cfg domain.ChannelConfig, opts Options) (*Webhook, error) {
	cfg.Kind = domain.ChannelKindWebhook
	ep, err := newEndpoint(cfg, opts, "")
	if err != nil {
		return nil, err
	}
	return &Webhook{endpoint: ep}, nil
}

func (w *Webhook) Send(ctx context.Context, data domain.NotificationData) error {
	return w.post(ctx, notify.WebhookEnvelope(data, w.format, w.now()))
}

func (w *Webhook) SendSimpleMessage(ctx context.Context, text, title string) error {
	return w.post(ctx, notify.SimpleEnvelope(title, text, w.now()))
}

func (w *Webhook) TestConnection(ctx context.Context) bool {
	return testConnection(ctx, w, w.logger)
}
