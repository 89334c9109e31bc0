package channel

import (
	"context"

	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"github.com/kursadbilgin/concur-gateway/internal/notify"
)

const slackAcceptedBody = "ok"

// Slack posts Block Kit messages to a Slack incoming webhook.
type Slack struct {
	*endpoint
}

func NewSlack(cfg domain.ChannelConfig, opts Options) (*Slack, error) {
	cfg.Kind = domain.ChannelKindSlack
	ep, err := newEndpoint(cfg, opts, slackAcceptedBody)
	if err != nil {
		return nil, err
	}
	return &Slack{endpoint: ep}, nil
}

func (s *Slack) Send(ctx context.Context, data domain.NotificationData) error {
	return s.post(ctx, notify.SlackMessage(data, s.format))
}

func (s *Slack) SendSimpleMessage(ctx context.Context, text, title string) error {
	return s.post(ctx, notify.SlackSimpleMessage(title, text))
}

func (s *Slack) TestConnection(ctx context.Context) bool {
	return testConnection(ctx, s, s.logger)
}
