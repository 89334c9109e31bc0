package channel

import (
	"context"

	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"github.com/kursadbilgin/concur-gateway/internal/notify"
)

// teamsAcceptedBody is what Teams incoming webhooks answer on success.
const teamsAcceptedBody = "1"

// Teams posts MessageCards to a Teams incoming webhook.
type Teams struct {
	*endpoint
}

func NewTeams(cfg domain.ChannelConfig, opts Options) (*Teams, error) {
	cfg.Kind = domain.ChannelKindTeams
	ep, err := newEndpoint(cfg, opts, teamsAcceptedBody)
	if err != nil {
		return nil, err
	}
	return &Teams{endpoint: ep}, nil
}

func (t *Teams) Send(ctx context.Context, data domain.NotificationData) error {
	return t.post(ctx, notify.TeamsCard(data, t.format))
}

func (t *Teams) SendSimpleMessage(ctx context.Context, text, title string) error {
	return t.post(ctx, notify.TeamsSimpleCard(title, text))
}

func (t *Teams) TestConnection(ctx context.Context) bool {
	return testConnection(ctx, t, t.logger)
}
