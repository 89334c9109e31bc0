package domain

import (
	"fmt"
	"strings"
)

// ChannelKind identifies the payload shape and endpoint semantics of a channel.
type ChannelKind string

const (
	ChannelKindTeams   ChannelKind = "teams"
	ChannelKindSlack   ChannelKind = "slack"
	ChannelKindWebhook ChannelKind = "webhook"
)

func (k ChannelKind) String() string { return string(k) }

func (k ChannelKind) IsValid() bool {
	switch k {
	case ChannelKindTeams, ChannelKindSlack, ChannelKindWebhook:
		return true
	}
	return false
}

func ParseChannelKindFromString(s string) (ChannelKind, error) {
	kind := ChannelKind(strings.ToLower(strings.TrimSpace(s)))
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: invalid channel kind %q", ErrValidation, s)
	}
	return kind, nil
}

// ChannelConfig is one notification destination owned by a repository.
// EndpointURL and Secret are credentials and must never be logged.
type ChannelConfig struct {
	ID           string
	RepositoryID string
	Kind         ChannelKind
	EndpointURL  string
	Secret       string
	Enabled      bool
}

func (c *ChannelConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: channel config is required", ErrValidation)
	}
	if !c.Kind.IsValid() {
		return fmt.Errorf("%w: invalid channel kind %q", ErrValidation, c.Kind)
	}
	if strings.TrimSpace(c.EndpointURL) == "" {
		return fmt.Errorf("%w: endpoint url is required", ErrValidation)
	}
	return nil
}
