package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/kursadbilgin/concur-gateway/internal/domain"
)

type fakeDispatcher struct {
	cfg domain.ChannelConfig
}

func (f *fakeDispatcher) ID() string               { return f.cfg.ID }
func (f *fakeDispatcher) Kind() domain.ChannelKind { return f.cfg.Kind }
func (f *fakeDispatcher) Send(context.Context, domain.NotificationData) error {
	return nil
}
func (f *fakeDispatcher) SendSimpleMessage(context.Context, string, string) error {
	return nil
}
func (f *fakeDispatcher) TestConnection(context.Context) bool { return true }

func TestRegistryDefaultsSkipMissingEndpoints(t *testing.T) {
	t.Parallel()

	r := NewRegistry(map[domain.ChannelKind]Endpoint{
		domain.ChannelKindTeams:   {URL: "https://teams.example.com/hook"},
		domain.ChannelKindSlack:   {URL: "  "},
		domain.ChannelKindWebhook: {URL: "https://hooks.example.com/in", Secret: "s"},
	}, Options{})

	defaults := r.Defaults()
	if len(defaults) != 2 {
		t.Fatalf("defaults = %d, want 2", len(defaults))
	}
	if defaults[0].ID != "default-teams" || defaults[1].ID != "default-webhook" {
		t.Fatalf("default ids = %q, %q", defaults[0].ID, defaults[1].ID)
	}
	if defaults[1].Secret != "s" {
		t.Fatal("webhook secret not carried into default channel")
	}
}

func TestRegistryResolveCachesAndRebuilds(t *testing.T) {
	t.Parallel()

	var builds int
	r := NewRegistry(nil, Options{})
	r.factory = func(cfg domain.ChannelConfig, _ Options) (Dispatcher, error) {
		builds++
		return &fakeDispatcher{cfg: cfg}, nil
	}

	cfg := domain.ChannelConfig{ID: "c1", Kind: domain.ChannelKindSlack, EndpointURL: "https://a", Enabled: true}

	first, err := r.Resolve([]domain.ChannelConfig{cfg})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	second, err := r.Resolve([]domain.ChannelConfig{cfg})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if builds != 1 || first[0] != second[0] {
		t.Fatalf("builds = %d, want cached dispatcher reused", builds)
	}

	cfg.EndpointURL = "https://b"
	third, err := r.Resolve([]domain.ChannelConfig{cfg})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if builds != 2 || third[0] == first[0] {
		t.Fatalf("builds = %d, want rebuild after endpoint change", builds)
	}
}

func TestRegistryResolveSkipsDisabledAndCollectsErrors(t *testing.T) {
	t.Parallel()

	r := NewRegistry(map[domain.ChannelKind]Endpoint{
		domain.ChannelKindTeams: {URL: "https://teams.example.com/hook"},
	}, Options{})

	dispatchers, err := r.Resolve([]domain.ChannelConfig{
		{ID: "off", Kind: domain.ChannelKindSlack, EndpointURL: "https://slack.example.com", Enabled: false},
		{ID: "broken", Kind: domain.ChannelKindSlack, EndpointURL: "not a url", Enabled: true},
		{ID: "ok", Kind: domain.ChannelKindWebhook, EndpointURL: "https://hooks.example.com", Enabled: true},
	})
	if err == nil || !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Resolve() error = %v, want ErrValidation", err)
	}

	ids := make([]string, 0, len(dispatchers))
	for _, d := range dispatchers {
		ids = append(ids, d.ID())
	}
	if len(ids) != 2 || ids[0] != "default-teams" || ids[1] != "ok" {
		t.Fatalf("dispatcher ids = %v, want [default-teams ok]", ids)
	}
}

func TestRegistryResolveSkipsRepositoryCopyOfDefault(t *testing.T) {
	t.Parallel()

	r := NewRegistry(map[domain.ChannelKind]Endpoint{
		domain.ChannelKindSlack: {URL: "https://slack.example.com/hook"},
	}, Options{})

	dispatchers, err := r.Resolve([]domain.ChannelConfig{
		{ID: "dup", Kind: domain.ChannelKindSlack, EndpointURL: " https://slack.example.com/hook ", Enabled: true},
		{ID: "other", Kind: domain.ChannelKindSlack, EndpointURL: "https://slack.example.com/other", Enabled: true},
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(dispatchers) != 2 || dispatchers[0].ID() != "default-slack" || dispatchers[1].ID() != "other" {
		t.Fatalf("dispatchers = %d, want [default-slack other]", len(dispatchers))
	}
}

func TestRegistryDispatcherRequiresID(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil, Options{})
	if _, err := r.Dispatcher(domain.ChannelConfig{Kind: domain.ChannelKindSlack, EndpointURL: "https://a"}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Dispatcher() error = %v, want ErrValidation", err)
	}
}
