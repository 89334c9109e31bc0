package channel

import (
	"fmt"
	"strings"
	"sync"

	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultChannelID is the id of the process-wide channel of a kind.
func DefaultChannelID(kind domain.ChannelKind) string {
	return "default-" + kind.String()
}

// Endpoint is a process-wide channel destination taken from configuration.
type Endpoint struct {
	URL    string
	Secret string
}

type factoryFunc func(cfg domain.ChannelConfig, opts Options) (Dispatcher, error)

type cachedDispatcher struct {
	cfg        domain.ChannelConfig
	dispatcher Dispatcher
}

// Registry builds dispatchers and caches them by channel id so pacing state
// survives across events. Kinds without an endpoint are disabled.
type Registry struct {
	opts     Options
	logger   *zap.Logger
	factory  factoryFunc
	defaults []domain.ChannelConfig

	mu    sync.Mutex
	cache map[string]cachedDispatcher
}

func NewRegistry(endpoints map[domain.ChannelKind]Endpoint, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		opts:    opts,
		logger:  logger.Named("channel_registry"),
		factory: New,
		cache:   make(map[string]cachedDispatcher),
	}

	for _, kind := range []domain.ChannelKind{domain.ChannelKindTeams, domain.ChannelKindSlack, domain.ChannelKindWebhook} {
		ep, ok := endpoints[kind]
		if !ok || strings.TrimSpace(ep.URL) == "" {
			r.logger.Debug("default channel disabled", zap.String("kind", kind.String()))
			continue
		}
		r.defaults = append(r.defaults, domain.ChannelConfig{
			ID:          DefaultChannelID(kind),
			Kind:        kind,
			EndpointURL: ep.URL,
			Secret:      ep.Secret,
			Enabled:     true,
		})
	}

	return r
}

// Defaults returns the process-wide channels that have an endpoint.
func (r *Registry) Defaults() []domain.ChannelConfig {
	out := make([]domain.ChannelConfig, len(r.defaults))
	copy(out, r.defaults)
	return out
}

// Resolve returns dispatchers for the default channels plus the enabled
// repository channels. Channels that fail to build are skipped and their
// errors combined.
func (r *Registry) Resolve(repositoryChannels []domain.ChannelConfig) ([]Dispatcher, error) {
	configs := make([]domain.ChannelConfig, 0, len(r.defaults)+len(repositoryChannels))
	configs = append(configs, r.defaults...)
	for _, cfg := range repositoryChannels {
		if !cfg.Enabled || r.coveredByDefault(cfg) {
			continue
		}
		configs = append(configs, cfg)
	}

	dispatchers := make([]Dispatcher, 0, len(configs))
	var errs error
	for _, cfg := range configs {
		d, err := r.Dispatcher(cfg)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("channel %s: %w", cfg.ID, err))
			continue
		}
		dispatchers = append(dispatchers, d)
	}

	return dispatchers, errs
}

// Dispatcher returns the cached dispatcher for cfg.ID, rebuilding it when the
// stored configuration changed.
func (r *Registry) Dispatcher(cfg domain.ChannelConfig) (Dispatcher, error) {
	if strings.TrimSpace(cfg.ID) == "" {
		return nil, fmt.Errorf("%w: channel id is required", domain.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache[cfg.ID]; ok && sameDestination(cached.cfg, cfg) {
		return cached.dispatcher, nil
	}

	d, err := r.factory(cfg, r.opts)
	if err != nil {
		return nil, err
	}
	r.cache[cfg.ID] = cachedDispatcher{cfg: cfg, dispatcher: d}

	return d, nil
}

// coveredByDefault reports whether a default channel already posts to the
// same destination as cfg.
func (r *Registry) coveredByDefault(cfg domain.ChannelConfig) bool {
	for _, def := range r.defaults {
		if def.Kind == cfg.Kind && strings.TrimSpace(def.EndpointURL) == strings.TrimSpace(cfg.EndpointURL) {
			return true
		}
	}
	return false
}

func sameDestination(a, b domain.ChannelConfig) bool {
	return a.Kind == b.Kind && a.EndpointURL == b.EndpointURL && a.Secret == b.Secret
}
