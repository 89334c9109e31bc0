package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"github.com/kursadbilgin/concur-gateway/internal/observability"
	"github.com/kursadbilgin/concur-gateway/internal/service"
	"github.com/kursadbilgin/concur-gateway/internal/token"
)

// HeaderAdminKey carries the admin API key.
const HeaderAdminKey = "X-Admin-Key"

type TokenAdmin interface {
	Issue(ctx context.Context, repositoryID string) (*service.IssuedToken, error)
	Revoke(ctx context.Context, raw string) error
}

type ChannelAdmin interface {
	Create(ctx context.Context, cfg *domain.ChannelConfig) (*domain.ChannelConfig, error)
	TestAll(ctx context.Context, repositoryID string) (map[string]bool, error)
	Disable(ctx context.Context, repositoryID, channelID string) error
}

type AdminHandler struct {
	tokens   TokenAdmin
	channels ChannelAdmin
}

func NewAdminHandler(tokens TokenAdmin, channels ChannelAdmin) (*AdminHandler, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token admin is required")
	}
	if channels == nil {
		return nil, fmt.Errorf("channel admin is required")
	}
	return &AdminHandler{tokens: tokens, channels: channels}, nil
}

// RegisterAdminRoutes mounts the admin API behind adminKey. An empty key
// leaves the routes unregistered.
func RegisterAdminRoutes(router fiber.Router, adminKey string, tokens TokenAdmin, channels ChannelAdmin) (bool, error) {
	adminKey = strings.TrimSpace(adminKey)
	if adminKey == "" {
		return false, nil
	}

	h, err := NewAdminHandler(tokens, channels)
	if err != nil {
		return false, err
	}

	// Guarded per route so /v1/ingest stays reachable with a bearer token.
	requireKey := RequireAdminKey(adminKey)
	router.Post("/v1/repositories/:repositoryId/tokens", requireKey, h.IssueToken)
	router.Post("/v1/tokens/revoke", requireKey, h.RevokeToken)
	router.Post("/v1/repositories/:repositoryId/channels", requireKey, h.CreateChannel)
	router.Post("/v1/repositories/:repositoryId/channels/test", requireKey, h.TestChannels)
	router.Post("/v1/repositories/:repositoryId/channels/:channelId/disable", requireKey, h.DisableChannel)

	return true, nil
}

// RequireAdminKey rejects requests whose admin key does not match.
func RequireAdminKey(adminKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !token.ConstantTimeEquals(strings.TrimSpace(c.Get(HeaderAdminKey)), adminKey) {
			return fmt.Errorf("%w: invalid admin key", domain.ErrUnauthorized)
		}
		return c.Next()
	}
}

type issuedTokenResponse struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repositoryId"`
	Token        string    `json:"token"`
	CreatedAt    time.Time `json:"createdAt"`
}

type revokeTokenRequest struct {
	Token string `json:"token"`
}

type createChannelRequest struct {
	Kind        string `json:"kind"`
	EndpointURL string `json:"endpointUrl"`
	Secret      string `json:"secret"`
}

type channelResponse struct {
	ID           string `json:"id"`
	RepositoryID string `json:"repositoryId"`
	Kind         string `json:"kind"`
	Endpoint     string `json:"endpoint"`
	Signed       bool   `json:"signed"`
	Enabled      bool   `json:"enabled"`
}

type channelTestResponse struct {
	Results map[string]bool `json:"results"`
}

func (h *AdminHandler) IssueToken(c *fiber.Ctx) error {
	issued, err := h.tokens.Issue(c.UserContext(), c.Params("repositoryId"))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(issuedTokenResponse{
		ID:           issued.ID,
		RepositoryID: issued.RepositoryID,
		Token:        issued.Token,
		CreatedAt:    issued.CreatedAt,
	})
}

func (h *AdminHandler) RevokeToken(c *fiber.Ctx) error {
	var req revokeTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.tokens.Revoke(c.UserContext(), strings.TrimSpace(req.Token)); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *AdminHandler) CreateChannel(c *fiber.Ctx) error {
	var req createChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	kind, err := domain.ParseChannelKindFromString(req.Kind)
	if err != nil {
		return err
	}

	created, err := h.channels.Create(c.UserContext(), &domain.ChannelConfig{
		RepositoryID: c.Params("repositoryId"),
		Kind:         kind,
		EndpointURL:  req.EndpointURL,
		Secret:       req.Secret,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(channelResponse{
		ID:           created.ID,
		RepositoryID: created.RepositoryID,
		Kind:         created.Kind.String(),
		Endpoint:     observability.RedactURL(created.EndpointURL),
		Signed:       created.Secret != "",
		Enabled:      created.Enabled,
	})
}

func (h *AdminHandler) TestChannels(c *fiber.Ctx) error {
	results, err := h.channels.TestAll(c.UserContext(), c.Params("repositoryId"))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(channelTestResponse{Results: results})
}

func (h *AdminHandler) DisableChannel(c *fiber.Ctx) error {
	if err := h.channels.Disable(c.UserContext(), c.Params("repositoryId"), c.Params("channelId")); err != nil {
		return err
	}

	return c.SendStatus(fiber.StatusNoContent)
}
