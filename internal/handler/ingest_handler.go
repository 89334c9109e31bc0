package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"github.com/kursadbilgin/concur-gateway/internal/service"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

type IngestService interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error)
}

type IngestHandler struct {
	service IngestService
	now     func() time.Time
}

func NewIngestHandler(service IngestService) (*IngestHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("ingest service is required")
	}
	return &IngestHandler{service: service, now: time.Now}, nil
}

func RegisterIngestRoutes(router fiber.Router, service IngestService) error {
	h, err := NewIngestHandler(service)
	if err != nil {
		return err
	}

	router.Post("/ingest", h.Ingest)
	router.Post("/v1/ingest", h.Ingest)

	return nil
}

type ingestResponse struct {
	Status    string    `json:"status"`
	ReportID  string    `json:"reportId"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

type rateLimitedResponse struct {
	Error      string    `json:"error"`
	RetryAfter int       `json:"retryAfter"`
	ResetAt    time.Time `json:"resetAt"`
}

func (h *IngestHandler) Ingest(c *fiber.Ctx) error {
	raw, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
	}

	// Body is only valid for the lifetime of the handler.
	body := append([]byte(nil), c.Body()...)

	result, err := h.service.Submit(c.UserContext(), service.SubmitRequest{
		Token:       raw,
		Body:        body,
		ContentType: c.Get(fiber.HeaderContentType),
	})
	if err != nil {
		var limited *domain.RateLimitedError
		if errors.As(err, &limited) {
			return h.rateLimited(c, limited)
		}
		return err
	}

	setRateLimitHeaders(c, result.Limit, result.Remaining, result.ResetAt)
	return c.Status(fiber.StatusAccepted).JSON(ingestResponse{
		Status:    result.Status,
		ReportID:  result.ReportID,
		Remaining: result.Remaining,
		ResetAt:   result.ResetAt.UTC(),
	})
}

func (h *IngestHandler) rateLimited(c *fiber.Ctx, limited *domain.RateLimitedError) error {
	retryAfter := limited.RetryAfter(h.now())

	setRateLimitHeaders(c, limited.Limit, 0, limited.ResetAt)
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))

	return c.Status(fiber.StatusTooManyRequests).JSON(rateLimitedResponse{
		Error:      "rate limit exceeded",
		RetryAfter: retryAfter,
		ResetAt:    limited.ResetAt.UTC(),
	})
}

func setRateLimitHeaders(c *fiber.Ctx, limit, remaining int, resetAt time.Time) {
	c.Set(HeaderRateLimitLimit, strconv.Itoa(limit))
	c.Set(HeaderRateLimitRemaining, strconv.Itoa(remaining))
	c.Set(HeaderRateLimitReset, strconv.FormatInt(resetAt.Unix(), 10))
}

func bearerToken(header string) (string, bool) {
	scheme, value, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}
