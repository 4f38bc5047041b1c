package handlers

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gabriel/tatakai-scraper/internal/catalog"
	"github.com/gabriel/tatakai-scraper/internal/fetcher"
	"github.com/gabriel/tatakai-scraper/internal/pipeline"
	"github.com/gabriel/tatakai-scraper/internal/ratelimit"
)

const (
	actionSearch = "search"
	actionAnime  = "anime"

	msgMissingTitle  = "Missing title parameter"
	msgMissingSlug   = "Missing slug parameter"
	msgInvalidAction = "Invalid action. Use action=search or action=anime"
	msgInvalidEp     = "Invalid ep parameter"
	msgAnimeNotFound = "Anime not found"
)

type CatalogService interface {
	Search(ctx context.Context, title string) (catalog.SearchResult, bool, error)
	Anime(ctx context.Context, slug string, episodeFilter *int) (catalog.TitleDetail, bool, error)
}

type RateLimiter interface {
	Admit(clientKey string) bool
	Window() time.Duration
}

type CatalogOptions struct {
	// Debug adds a stack trace to 500 responses.
	Debug bool
	// UseRemoteAddr keys clients without X-Forwarded-For by connection IP
	// instead of the shared unknown bucket.
	UseRemoteAddr bool
	// RequestTimeout caps the time spent on one request's cache lookup,
	// fetches and extraction. Zero leaves the request unbounded.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

type CatalogHandler struct {
	service CatalogService
	limiter RateLimiter
	opts    CatalogOptions
	logger  *slog.Logger
}

func NewCatalogHandler(service CatalogService, limiter RateLimiter, opts CatalogOptions) *CatalogHandler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogHandler{
		service: service,
		limiter: limiter,
		opts:    opts,
		logger:  logger,
	}
}

type catalogRequest struct {
	action  string
	title   string
	slug    string
	episode *int
}

func parseCatalogRequest(c *fiber.Ctx) (catalogRequest, error) {
	req := catalogRequest{action: strings.TrimSpace(c.Query("action"))}

	switch req.action {
	case actionSearch:
		req.title = strings.TrimSpace(c.Query("title"))
		if req.title == "" {
			return req, catalog.NewValidationError(msgMissingTitle)
		}
	case actionAnime:
		req.slug = strings.TrimSpace(c.Query("slug"))
		if req.slug == "" {
			return req, catalog.NewValidationError(msgMissingSlug)
		}
		if raw := strings.TrimSpace(c.Query("ep")); raw != "" {
			number, err := strconv.Atoi(raw)
			if err != nil {
				return req, catalog.NewValidationError(msgInvalidEp)
			}
			req.episode = &number
		}
	default:
		return req, catalog.NewValidationError(msgInvalidAction)
	}

	return req, nil
}

// Handle serves both catalog actions. Malformed requests are rejected before
// they count against the client's rate limit.
func (h *CatalogHandler) Handle(c *fiber.Ctx) error {
	req, err := parseCatalogRequest(c)
	if err != nil {
		var validationErr *catalog.ValidationError
		if errors.As(err, &validationErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr.Message})
		}
		return err
	}

	clientKey := ratelimit.ClientKey(c.Get(fiber.HeaderXForwardedFor), c.IP(), h.opts.UseRemoteAddr)
	if !h.limiter.Admit(clientKey) {
		rateErr := &catalog.RateLimitError{RetryAfter: h.limiter.Window()}
		seconds := rateErr.RetryAfterSeconds()
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(seconds))
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":      rateErr.Error(),
			"retryAfter": seconds,
		})
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	switch req.action {
	case actionSearch:
		result, hit, err := h.service.Search(ctx, req.title)
		if err != nil {
			return h.fail(c, req, err)
		}
		setCacheStatus(c, hit)
		return c.JSON(result)
	default:
		detail, hit, err := h.service.Anime(ctx, req.slug, req.episode)
		if err != nil {
			return h.fail(c, req, err)
		}
		setCacheStatus(c, hit)
		return c.JSON(detail)
	}
}

// requestContext derives the context handed to the catalog service. fasthttp
// does not cancel the request context when the client goes away, so the
// deadline is what stops abandoned upstream work.
func (h *CatalogHandler) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.opts.RequestTimeout <= 0 {
		return context.WithCancel(c.UserContext())
	}
	return context.WithTimeout(c.UserContext(), h.opts.RequestTimeout)
}

func (h *CatalogHandler) fail(c *fiber.Ctx, req catalogRequest, err error) error {
	if req.action == actionAnime && pipeline.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": msgAnimeNotFound})
	}

	h.logger.Error("catalog request failed",
		"action", req.action,
		"title", req.title,
		"slug", req.slug,
		"requestId", c.Locals(requestIDLocal),
		"error", err,
	)

	body := fiber.Map{"error": publicMessage(err)}
	if h.opts.Debug {
		body["stack"] = err.Error() + "\n\n" + string(debug.Stack())
	}
	return c.Status(fiber.StatusInternalServerError).JSON(body)
}

// publicMessage hides upstream URLs and low-level causes from clients.
func publicMessage(err error) string {
	var statusErr *catalog.UpstreamStatusError
	switch {
	case fetcher.IsFetchError(err):
		return "Failed to fetch upstream page"
	case errors.As(err, &statusErr):
		return "Upstream returned status " + strconv.Itoa(statusErr.StatusCode)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Request cancelled"
	default:
		return "Internal server error"
	}
}

func setCacheStatus(c *fiber.Ctx, hit bool) {
	if hit {
		c.Set("X-Cache", "HIT")
		return
	}
	c.Set("X-Cache", "MISS")
}
