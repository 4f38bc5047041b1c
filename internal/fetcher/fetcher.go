// Package fetcher issues outbound page requests with browser-like headers,
// a per-attempt timeout and exponential-backoff retries on transient failures.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 500 * time.Millisecond

	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
)

var tracer = otel.Tracer("tatakai/fetcher")

// Response is a fully read upstream response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) Text() string {
	return string(r.Body)
}

// FetchError is the only terminal failure of Fetch. Cause holds the error of
// the last attempt.
type FetchError struct {
	URL      string
	Attempts int
	Cause    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Cause)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// StatusError is the cause recorded for retryable status codes (429, 5xx).
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}

type SleepFunc func(ctx context.Context, d time.Duration) error

type Fetcher struct {
	client      *resty.Client
	referer     string
	timeout     time.Duration
	maxRetries  int
	baseDelay   time.Duration
	limiter     *HostLimiter
	cloudflare  bool
	httpClient  *http.Client
	sleep       SleepFunc
	logger      *slog.Logger
	userAgent   string
	acceptValue string
}

type Option func(*Fetcher)

func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		if n >= 0 {
			f.maxRetries = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.baseDelay = d
		}
	}
}

// WithReferer sets the Referer sent with every request, normally the
// upstream site root.
func WithReferer(referer string) Option {
	return func(f *Fetcher) {
		f.referer = strings.TrimSpace(referer)
	}
}

// WithHostRateLimit paces outbound requests per upstream host. rps <= 0
// disables pacing.
func WithHostRateLimit(rps float64) Option {
	return func(f *Fetcher) {
		if rps > 0 {
			f.limiter = NewHostLimiter(rps)
		}
	}
}

func WithCloudflareBypass(enabled bool) Option {
	return func(f *Fetcher) {
		f.cloudflare = enabled
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

func WithSleep(sleep SleepFunc) Option {
	return func(f *Fetcher) {
		if sleep != nil {
			f.sleep = sleep
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		timeout:     DefaultTimeout,
		maxRetries:  DefaultMaxRetries,
		baseDelay:   DefaultBaseDelay,
		sleep:       sleepContext,
		logger:      slog.Default(),
		userAgent:   DefaultUserAgent,
		acceptValue: DefaultAccept,
	}
	for _, opt := range opts {
		opt(f)
	}

	var client *resty.Client
	if f.httpClient != nil {
		client = resty.NewWithClient(f.httpClient)
	} else {
		client = resty.New()
	}
	if f.cloudflare {
		transport := client.GetClient().Transport
		if transport == nil {
			transport = http.DefaultTransport
		}
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(transport)
	}
	client.SetTimeout(f.timeout)
	client.SetRetryCount(0)
	f.client = client

	return f
}

type requestOptions struct {
	headers    map[string]string
	maxRetries int
}

type RequestOption func(*requestOptions)

// WithHeader overrides a default header for one request. Empty values are
// ignored so required headers cannot be removed.
func WithHeader(key string, value string) RequestOption {
	return func(o *requestOptions) {
		if strings.TrimSpace(key) == "" || strings.TrimSpace(value) == "" {
			return
		}
		o.headers[http.CanonicalHeaderKey(key)] = value
	}
}

func WithRetries(n int) RequestOption {
	return func(o *requestOptions) {
		if n >= 0 {
			o.maxRetries = n
		}
	}
}

// Fetch performs a GET with retries. Network errors, timeouts, 429 and 5xx
// are retried after 500ms * 2^attempt; any other status is returned as is.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	options := requestOptions{
		headers:    f.defaultHeaders(),
		maxRetries: f.maxRetries,
	}
	for _, opt := range opts {
		opt(&options)
	}

	ctx, span := tracer.Start(ctx, "fetcher.Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("http.url", rawURL))

	host := hostOf(rawURL)
	attempts := 0
	var lastErr error
	for attempt := 0; attempt <= options.maxRetries; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, host); err != nil {
				lastErr = err
				break
			}
		}

		attempts++
		res, err := f.attempt(ctx, rawURL, options.headers)
		if err == nil && !retryableStatus(res.StatusCode) {
			span.SetAttributes(attribute.Int("http.status_code", res.StatusCode), attribute.Int("fetch.attempts", attempts))
			return res, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = &StatusError{StatusCode: res.StatusCode}
		}

		if attempt >= options.maxRetries {
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		delay := f.baseDelay << attempt
		f.logger.Warn("upstream fetch retry", "url", rawURL, "attempt", attempt+1, "delay", delay.String(), "error", lastErr)
		if err := f.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	fetchErr := &FetchError{URL: rawURL, Attempts: attempts, Cause: lastErr}
	span.RecordError(fetchErr)
	span.SetStatus(codes.Error, "fetch failed")
	return nil, fetchErr
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	res, err := f.client.R().
		SetContext(attemptCtx).
		SetHeaders(headers).
		Get(rawURL)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return &Response{
		URL:        rawURL,
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Body:       res.Body(),
	}, nil
}

func (f *Fetcher) defaultHeaders() map[string]string {
	headers := map[string]string{
		"User-Agent":      f.userAgent,
		"Accept":          f.acceptValue,
		"Accept-Language": "en-US,en;q=0.9,hi;q=0.8",
	}
	if f.referer != "" {
		headers["Referer"] = f.referer
	}
	return headers
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func hostOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsFetchError reports whether err carries a terminal FetchError.
func IsFetchError(err error) bool {
	var fetchErr *FetchError
	return errors.As(err, &fetchErr)
}
