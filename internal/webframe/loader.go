// Package webframe is linkshot's own headless host: it loads link targets
// over HTTP and captures their preview image instead of a rendered frame.
package webframe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/semaphore"
)

// Loader defaults.
const (
	DefaultTimeout      = 15 * time.Second
	DefaultUserAgent    = "linkshot/1.0 (+https://github.com/starford/linkshot)"
	DefaultMaxAttempts  = 3
	DefaultMaxBodyBytes = 5 << 20
	DefaultConcurrency  = 4

	// DefaultMaxImagePixels caps width*height of a preview image before it
	// is decoded.
	DefaultMaxImagePixels = 25_000_000
)

var (
	// ErrNoImage means the page declares no preview image.
	ErrNoImage = errors.New("webframe: page has no preview image")
	// ErrTooLarge means a response exceeded the body limit.
	ErrTooLarge = errors.New("webframe: response too large")
	// ErrImageTooLarge means an image declares more pixels than allowed.
	ErrImageTooLarge = errors.New("webframe: image dimensions too large")
)

// statusError is a non-2xx response.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webframe: GET %s: status %d", e.url, e.code)
}

// retryable reports whether another attempt may succeed.
func retryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return !errors.Is(err, ErrTooLarge)
}

// Backoff returns the wait before attempt n+1 (0-indexed) with jitter.
func Backoff(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * 250 * time.Millisecond
	if base > 5*time.Second {
		base = 5 * time.Second
	}
	return base + time.Duration(rand.Int64N(int64(base)/2+1))
}

// Loader fetches pages and images.
type Loader struct {
	client      *http.Client
	userAgent   string
	maxAttempts int
	maxBody     int64
	maxPixels   int64
	backoff     func(int) time.Duration
	sem         *semaphore.Weighted
	logger      *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

func WithClient(c *http.Client) LoaderOption { return func(l *Loader) { l.client = c } }

func WithUserAgent(ua string) LoaderOption {
	return func(l *Loader) {
		if ua != "" {
			l.userAgent = ua
		}
	}
}

func WithMaxAttempts(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

func WithMaxBodyBytes(n int64) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxBody = n
		}
	}
}

// WithMaxImagePixels caps the declared width*height of fetched images.
func WithMaxImagePixels(n int64) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.maxPixels = n
		}
	}
}

// WithBackoff replaces the retry wait schedule.
func WithBackoff(fn func(attempt int) time.Duration) LoaderOption {
	return func(l *Loader) { l.backoff = fn }
}

// WithConcurrency bounds the number of requests in flight.
func WithConcurrency(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

func WithLoaderLogger(lg *slog.Logger) LoaderOption { return func(l *Loader) { l.logger = lg } }

// NewLoader creates a Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		client:      &http.Client{Timeout: DefaultTimeout},
		userAgent:   DefaultUserAgent,
		maxAttempts: DefaultMaxAttempts,
		maxBody:     DefaultMaxBodyBytes,
		maxPixels:   DefaultMaxImagePixels,
		backoff:     Backoff,
		sem:         semaphore.NewWeighted(DefaultConcurrency),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Fetch loads and parses the page at rawURL.
func (l *Loader) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	base, err := url.Parse(rawURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("webframe: unsupported address %q", rawURL)
	}
	body, err := l.get(ctx, rawURL, "text/html,application/xhtml+xml")
	if err != nil {
		return nil, err
	}
	return ParsePage(bytes.NewReader(body), base)
}

// FetchImage downloads and decodes a JPEG, PNG or GIF image. Images whose
// header declares more than the pixel cap are rejected before decoding.
func (l *Loader) FetchImage(ctx context.Context, rawURL string) (image.Image, error) {
	body, err := l.get(ctx, rawURL, "image/*")
	if err != nil {
		return nil, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("webframe: decode image header %s: %w", rawURL, err)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > l.maxPixels {
		return nil, fmt.Errorf("%w: %s is %dx%d", ErrImageTooLarge, rawURL, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("webframe: decode image %s: %w", rawURL, err)
	}
	return img, nil
}

func (l *Loader) get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)

	var lastErr error
	for attempt := 0; attempt < l.maxAttempts; attempt++ {
		if attempt > 0 {
			wait := l.backoff(attempt - 1)
			l.logger.Debug("webframe: retrying",
				slog.String("url", rawURL),
				slog.Int("attempt", attempt+1),
				slog.Duration("wait", wait),
				slog.String("error", lastErr.Error()))
			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}
		body, err := l.once(ctx, rawURL, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (l *Loader) once(ctx context.Context, rawURL, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("webframe: build request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webframe: GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode, url: rawURL}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("webframe: read %s: %w", rawURL, err)
	}
	if int64(len(body)) > l.maxBody {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, rawURL)
	}
	return body, nil
}
