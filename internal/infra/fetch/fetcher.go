// Package fetch retrieves image and label content over HTTP with bounded
// retry. Permanent failures (bad URL, HTTP error status, TLS problems) are
// not retried; transient ones (connection resets, timeouts, truncated
// bodies) are retried up to MaxAttempts times.
package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tutu-network/classifier/internal/domain"
)

// Config configures retry behavior.
type Config struct {
	MaxAttempts int           // total attempts, including the first
	RetryWait   time.Duration // pause between attempts
	Timeout     time.Duration // per-attempt timeout
	MaxBytes    int64         // response size cap; 0 = unlimited
	UserAgent   string
}

// DefaultConfig returns the retry defaults: five attempts one second apart.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		RetryWait:   1 * time.Second,
		Timeout:     30 * time.Second,
		MaxBytes:    64 << 20,
		UserAgent:   "classifier/0.1.0",
	}
}

// Fetcher implements domain.ContentFetcher.
type Fetcher struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a fetcher. A nil client uses a client with cfg.Timeout.
func New(cfg Config, client *http.Client, logger *slog.Logger) *Fetcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{cfg: cfg, client: client, logger: logger, sleep: sleepCtx}
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Fetch returns the bytes behind ref. ref may be an http(s) URL, a file://
// URL or a local path. Every failure wraps domain.ErrFetchFatal.
func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	u, err := parseRef(ref)
	if err != nil {
		f.logger.Warn("error opening URL", "url", ref, "error", err)
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFatal, err)
	}
	if u.Scheme == "file" {
		data, err := os.ReadFile(u.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrFetchFatal, err)
		}
		return data, nil
	}

	var lastErr error
	for attempt := 1; attempt <= f.cfg.MaxAttempts; attempt++ {
		data, err := f.get(ctx, u.String())
		if err == nil {
			return data, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			f.logger.Warn("error opening URL", "url", ref, "error", err)
			return nil, fmt.Errorf("%w: %v", domain.ErrFetchFatal, err)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrFetchFatal, ctx.Err())
		}
		if attempt == f.cfg.MaxAttempts {
			break
		}

		f.logger.Debug("error opening URL - making retry",
			"url", ref, "attempt", attempt, "max", f.cfg.MaxAttempts, "error", err)
		if err := f.sleep(ctx, f.cfg.RetryWait); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrFetchFatal, err)
		}
	}

	f.logger.Warn("opening URL failed after retries", "url", ref, "attempts", f.cfg.MaxAttempts)
	return nil, fmt.Errorf("%w after %d attempts: %v", domain.ErrFetchFatal, f.cfg.MaxAttempts, lastErr)
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &permanentError{err}
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if isTLSError(err) {
			return nil, &permanentError{err}
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &permanentError{fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	var body io.Reader = resp.Body
	if f.cfg.MaxBytes > 0 {
		body = io.LimitReader(resp.Body, f.cfg.MaxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if f.cfg.MaxBytes > 0 && int64(len(data)) > f.cfg.MaxBytes {
		return nil, &permanentError{fmt.Errorf("response larger than %d bytes", f.cfg.MaxBytes)}
	}
	return data, nil
}

// parseRef accepts http(s) and file URLs and bare local paths.
func parseRef(ref string) (*url.URL, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", domain.ErrUnsupported)
	}
	if !strings.Contains(ref, "://") {
		return &url.URL{Scheme: "file", Path: ref}, nil
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return nil, fmt.Errorf("%w: missing host in %q", domain.ErrUnsupported, ref)
		}
	case "file":
	default:
		return nil, fmt.Errorf("%w: scheme %q", domain.ErrUnsupported, u.Scheme)
	}
	return u, nil
}

func isTLSError(err error) bool {
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var recordErr tls.RecordHeaderError
	return errors.As(err, &certErr) || errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) || errors.As(err, &recordErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
