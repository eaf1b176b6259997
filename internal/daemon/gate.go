package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrUnreachable is returned when the startup connectivity probe fails.
var ErrUnreachable = errors.New("remote unreachable")

// Prober checks outbound reachability once.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// HTTPProber considers the network reachable when a GET to URL gets any
// HTTP response at all, whatever the status code.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

// NewHTTPProber creates a prober for url bounded by timeout.
func NewHTTPProber(url string, timeout time.Duration) *HTTPProber {
	return &HTTPProber{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return fmt.Errorf("invalid probe url %q: %w", p.URL, err)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()

	return nil
}

// CheckConnectivity runs the probe once. A failure is logged and returned
// wrapping ErrUnreachable; the caller is expected to exit before any file
// is watched.
func CheckConnectivity(ctx context.Context, prober Prober, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gate")

	if err := prober.Probe(ctx); err != nil {
		logger.Error("internet connection check failed", "error", err)
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	logger.Info("internet connected")
	return nil
}
