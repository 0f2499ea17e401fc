package source

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/compare-engine/internal/record"
	"github.com/sells-group/compare-engine/internal/resilience"
)

// HTTPOptions configures an HTTP source.
type HTTPOptions struct {
	Format    Format
	Timeout   time.Duration
	UserAgent string
	// RateLimit caps requests per second; 0 disables limiting.
	RateLimit float64
	Retry     resilience.RetryPolicy
	Decode    Options
	Client    *http.Client
}

// HTTP fetches a record export over HTTP(S), such as the directory backend's
// GET /developers endpoint.
type HTTP struct {
	name    string
	url     string
	opts    HTTPOptions
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTP returns an HTTP source for rawURL.
func NewHTTP(name, rawURL string, opts HTTPOptions) *HTTP {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "compare-engine/1.0"
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.LogRetry("http", name)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	h := &HTTP{name: name, url: rawURL, opts: opts, client: client}
	if opts.RateLimit > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return h
}

// Name implements Source.
func (h *HTTP) Name() string { return h.name }

// Load implements Source.
func (h *HTTP) Load(ctx context.Context) ([]record.Raw, error) {
	return resilience.RetryVal(ctx, h.opts.Retry, h.fetch)
}

func (h *HTTP) fetch(ctx context.Context) ([]record.Raw, error) {
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "http: rate limiter wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "http: build request")
	}
	req.Header.Set("User-Agent", h.opts.UserAgent)
	req.Header.Set("Accept", "application/json, text/csv;q=0.9, */*;q=0.5")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "http: get %s", h.url)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := eris.Errorf("http: unexpected status %d from %s", resp.StatusCode, h.url)
		if resilience.RetryableStatus(resp.StatusCode) {
			return nil, resilience.Transient(err, resp.StatusCode)
		}
		return nil, err
	}

	format := h.opts.Format
	if format == "" {
		format = DetectFormat(req.URL.Path, resp.Header.Get("Content-Type"))
	}
	if format == "" {
		format = FormatJSON
	}
	zap.L().Debug("http: decoding response",
		zap.String("url", h.url),
		zap.String("format", string(format)),
	)
	return Decode(ctx, format, resp.Body, h.opts.Decode)
}
