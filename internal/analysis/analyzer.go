// Package analysis produces narrative comparisons of two entities, preferring
// a remote backend and falling back to a local rule-based summary.
package analysis

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compare-engine/internal/cache"
	"github.com/sells-group/compare-engine/internal/entity"
	"github.com/sells-group/compare-engine/internal/record"
	"github.com/sells-group/compare-engine/internal/resilience"
)

// Source values reported in an Outcome.
const (
	SourceRemote = "remote"
	SourceLocal  = "local"
)

// ErrEmptyResponse is reported when the backend answers with no text.
var ErrEmptyResponse = eris.New("no textual analysis returned by the server")

// Outcome is the result of a comparison. Err carries the remote failure
// message when Source is local because the backend failed.
type Outcome struct {
	Text    string `json:"text"`
	Source  string `json:"source"`
	Backend string `json:"backend,omitempty"`
	Err     string `json:"error,omitempty"`
	Cached  bool   `json:"cached,omitempty"`
}

// Cache remembers remote comparison text. A miss is ("", false, nil).
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, text string) error
}

// Options tunes the Analyzer.
type Options struct {
	Timeout time.Duration
	Retry   resilience.RetryPolicy
	Breaker resilience.BreakerConfig
	Cache   Cache
}

// Analyzer compares entities through a Backend guarded by a circuit breaker
// and retries. It is safe for concurrent use.
type Analyzer struct {
	backend Backend
	breaker *resilience.Breaker
	retry   resilience.RetryPolicy
	timeout time.Duration
	cache   Cache
}

// New returns an Analyzer. A nil backend makes every comparison local.
func New(backend Backend, opts Options) *Analyzer {
	a := &Analyzer{backend: backend, retry: opts.Retry, timeout: opts.Timeout, cache: opts.Cache}
	if backend != nil {
		if a.retry.OnRetry == nil {
			a.retry.OnRetry = resilience.LogRetry(backend.Name(), "compare")
		}
		if opts.Breaker.OnChange == nil {
			opts.Breaker.OnChange = resilience.LogStateChange
		}
		a.breaker = resilience.NewBreaker(backend.Name(), opts.Breaker)
	}
	return a
}

// Breaker exposes the backend's circuit breaker, or nil without a backend.
func (an *Analyzer) Breaker() *resilience.Breaker { return an.breaker }

type spender interface {
	Spend() (int, float64)
}

// Spend reports priced remote calls and their total cost when the backend
// tracks them.
func (an *Analyzer) Spend() (calls int, usd float64, ok bool) {
	if an == nil {
		return 0, 0, false
	}
	s, ok := an.backend.(spender)
	if !ok {
		return 0, 0, false
	}
	calls, usd = s.Spend()
	return calls, usd, true
}

// Compare returns a remote analysis when the backend succeeds and the local
// summary otherwise.
func (an *Analyzer) Compare(ctx context.Context, a, b *entity.Entity) Outcome {
	if a == nil || b == nil {
		return Outcome{Text: NoSelection, Source: SourceLocal}
	}
	if an == nil || an.backend == nil {
		return Outcome{Text: LocalSummary(a, b), Source: SourceLocal}
	}

	var key string
	if an.cache != nil {
		key = CacheKey(an.backend.Name(), a, b)
		text, ok, err := an.cache.Get(ctx, key)
		if err != nil {
			zap.L().Warn("analysis: cache lookup failed", zap.Error(err))
		} else if ok {
			return Outcome{Text: text, Source: SourceRemote, Backend: an.backend.Name(), Cached: true}
		}
	}

	if an.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, an.timeout)
		defer cancel()
	}

	text, err := resilience.Call(ctx, an.breaker, func(ctx context.Context) (string, error) {
		return resilience.RetryVal(ctx, an.retry, func(ctx context.Context) (string, error) {
			return an.backend.Analyze(ctx, a, b)
		})
	})
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyResponse
	}
	if err != nil {
		zap.L().Warn("analysis: remote comparison failed, using local summary",
			zap.String("backend", an.backend.Name()),
			zap.String("a", a.Name),
			zap.String("b", b.Name),
			zap.Error(err),
		)
		return Outcome{
			Text:    LocalSummary(a, b),
			Source:  SourceLocal,
			Backend: an.backend.Name(),
			Err:     err.Error(),
		}
	}
	if an.cache != nil {
		if err := an.cache.Set(ctx, key, text); err != nil {
			zap.L().Warn("analysis: cache store failed", zap.Error(err))
		}
	}
	return Outcome{Text: text, Source: SourceRemote, Backend: an.backend.Name()}
}

// Close releases the cache connection when the cache holds one.
func (an *Analyzer) Close() error {
	if an == nil {
		return nil
	}
	if c, ok := an.cache.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CacheKey identifies a comparison by backend and the two entities' full
// attribute values, so edited data never hits a stale entry.
func CacheKey(backend string, a, b *entity.Entity) string {
	parts := []string{backend}
	for _, e := range []*entity.Entity{a, b} {
		for _, f := range e.Fields() {
			parts = append(parts, f.Name+"="+record.Format(f.Value))
		}
	}
	return cache.Key(parts...)
}
