package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compare-engine/internal/analysis"
	"github.com/sells-group/compare-engine/internal/cache"
	"github.com/sells-group/compare-engine/internal/config"
	"github.com/sells-group/compare-engine/internal/cost"
	"github.com/sells-group/compare-engine/internal/diff"
	"github.com/sells-group/compare-engine/internal/entity"
	"github.com/sells-group/compare-engine/internal/source"
	"github.com/sells-group/compare-engine/pkg/anthropic"
)

// resolveSchema returns the configured schema, loading overrides first.
func resolveSchema(c *config.Config) (entity.Schema, error) {
	reg, err := entity.LoadSchemas(c.Schema.Path)
	if err != nil {
		return entity.Schema{}, err
	}
	sc, ok := reg.Get(c.Schema.Type)
	if !ok {
		return entity.Schema{}, eris.Errorf("unknown schema type %q", c.Schema.Type)
	}
	return sc, nil
}

// loadDirectory reads every configured source and canonicalizes the result.
func loadDirectory(ctx context.Context, c *config.Config) (*entity.Directory, error) {
	sc, err := resolveSchema(c)
	if err != nil {
		return nil, err
	}
	sources, err := source.Open(ctx, c.Sources)
	if err != nil {
		return nil, err
	}
	defer source.CloseAll(sources)

	start := time.Now()
	raws, err := source.LoadAll(ctx, sources, c.Load.Concurrency)
	if err != nil {
		return nil, eris.Wrap(err, "load sources")
	}
	d := entity.NewDirectory(raws, sc)
	zap.L().Debug("directory built",
		zap.Int("records", len(raws)),
		zap.Int("entities", d.Len()),
		zap.Int("mappable", len(d.Mappable())),
		zap.Duration("elapsed", time.Since(start)),
	)
	return d, nil
}

func newEngine(c *config.Config) (*diff.Engine, error) {
	return diff.New(c.Compare.ExcludePattern)
}

// newBackend builds the analysis backend the config selects; nil means local
// summaries only.
func newBackend(c *config.Config, engine *diff.Engine) (analysis.Backend, error) {
	switch c.AnalysisBackend() {
	case config.BackendAnthropic:
		opts := []anthropic.Option{anthropic.WithMaxRetries(0)}
		if c.Anthropic.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(c.Anthropic.BaseURL))
		}
		return &analysis.Claude{
			Client:    anthropic.NewClient(c.Anthropic.Key, opts...),
			Model:     c.Anthropic.Model,
			MaxTokens: c.Anthropic.MaxTokens,
			Engine:    engine,
			MaxDiffs:  c.Compare.MaxFields,
			Cost:      cost.NewTracker(cost.NewCalculator(c.Cost)),
		}, nil
	case config.BackendEndpoint:
		return analysis.NewEndpoint(c.Analysis.EndpointURL, c.Analysis.Timeout), nil
	case config.BackendLocal:
		return nil, nil
	default:
		return nil, eris.Errorf("unknown analysis backend %q", c.Analysis.Backend)
	}
}

func newAnalyzer(c *config.Config, engine *diff.Engine) (*analysis.Analyzer, error) {
	backend, err := newBackend(c, engine)
	if err != nil {
		return nil, err
	}
	opts := analysis.Options{
		Timeout: c.Analysis.Timeout,
		Retry:   c.Retry,
		Breaker: c.Breaker,
	}
	if backend != nil && c.Cache.RedisAddr != "" {
		opts.Cache = cache.New(c.Cache.RedisAddr, c.Cache.RedisPassword, c.Cache.RedisDB, c.Cache.TTL)
		zap.L().Debug("analysis cache enabled", zap.String("addr", c.Cache.RedisAddr))
	}
	return analysis.New(backend, opts), nil
}
