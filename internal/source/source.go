// Package source loads raw directory records from files, HTTP and FTP
// endpoints, Postgres, SQLite and MongoDB queries, and shapefiles.
package source

import (
	"context"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/compare-engine/internal/record"
)

// Source yields a full snapshot of raw records on every Load.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]record.Raw, error)
}

// Kind identifies a source implementation.
type Kind string

// Supported source kinds.
const (
	KindFile      Kind = "file"
	KindHTTP      Kind = "http"
	KindFTP       Kind = "ftp"
	KindPostgres  Kind = "postgres"
	KindSQLite    Kind = "sqlite"
	KindShapefile Kind = "shapefile"
	KindMongo     Kind = "mongodb"
)

// Spec describes one configured source.
type Spec struct {
	Name      string        `yaml:"name" mapstructure:"name"`
	Kind      Kind          `yaml:"kind" mapstructure:"kind"`
	Path      string        `yaml:"path" mapstructure:"path"`
	URL       string        `yaml:"url" mapstructure:"url"`
	Format    Format        `yaml:"format" mapstructure:"format"`
	Query     string        `yaml:"query" mapstructure:"query"`
	Sheet     string        `yaml:"sheet" mapstructure:"sheet"`
	Delimiter string        `yaml:"delimiter" mapstructure:"delimiter"`
	RateLimit float64       `yaml:"rate_limit" mapstructure:"rate_limit"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Database and Collection select the MongoDB collection; Query is then
	// an extended-JSON filter.
	Database   string `yaml:"database" mapstructure:"database"`
	Collection string `yaml:"collection" mapstructure:"collection"`
}

// ResolveKind returns the explicit kind or infers one from the URL scheme or
// the path's extension.
func (s Spec) ResolveKind() Kind {
	if s.Kind != "" {
		return Kind(strings.ToLower(string(s.Kind)))
	}
	if s.URL != "" {
		if u, err := url.Parse(s.URL); err == nil {
			switch strings.ToLower(u.Scheme) {
			case "http", "https":
				return KindHTTP
			case "ftp":
				return KindFTP
			case "postgres", "postgresql":
				return KindPostgres
			case "mongodb", "mongodb+srv":
				return KindMongo
			}
		}
	}
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".shp":
		return KindShapefile
	case ".db", ".sqlite", ".sqlite3":
		return KindSQLite
	}
	return KindFile
}

func (s Spec) label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.Path != "" {
		return filepath.Base(s.Path)
	}
	if u, err := url.Parse(s.URL); err == nil && u.Host != "" {
		return u.Host + u.Path
	}
	return string(s.ResolveKind())
}

func (s Spec) options() Options {
	opts := Options{Sheet: s.Sheet}
	if r := []rune(s.Delimiter); len(r) > 0 {
		opts.Delimiter = r[0]
	}
	return opts
}

// New builds the Source described by spec. Sources that hold connections
// implement io.Closer.
func New(ctx context.Context, spec Spec) (Source, error) {
	name := spec.label()
	switch spec.ResolveKind() {
	case KindFile:
		if spec.Path == "" {
			return nil, eris.Errorf("source %s: file source needs a path", name)
		}
		return &File{name: name, Path: spec.Path, Format: spec.Format, Options: spec.options()}, nil
	case KindHTTP:
		if spec.URL == "" {
			return nil, eris.Errorf("source %s: http source needs a url", name)
		}
		return NewHTTP(name, spec.URL, HTTPOptions{
			Format:    spec.Format,
			Timeout:   spec.Timeout,
			RateLimit: spec.RateLimit,
			Decode:    spec.options(),
		}), nil
	case KindFTP:
		if spec.URL == "" {
			return nil, eris.Errorf("source %s: ftp source needs a url", name)
		}
		return &FTP{name: name, URL: spec.URL, Format: spec.Format, Timeout: spec.Timeout, Options: spec.options()}, nil
	case KindPostgres:
		return OpenPostgres(ctx, name, spec.URL, spec.Query)
	case KindSQLite:
		return OpenSQLite(name, spec.Path, spec.Query)
	case KindShapefile:
		return &Shapefile{name: name, Path: spec.Path}, nil
	case KindMongo:
		return OpenMongo(ctx, name, spec.URL, spec.Database, spec.Collection, spec.Query)
	default:
		return nil, eris.Errorf("source %s: unknown kind %q", name, spec.Kind)
	}
}

// Open builds every source in specs. On error, sources opened so far are
// closed.
func Open(ctx context.Context, specs []Spec) ([]Source, error) {
	out := make([]Source, 0, len(specs))
	for _, spec := range specs {
		s, err := New(ctx, spec)
		if err != nil {
			CloseAll(out)
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// CloseAll closes every source that holds resources.
func CloseAll(sources []Source) {
	for _, s := range sources {
		c, ok := s.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			zap.L().Warn("source: close failed", zap.String("source", s.Name()), zap.Error(err))
		}
	}
}

// LoadAll loads sources concurrently, at most limit at a time (0 means no
// limit), and concatenates their records in source order. Any failure cancels
// the remaining loads.
func LoadAll(ctx context.Context, sources []Source, limit int) ([]record.Raw, error) {
	results := make([][]record.Raw, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, s := range sources {
		g.Go(func() error {
			start := time.Now()
			recs, err := s.Load(gctx)
			if err != nil {
				return eris.Wrapf(err, "source %s", s.Name())
			}
			zap.L().Info("source loaded",
				zap.String("source", s.Name()),
				zap.Int("records", len(recs)),
				zap.Duration("elapsed", time.Since(start)),
			)
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	n := 0
	for _, r := range results {
		n += len(r)
	}
	all := make([]record.Raw, 0, n)
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// Static serves a fixed record set.
type Static struct {
	Label   string
	Records []record.Raw
}

// Name implements Source.
func (s *Static) Name() string { return s.Label }

// Load implements Source.
func (s *Static) Load(context.Context) ([]record.Raw, error) {
	return s.Records, nil
}
