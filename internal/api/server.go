// Package api exposes the directory, comparison and selection engine over
// HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/compare-engine/internal/analysis"
	"github.com/sells-group/compare-engine/internal/diff"
	"github.com/sells-group/compare-engine/internal/entity"
	"github.com/sells-group/compare-engine/internal/geo"
	"github.com/sells-group/compare-engine/internal/selection"
)

// Loader builds a fresh directory snapshot, typically from the configured
// sources.
type Loader func(ctx context.Context) (*entity.Directory, error)

// Options wires the server's collaborators. Nil fields get working defaults.
// Schema is the configured domain schema; it keys raw-record toggles and
// answers /schema before the first load lands.
type Options struct {
	Schema   *entity.Schema
	Engine   *diff.Engine
	Analyzer *analysis.Analyzer
	Sessions *selection.Registry
	Viewport *geo.ViewportConfig
	Loader   Loader
}

// Server holds the current directory snapshot and the per-session selection
// sets. The snapshot is swapped wholesale on reload; sessions survive and
// re-resolve against the new data.
type Server struct {
	dir      atomic.Pointer[entity.Directory]
	loadedAt atomic.Pointer[time.Time]

	schema   *entity.Schema
	engine   *diff.Engine
	analyzer *analysis.Analyzer
	sessions *selection.Registry
	viewport geo.ViewportConfig
	loader   Loader

	reloadMu sync.Mutex
}

// New returns a Server with no directory loaded yet.
func New(opts Options) *Server {
	s := &Server{
		schema:   opts.Schema,
		engine:   opts.Engine,
		analyzer: opts.Analyzer,
		sessions: opts.Sessions,
		loader:   opts.Loader,
		viewport: geo.DefaultViewportConfig(),
	}
	if s.engine == nil {
		s.engine = diff.Default
	}
	if s.analyzer == nil {
		s.analyzer = analysis.New(nil, analysis.Options{})
	}
	if s.sessions == nil {
		if s.schema != nil {
			s.sessions = selection.NewRegistryForSchema(*s.schema)
		} else {
			s.sessions = selection.NewRegistry()
		}
	}
	if opts.Viewport != nil {
		s.viewport = *opts.Viewport
	}
	return s
}

// Directory returns the current snapshot, or nil while the first load is
// still running.
func (s *Server) Directory() *entity.Directory { return s.dir.Load() }

// SetDirectory replaces the snapshot.
func (s *Server) SetDirectory(d *entity.Directory) {
	now := time.Now()
	s.dir.Store(d)
	s.loadedAt.Store(&now)
}

// Sessions returns the selection registry.
func (s *Server) Sessions() *selection.Registry { return s.sessions }

// Reload runs the loader and swaps in its result. Concurrent reloads are
// serialized; a failed reload keeps the previous snapshot.
func (s *Server) Reload(ctx context.Context) error {
	if s.loader == nil {
		return eris.New("api: no loader configured")
	}
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	d, err := s.loader(ctx)
	if err != nil {
		return eris.Wrap(err, "api: reload directory")
	}
	s.SetDirectory(d)
	zap.L().Info("directory loaded",
		zap.Int("entities", d.Len()),
		zap.String("schema", d.Schema().Type),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// SweepSessions drops sessions idle for longer than idle, checking every
// interval until ctx ends.
func (s *Server) SweepSessions(ctx context.Context, idle, interval time.Duration) {
	if idle <= 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := s.sessions.Sweep(idle); n > 0 {
				zap.L().Debug("swept idle sessions", zap.Int("dropped", n))
			}
		}
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/schema", s.handleSchema)
	r.Get("/entities", s.handleEntities)
	r.Get("/entities/lookup", s.handleLookup)
	r.Get("/viewport", s.handleViewport)
	r.Get("/compare", s.handleCompare)
	r.Post("/compare/analysis", s.handleAnalysis)
	r.Post("/reload", s.handleReload)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDropSession)
			r.Post("/toggle", s.handleToggle)
			r.Delete("/keys/{key}", s.handleRemoveKey)
			r.Get("/compare", s.handleSessionCompare)
		})
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

type errorBody struct {
	Error  string `json:"error"`
	Status string `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeLoading answers 503 while the first directory load is running.
func writeLoading(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusServiceUnavailable, errorBody{
		Error:  "directory is still loading",
		Status: string(entity.StatusLoading),
	})
}
