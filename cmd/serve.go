package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/compare-engine/internal/analysis"
	"github.com/sells-group/compare-engine/internal/api"
	"github.com/sells-group/compare-engine/internal/config"
	"github.com/sells-group/compare-engine/internal/entity"
	"github.com/sells-group/compare-engine/internal/selection"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the directory and comparison API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		srv, an, err := newAPIServer(cfg)
		if err != nil {
			return err
		}
		defer an.Close() //nolint:errcheck

		// Load in the background; handlers answer "loading" until it lands.
		go func() {
			if err := srv.Reload(ctx); err != nil {
				zap.L().Error("initial directory load failed", zap.Error(err))
			}
		}()
		go srv.SweepSessions(ctx, cfg.Session.IdleTimeout, cfg.Session.SweepInterval)

		httpSrv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		ln, err := net.Listen("tcp", httpSrv.Addr)
		if err != nil {
			return eris.Wrap(err, "server listen")
		}

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		return runServer(ctx, httpSrv, ln, cfg.Server.ShutdownTimeout, func() {
			if calls, usd, ok := an.Spend(); ok {
				zap.L().Info("analysis spend", zap.Int("calls", calls), zap.Float64("cost_usd", usd))
			}
		})
	},
}

// runServer serves on ln until ctx ends, then drains within timeout and runs
// onShutdown. It returns only after the drain and onShutdown have finished.
func runServer(ctx context.Context, httpSrv *http.Server, ln net.Listener, timeout time.Duration, onShutdown func()) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
		if onShutdown != nil {
			onShutdown()
		}
	}()

	if err := httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server serve")
	}
	<-done
	return nil
}

// newAPIServer wires the API to the configured sources, diff engine and
// analysis backend.
func newAPIServer(c *config.Config) (*api.Server, *analysis.Analyzer, error) {
	engine, err := newEngine(c)
	if err != nil {
		return nil, nil, err
	}
	sc, err := resolveSchema(c)
	if err != nil {
		return nil, nil, err
	}
	an, err := newAnalyzer(c, engine)
	if err != nil {
		return nil, nil, err
	}
	vp := c.Viewport
	return api.New(api.Options{
		Schema:   &sc,
		Engine:   engine,
		Analyzer: an,
		Sessions: selection.NewRegistryForSchema(sc),
		Viewport: &vp,
		Loader: func(ctx context.Context) (*entity.Directory, error) {
			return loadDirectory(ctx, c)
		},
	}), an, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
