package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/folioqa/internal/api"
	"github.com/kalambet/folioqa/internal/catalog"
	"github.com/kalambet/folioqa/internal/config"
	"github.com/kalambet/folioqa/internal/qa"
	"github.com/kalambet/folioqa/internal/storage"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the folioqa server (foreground)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}
}

// appStore is what the server needs from a storage backend.
type appStore interface {
	qa.Store
	catalog.Store
	Close() error
}

func openStore(cfg config.StorageConfig) (appStore, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return storage.NewMemory(), nil
	case config.DriverSQLite:
		s, err := storage.Open(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverPostgres:
		s, err := storage.OpenPostgres(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

type app struct {
	store   appStore
	deps    api.Deps
	handler http.Handler
}

// newApp opens storage, seeds the catalog and builds the HTTP handler.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	store, err := openStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Driver, err)
	}

	if cfg.Catalog.Seed {
		answers, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("loading catalog: %w", err)
		}
		n, err := catalog.Seed(ctx, store, answers)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("seeding catalog: %w", err)
		}
		if n > 0 {
			slog.Info("seeded answer catalog", "answers", n)
		}
	}

	deps := api.Deps{QA: qa.NewService(store)}
	return &app{
		store:   store,
		deps:    deps,
		handler: api.NewHandler(deps),
	}, nil
}

func parseLogLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] unknown log level %q. Using info.\n", s)
		return slog.LevelInfo
	}
	return lvl
}

func runServer(ctx context.Context, cfg config.Config) error {
	fmt.Fprintf(os.Stderr, "folioqa version %s\n", version)

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)})))

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("folioqa listening", "addr", addr, "storage", cfg.Storage.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	// stdout belongs to the MCP transport when stdio is enabled.
	if cfg.MCP.Stdio {
		stdioSrv := server.NewStdioServer(api.NewMCPServer(a.deps, version))
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("MCP stdio server: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}
