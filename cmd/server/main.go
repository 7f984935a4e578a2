package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"

	"gitea.jw6.us/james/gigboard/internal/api"
	appauth "gitea.jw6.us/james/gigboard/internal/auth"
	"gitea.jw6.us/james/gigboard/internal/calendar"
	"gitea.jw6.us/james/gigboard/internal/config"
	httpserver "gitea.jw6.us/james/gigboard/internal/http"
	"gitea.jw6.us/james/gigboard/internal/store"
	"gitea.jw6.us/james/gigboard/internal/syncer"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "gigboard",
		Usage: "Gig board API that mirrors events into Google Calendar.",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			authCommand(),
			reconcileCommand(),
		},
		DefaultCommand: "serve",
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("gigboard failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "migrate", Usage: "Apply pending migrations before serving."},
			&cli.DurationFlag{Name: "reconcile-interval", Usage: "Retry local_only events on this interval; 0 disables."},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			setupLogger(cfg)
			ctx := c.Context

			pool, stor, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if c.Bool("migrate") {
				if err := stor.Migrate(ctx); err != nil {
					return fmt.Errorf("apply migrations: %w", err)
				}
			}

			cal, err := newCalendar(ctx, cfg.Calendar)
			if err != nil {
				return err
			}
			syncService := syncer.New(stor.Events, cal, slog.Default())

			authService := appauth.NewService(appauth.Deps{
				Credentials: stor.Credentials,
				Musicians:   stor.Musicians,
				Organizers:  stor.Organizers,
				Sessions:    appauth.NewSessionManager(cfg),
			})
			handler := api.NewHandler(stor, syncService, authService, cfg.Calendar.Location())

			srv := &http.Server{
				Addr:         cfg.ListenAddr,
				Handler:      httpserver.NewRouter(cfg, stor, handler, authService),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second + cfg.Calendar.Timeout,
				IdleTimeout:  60 * time.Second,
			}

			if interval := c.Duration("reconcile-interval"); interval > 0 && syncService.SyncEnabled() {
				go reconcileLoop(ctx, syncService, interval)
			}

			errCh := make(chan error, 1)
			go func() {
				slog.Info("server listening", "addr", cfg.ListenAddr, "calendar_sync", syncService.SyncEnabled())
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
			case <-ctx.Done():
			}
			slog.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("graceful shutdown failed", "error", err)
			}
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations and exit.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			setupLogger(cfg)

			pool, stor, err := openStore(c.Context, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := stor.Migrate(c.Context); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}
			slog.Info("migrations applied")
			return nil
		},
	}
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authorize Google Calendar access and store the token.",
		Action: func(c *cli.Context) error {
			cal, err := config.LoadCalendar()
			if err != nil {
				return fmt.Errorf("load calendar config: %w", err)
			}
			oauthCfg, err := calendar.OAuthConfig(*cal)
			if err != nil {
				return err
			}

			cache := calendar.NewTokenCache(oauthCfg, cal.TokenFile, calendar.PromptConsent(os.Stdin, os.Stdout)).WithTimeout(cal.Timeout)
			if _, err := cache.Acquire(c.Context); err != nil {
				return fmt.Errorf("acquire token: %w", err)
			}
			slog.Info("calendar token stored", "file", cal.TokenFile)
			return nil
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Push every local_only event to the remote calendar once.",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			setupLogger(cfg)

			pool, stor, err := openStore(c.Context, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			cal, err := newCalendar(c.Context, cfg.Calendar)
			if err != nil {
				return err
			}
			report, err := syncer.New(stor.Events, cal, slog.Default()).Reconcile(c.Context)
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d events still local_only", report.Failed, report.Checked)
			}
			return nil
		},
	}
}

func setupLogger(cfg *config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
}

func openStore(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, *store.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("create db pool: %w", err)
	}
	return pool, store.New(pool), nil
}

// newCalendar returns a nil Calendar when sync is disabled. A missing or
// revoked token only degrades sync; it never stops the server.
func newCalendar(ctx context.Context, cal config.Calendar) (syncer.Calendar, error) {
	if !cal.SyncEnabled {
		slog.Info("calendar sync disabled")
		return nil, nil
	}
	oauthCfg, err := calendar.OAuthConfig(cal)
	if err != nil {
		return nil, err
	}
	cache := calendar.NewTokenCache(oauthCfg, cal.TokenFile, nil).WithTimeout(cal.Timeout)
	if _, err := cache.Acquire(ctx); err != nil {
		slog.Warn("calendar credential unavailable; events will stay local_only until `gigboard auth` is run", "error", err)
	}

	// The client outlives ctx; the cache bounds each token refresh itself.
	httpClient := oauth2.NewClient(context.Background(), cache)
	g, err := calendar.NewGoogle(ctx, httpClient, calendar.GoogleOptions{
		CalendarID: cal.CalendarID,
		Location:   cal.Location(),
		Timeout:    cal.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

func reconcileLoop(ctx context.Context, svc *syncer.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.Reconcile(ctx); err != nil && ctx.Err() == nil {
				slog.Error("reconcile failed", "error", err)
			}
		}
	}
}
