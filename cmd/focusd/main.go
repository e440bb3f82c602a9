// Entry point for the focusd daemon: browser watcher, session
// coordinator, HTTP/WebSocket API, optional MCP over stdio.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/karstvig/focusd/coordinator"
	"github.com/karstvig/focusd/httpapi"
	"github.com/karstvig/focusd/pagewatch"
)

func main() {
	port := env("PORT", "8087")
	pagewatchConfig := env("PAGEWATCH_CONFIG", "pagewatch.yaml")
	coordConfig := env("COORDINATOR_CONFIG", "coordinator.yaml")
	mcpTransport := env("MCP_TRANSPORT", "")
	startURL := env("START_URL", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pwCfg, err := loadPagewatchConfig(pagewatchConfig)
	if err != nil {
		slog.Error("pagewatch config", "path", pagewatchConfig, "error", err)
		os.Exit(1)
	}
	coordCfg, err := loadCoordinatorConfig(coordConfig)
	if err != nil {
		slog.Error("coordinator config", "path", coordConfig, "error", err)
		os.Exit(1)
	}

	// Verdict fan-out to WebSocket clients.
	hub := httpapi.NewHub(logger)

	coord, err := coordinator.New(coordCfg, logger, coordinator.WithPublisher(hub))
	if err != nil {
		slog.Error("coordinator", "error", err)
		os.Exit(1)
	}
	defer coord.Close()

	watcher := pagewatch.New(pwCfg, logger, coord.Sink())
	coord.SetPages(watcher)

	if err := watcher.Start(ctx); err != nil {
		slog.Error("start watcher", "error", err)
		os.Exit(1)
	}
	defer watcher.Stop()

	if startURL != "" {
		if _, err := watcher.WatchPage(ctx, startURL); err != nil {
			slog.Error("watch start url", "url", startURL, "error", err)
		}
	}

	// Hot-reload pagewatch timings when the config file changes.
	go watchConfig(ctx, pagewatchConfig, watcher, logger)

	// Optional MCP over stdio.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "focusd",
			Version: "1.0.0",
		}, nil)
		coord.RegisterMCP(mcpSrv)
		go func() {
			slog.Info("MCP stdio starting")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("MCP stdio", "error", err)
			}
		}()
	}

	// HTTP API.
	var apiOpts []httpapi.Option
	if pass := os.Getenv("AUTH_PASSWORD"); pass != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
		if err != nil {
			slog.Error("hash password", "error", err)
			os.Exit(1)
		}
		apiOpts = append(apiOpts, httpapi.WithPasswordHash(hash))
	}
	api := httpapi.New(coord, hub, logger, apiOpts...)

	srv := &http.Server{
		Addr:              "127.0.0.1:" + port,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// loadPagewatchConfig reads the YAML file, or falls back to defaults
// when the file does not exist.
func loadPagewatchConfig(path string) (*pagewatch.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := &pagewatch.Config{}
		cfg.ApplyDefaults()
		return cfg, nil
	}
	return pagewatch.LoadConfigFile(path)
}

func loadCoordinatorConfig(path string) (*coordinator.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &coordinator.Config{}, nil
	}
	return coordinator.LoadConfigFile(path)
}

// watchConfig reapplies stabilization timings when the pagewatch config
// file is rewritten. Tabs opened after the change pick them up.
func watchConfig(ctx context.Context, path string, watcher *pagewatch.Watcher, logger *slog.Logger) {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("config watch", "error", err)
		return
	}
	defer fsW.Close()

	if err := fsW.Add(path); err != nil {
		// Missing file: nothing to watch, defaults stay in effect.
		logger.Debug("config watch", "path", path, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsW.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := pagewatch.LoadConfigFile(path)
			if err != nil {
				logger.Warn("config reload", "path", path, "error", err)
				continue
			}
			watcher.ApplyTimings(cfg.Stabilize, cfg.Trigger)
		case err, ok := <-fsW.Errors:
			if !ok {
				return
			}
			logger.Warn("config watch", "error", err)
		}
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
