// Command satlensd is the satlens daemon: it serves the HTTP preview and
// API, optionally drives a browser for live page annotation, hot-reloads
// connectivity routes, and prunes old conversion stats.
//
// Usage:
//
//	satlensd -config satlensd.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/satlens/satlens"
	"github.com/satlens/satlens/live"
	"github.com/satlens/satlens/mutation"
	"github.com/satlens/satlens/server"
	"github.com/satlens/satlens/stats"
)

func main() {
	configPath := flag.String("config", "", "path to satlensd.yaml")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath); err != nil {
		logger.Error("satlensd: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string) error {
	cfg := &satlens.Config{}
	if configPath != "" {
		loaded, err := satlens.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	svc, err := satlens.New(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	// Route table and preference hot reload.
	go svc.Router().Watch(ctx, svc.DB(), 2*time.Second)
	go svc.WatchPreferences(ctx, 2*time.Second)

	// Nightly stats pruning.
	if cfg.Stats.Enabled {
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := stats.Cleanup(ctx, svc.DB(), cfg.Stats.RetentionDays); err != nil {
						logger.Warn("satlensd: stats cleanup", "error", err)
						continue
					}
					logger.Info("satlensd: stats pruned", "retention_days", cfg.Stats.RetentionDays)
				}
			}
		}()
	}

	// Live browser engine.
	if cfg.Live.Enabled {
		engine := live.NewEngine(svc, live.Config{
			AttachURL: cfg.Live.AttachURL,
			Headless:  cfg.Live.Headless,
			Stealth:   cfg.Live.Stealth,
			Debounce:  mutation.DebounceConfig{Window: cfg.Live.Debounce},
			Logger:    logger,
		})
		if err := engine.Start(ctx); err != nil {
			return fmt.Errorf("live engine: %w", err)
		}
		defer engine.Close()

		for _, pageURL := range cfg.Live.Pages {
			if err := engine.Watch(ctx, pageURL); err != nil {
				logger.Warn("satlensd: watch page", "url", pageURL, "error", err)
			}
		}
	}

	opts := []server.Option{server.WithLogger(logger)}
	if cfg.Server.MCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "satlens",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		opts = append(opts, server.WithMCPServer(mcpSrv))
	}

	logger.Info("satlensd: running", "addr", cfg.Server.Addr,
		"live", cfg.Live.Enabled, "mcp", cfg.Server.MCP)

	srv := server.New(svc, opts...)
	return srv.Run(ctx, cfg.Server.Addr)
}
