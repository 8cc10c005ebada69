package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/jensholdgaard/footy-fa-bot/internal/bot"
	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
	"github.com/jensholdgaard/footy-fa-bot/internal/config"
	"github.com/jensholdgaard/footy-fa-bot/internal/freeagency"
	"github.com/jensholdgaard/footy-fa-bot/internal/health"
	"github.com/jensholdgaard/footy-fa-bot/internal/leader"
	"github.com/jensholdgaard/footy-fa-bot/internal/notify"
	"github.com/jensholdgaard/footy-fa-bot/internal/store"
	"github.com/jensholdgaard/footy-fa-bot/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/footy-fa-bot/internal/store/memstore"
	_ "github.com/jensholdgaard/footy-fa-bot/internal/store/postgres"
	_ "github.com/jensholdgaard/footy-fa-bot/internal/store/sqlite"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath, *envPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath, envPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envPath, err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Telemetry.ServiceVersion = version

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()
	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	session, err := bot.Session(cfg.Discord)
	if err != nil {
		return err
	}
	notifier := notify.Multi{notify.NewDiscord(session, cfg.Discord.AuctionsLogChannel, cfg.Discord.BotLogsChannel)}
	checkers := []health.Checker{{Name: "database", Check: repos.Ping}}

	if cfg.NATS.URL != "" {
		nc, js, natsErr := notify.ConnectNATS(ctx, cfg.NATS.URL, cfg.NATS.Subject)
		if natsErr != nil {
			return fmt.Errorf("connecting to nats: %w", natsErr)
		}
		defer func() {
			if drainErr := nc.Drain(); drainErr != nil {
				logger.Error("nats drain error", slog.Any("error", drainErr))
			}
		}()
		notifier = append(notifier, notify.NewNATS(js, cfg.NATS.Subject, clk))
		checkers = append(checkers, health.Checker{Name: "nats", Check: natsCheck(nc)})
		logger.InfoContext(ctx, "mirroring free agency events to nats", slog.String("subject", cfg.NATS.Subject))
	}

	fa, err := freeagency.NewManager(repos, notifier, cfg.FreeAgency, logger, tp.TracerProvider, tp.MeterProvider, clk)
	if err != nil {
		return fmt.Errorf("creating free agency manager: %w", err)
	}

	healthHandler := health.NewHandler(clk, checkers...)
	healthHandler.AddReporter(health.Reporter{Name: "phase", Report: fa.Phase})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting health server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "health server error", slog.Any("error", listenErr))
		}
	}()

	discordBot := bot.New(session, cfg.Discord, fa, logger, tp.TracerProvider)

	// serve holds the Discord session until ctx is done. Only one replica
	// may run it at a time.
	serve := func(ctx context.Context) error {
		if err := discordBot.Start(ctx); err != nil {
			return fmt.Errorf("starting bot: %w", err)
		}
		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "fabot is running", slog.String("version", version))

		<-ctx.Done()

		healthHandler.SetReady(false)
		if err := discordBot.Stop(); err != nil {
			logger.Error("bot shutdown error", slog.Any("error", err))
		}
		return nil
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership")
		err = leader.Run(ctx, cfg.LeaderElection, logger,
			func(ctx context.Context) {
				if serveErr := serve(ctx); serveErr != nil {
					logger.ErrorContext(ctx, "serving as leader failed", slog.Any("error", serveErr))
					cancel()
				}
			},
			func() {
				logger.Info("lost leadership, shutting down")
				cancel()
			},
		)
		if err != nil {
			return fmt.Errorf("leader election: %w", err)
		}
	} else if err := serve(ctx); err != nil {
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}

func natsCheck(nc *nats.Conn) func(context.Context) error {
	return func(context.Context) error {
		if !nc.IsConnected() {
			return fmt.Errorf("nats connection %s", nc.Status())
		}
		return nil
	}
}
