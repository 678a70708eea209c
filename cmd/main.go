package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/birdeye-sniper/sniper_service/internal/infrastructure/config"
	"github.com/birdeye-sniper/sniper_service/internal/infrastructure/di"
	"github.com/birdeye-sniper/sniper_service/pkg/auth"
	"github.com/birdeye-sniper/sniper_service/pkg/graceful"
	"github.com/birdeye-sniper/sniper_service/pkg/logger"
	"github.com/birdeye-sniper/sniper_service/pkg/tracing"
)

func main() {
	issueToken := flag.String("issue-token", "", "print an ops API token for the named operator and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if *issueToken != "" {
		token, exp, err := auth.GenerateToken(*issueToken, auth.RoleOperator, cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TokenTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s\n# expires %s\n", token, exp.UTC().Format(time.RFC3339))
		return
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	tracingShutdown, err := tracing.InitTracer(context.Background(), tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		CollectorURL: cfg.Tracing.CollectorURL,
		Environment:  cfg.Environment,
		SampleRate:   cfg.Tracing.SampleRate,
		Insecure:     cfg.Tracing.Insecure,
	}, log.Zap())
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}

	container, err := di.NewContainer(cfg, log)
	if err != nil {
		log.Fatal("Failed to create DI container", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container.Prime(ctx)

	if err := container.Monitor.Start(ctx); err != nil {
		log.Fatal("Failed to start wallet monitor", "error", err)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		container.PriceWorker.Start(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := container.Bot.Run(ctx); err != nil {
			log.Error("Chat update loop exited", "error", err)
		}
	}()

	var server *http.Server
	if container.Router != nil {
		server = &http.Server{
			Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:        container.Router,
			ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxHeaderBytes: 1 << 20,
		}

		go func() {
			log.Info("Starting ops server", "port", cfg.Server.Port, "environment", cfg.Environment)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Ops server failed", "error", err)
				cancel()
			}
		}()
	}

	container.Notifier.AnnounceStartup(ctx, container.Monitor.BotAddress(), container.Monitor.Status().WalletCount)
	log.Info("BirdEye Sniper bot is running")

	shutdown := graceful.NewShutdownManager(30*time.Second, log)
	shutdown.Register("wallet monitor", func(context.Context) error {
		container.Monitor.Stop()
		return nil
	})
	shutdown.Register("price worker", func(context.Context) error {
		container.PriceWorker.Stop()
		return nil
	})
	if server != nil {
		shutdown.Register("ops server", server.Shutdown)
	}
	shutdown.Register("shutdown broadcast", func(ctx context.Context) error {
		container.Notifier.AnnounceShutdown(ctx)
		return nil
	})
	shutdown.Register("update loop", func(ctx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register("container", func(context.Context) error {
		container.Close()
		return nil
	})
	shutdown.Register("tracing", tracingShutdown)

	shutdown.WaitForShutdown(ctx)
	log.Info("Bot exited gracefully")
}
