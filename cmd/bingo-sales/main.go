// Package main запускает HTTP-сервер сервиса продаж бинго-карточек.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/bingo-sales/internal/commission"
	"github.com/mmeshcher/bingo-sales/internal/config"
	"github.com/mmeshcher/bingo-sales/internal/counters"
	"github.com/mmeshcher/bingo-sales/internal/events"
	"github.com/mmeshcher/bingo-sales/internal/handler"
	"github.com/mmeshcher/bingo-sales/internal/metrics"
	"github.com/mmeshcher/bingo-sales/internal/middleware"
	"github.com/mmeshcher/bingo-sales/internal/repository"
	"github.com/mmeshcher/bingo-sales/internal/service"
)

// eventTransport доставляет события изменения карточек от сервиса к счётчикам.
type eventTransport interface {
	events.Publisher
	events.Subscriber
	Close() error
}

const eventBusBuffer = 1024

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	auth := middleware.NewAuthorizer(cfg.AuthSecret)

	if cfg.IssueToken != "" {
		token, err := auth.IssueToken("cli", cfg.TokenCaps(), cfg.IssueTokenTTL)
		if err != nil {
			sugar.Fatalw("issue token error", "error", err.Error())
		}
		fmt.Println(token)
		return
	}

	if cfg.AuthDisabled {
		auth = middleware.NewInsecureAuthorizer()
	}
	if !auth.Enabled() {
		sugar.Warn("API authorization is disabled, every request gets admin rights")
	}

	policy, err := commission.New(cfg.Commission())
	if err != nil {
		sugar.Fatalw("commission configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var transport eventTransport
	if cfg.NATSURL != "" {
		nc, err := events.NewNATS(cfg.NATSURL, logger)
		if err != nil {
			sugar.Fatalw("nats connection error", "error", err.Error())
		}
		transport = nc
	} else {
		transport = events.NewBus(eventBusBuffer)
	}
	defer transport.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc := service.NewService(repo, policy, transport, logger, m, service.WithDefaultAmount(cfg.DefaultSaleAmount))
	defer svc.Close()

	consumer := counters.NewConsumer(repo, transport, cfg.CounterWorkers, logger, m)

	h := handler.NewHandler(svc, logger, auth, m, reg)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Потребитель событий обновляет счётчики продавцов
	g.Go(func() error {
		sugar.Infow("starting counter consumer", "workers", cfg.CounterWorkers, "nats", cfg.NATSURL != "")
		return consumer.Run(ctx)
	})

	g.Go(func() error {
		sugar.Infow("starting bingo-sales server",
			"addr", cfg.RunAddress,
			"commissionScheme", cfg.CommissionScheme)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
