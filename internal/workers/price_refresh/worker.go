package price_refresh

import (
	"context"
	"sync"
	"time"

	"github.com/birdeye-sniper/sniper_service/pkg/logger"
	"github.com/birdeye-sniper/sniper_service/pkg/retry"
)

// PriceRefresher refreshes the cached SOL quote
type PriceRefresher interface {
	RefreshPrice(ctx context.Context) error
}

// Worker keeps the SOL/USD quote used in chat messages fresh
type Worker struct {
	refresher      PriceRefresher
	interval       time.Duration
	requestTimeout time.Duration
	retry          retry.Policy
	logger         *logger.Logger
	stopCh         chan struct{}
	stopOnce       sync.Once
}

// Config holds worker configuration
type Config struct {
	Interval       time.Duration
	RequestTimeout time.Duration
	Retry          retry.Policy
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		Interval:       5 * time.Minute,
		RequestTimeout: 15 * time.Second,
		Retry:          retry.DefaultPolicy(),
	}
}

// NewWorker creates a new price refresh worker
func NewWorker(refresher PriceRefresher, config *Config, logger *logger.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	return &Worker{
		refresher:      refresher,
		interval:       config.Interval,
		requestTimeout: config.RequestTimeout,
		retry:          config.Retry,
		logger:         logger,
		stopCh:         make(chan struct{}),
	}
}

// Start refreshes immediately and then on every tick until stopped
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting price refresh worker", "interval", w.interval.String())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Price refresh worker stopped (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info("Price refresh worker stopped")
			return
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

// Stop stops the worker. Safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Worker) refresh(ctx context.Context) {
	err := retry.Do(ctx, w.retry, w.logger.Zap(), func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, w.requestTimeout)
		defer cancel()
		return w.refresher.RefreshPrice(ctx)
	})
	if err != nil {
		// the previous quote stays in place
		w.logger.Warn("SOL price refresh failed", "error", err)
		return
	}
	w.logger.Debug("SOL price refreshed")
}

// RunOnce refreshes once (for testing or manual trigger)
func (w *Worker) RunOnce(ctx context.Context) {
	w.refresh(ctx)
}
