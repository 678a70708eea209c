package graceful

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/birdeye-sniper/sniper_service/pkg/logger"
)

// Hook stops one component. It should return once the component has stopped or ctx expires.
type Hook func(ctx context.Context) error

type namedHook struct {
	name string
	fn   Hook
}

// ShutdownManager runs registered hooks in registration order once a stop signal arrives
type ShutdownManager struct {
	mu      sync.Mutex
	hooks   []namedHook
	timeout time.Duration
	logger  *logger.Logger
	once    sync.Once
}

// NewShutdownManager creates a manager allowing timeout for the whole shutdown
func NewShutdownManager(timeout time.Duration, log *logger.Logger) *ShutdownManager {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{timeout: timeout, logger: log}
}

// Register appends a hook
func (sm *ShutdownManager) Register(name string, fn Hook) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, namedHook{name: name, fn: fn})
}

// WaitForShutdown blocks until SIGINT/SIGTERM or ctx is done, then runs the hooks
func (sm *ShutdownManager) WaitForShutdown(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		sm.logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		sm.logger.Info("Shutdown requested")
	}
	sm.Shutdown()
}

// Shutdown runs every hook once. Hook errors are logged and do not stop later hooks.
func (sm *ShutdownManager) Shutdown() {
	sm.once.Do(func() {
		sm.logger.Info("Shutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
		defer cancel()

		sm.mu.Lock()
		hooks := append([]namedHook(nil), sm.hooks...)
		sm.mu.Unlock()

		for _, h := range hooks {
			if err := h.fn(ctx); err != nil {
				sm.logger.Warn("Component shutdown error", "component", h.name, "error", err)
				continue
			}
			sm.logger.Debug("Component stopped", "component", h.name)
		}

		sm.logger.Info("Shutdown complete")
	})
}
