package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/birdeye-sniper/sniper_service/internal/api/middleware"
	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	"github.com/birdeye-sniper/sniper_service/pkg/logger"
)

// MonitorReader exposes the monitor's read side
type MonitorReader interface {
	BotAddress() string
	Status() entities.MonitorStatus
	Wallets() []entities.MonitoredWallet
}

// HealthRunner runs and remembers health checks
type HealthRunner interface {
	Last() *entities.HealthSnapshot
	Report(ctx context.Context) *entities.HealthReport
}

// CoreHandlers serves liveness, metrics and the ops read API
type CoreHandlers struct {
	monitor    MonitorReader
	health     HealthRunner
	logger     *logger.Logger
	runTimeout time.Duration
	startedAt  time.Time
}

// NewCoreHandlers creates a new core handlers instance
func NewCoreHandlers(monitor MonitorReader, health HealthRunner, log *logger.Logger) *CoreHandlers {
	return &CoreHandlers{
		monitor:    monitor,
		health:     health,
		logger:     log,
		runTimeout: 30 * time.Second,
		startedAt:  time.Now(),
	}
}

// HealthResponse is the liveness payload
type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Monitor   entities.MonitorStatus   `json:"monitor"`
	Last      *entities.HealthSnapshot `json:"last_check,omitempty"`
}

// WalletView is one monitored address as served over HTTP
type WalletView struct {
	Address             string     `json:"address"`
	Owners              []int64    `json:"owners"`
	LastObservedBalance string     `json:"last_observed_balance"`
	LastCheckedAt       time.Time  `json:"last_checked_at"`
	AutoTransferPending bool       `json:"auto_transfer_pending"`
	AutoTransferAt      *time.Time `json:"auto_transfer_at,omitempty"`
}

// Health reports liveness plus the most recent health snapshot.
// A critical last check turns the response into a 503.
func (h *CoreHandlers) Health(c *gin.Context) {
	last := h.health.Last()
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Monitor:   h.monitor.Status(),
		Last:      last,
	}

	code := http.StatusOK
	if last != nil && last.Status == entities.HealthCritical {
		resp.Status = string(entities.HealthCritical)
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// Live always answers 200 while the process serves HTTP
func (h *CoreHandlers) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "time": time.Now().Unix()})
}

// Metrics exposes Prometheus metrics
func (h *CoreHandlers) Metrics() gin.HandlerFunc {
	handler := promhttp.Handler()
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// Status returns the monitor status and bot address
func (h *CoreHandlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"bot_address": h.monitor.BotAddress(),
		"monitor":     h.monitor.Status(),
	})
}

// Wallets lists the monitor registry
func (h *CoreHandlers) Wallets(c *gin.Context) {
	wallets := h.monitor.Wallets()
	views := make([]WalletView, 0, len(wallets))
	for _, w := range wallets {
		views = append(views, WalletView{
			Address:             w.Address,
			Owners:              w.Owners,
			LastObservedBalance: w.LastObservedBalance.String(),
			LastCheckedAt:       w.LastCheckedAt,
			AutoTransferPending: w.AutoTransferPending,
			AutoTransferAt:      w.AutoTransferScheduleAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"wallets": views, "count": len(views)})
}

// RunHealth executes a health check now and returns the report
func (h *CoreHandlers) RunHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.runTimeout)
	defer cancel()

	report := h.health.Report(ctx)
	if report == nil || report.Snapshot == nil {
		respondError(c, http.StatusServiceUnavailable, "HEALTH_UNAVAILABLE", "health check did not produce a snapshot")
		return
	}

	h.logger.Info("Health check triggered over HTTP",
		"operator", c.GetString(middleware.KeyOperator),
		"status", report.Snapshot.Status,
		"request_id", getRequestID(c))
	c.JSON(http.StatusOK, report)
}
