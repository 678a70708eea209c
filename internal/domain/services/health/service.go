// Package health runs the periodic self-check: it checks each subsystem,
// aggregates a verdict, journals every snapshot and tells the broadcast
// channel when something is wrong (or, at most every few hours, that all is well).
package health

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	"github.com/birdeye-sniper/sniper_service/internal/domain/repositories"
	"github.com/birdeye-sniper/sniper_service/pkg/logger"
	"github.com/birdeye-sniper/sniper_service/pkg/metrics"
)

// Check names
const (
	CheckBotStatus          = "bot_status"
	CheckWalletMonitoring   = "wallet_monitoring"
	CheckSolanaConnection   = "solana_connection"
	CheckNotificationSystem = "notification_system"
	CheckUserData           = "user_data"
)

// Monitor exposes the wallet monitor's run state
type Monitor interface {
	Status() entities.MonitorStatus
}

// Ledger is the chain access the checks need
type Ledger interface {
	Ping(ctx context.Context) (time.Duration, error)
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// Notifier is the broadcast side of the checks
type Notifier interface {
	GroupConfigured() bool
	Price() decimal.Decimal
	PriceUpdatedAt() time.Time
	FormatSOL(amount decimal.Decimal) string
	SendBroadcast(ctx context.Context, text string, keyboard *entities.Keyboard) (*entities.MessageRef, error)
}

// Config holds health check settings
type Config struct {
	BotAddress        string
	Network           string
	LogDir            string
	BroadcastInterval time.Duration
	LatencyWarnMS     int64
	LatencyAdviseMS   int64
	MemoryAdviseMB    uint64
	LowBalanceAdvise  decimal.Decimal
}

// Service performs health checks
type Service struct {
	monitor  Monitor
	ledger   Ledger
	notifier Notifier
	users    repositories.UserRepository
	journal  *Journal
	config   Config
	logger   *logger.Logger

	now         func() time.Time
	startedAt   time.Time
	memStats    func() runtime.MemStats
	collectHook func()

	mu                   sync.Mutex
	lastHealthyBroadcast time.Time
	last                 *entities.HealthSnapshot
}

// NewService creates a health check service. The healthy-broadcast clock starts now.
func NewService(monitor Monitor, ledger Ledger, notifier Notifier, users repositories.UserRepository, config Config, log *logger.Logger) *Service {
	if config.LogDir == "" {
		config.LogDir = "logs"
	}
	if config.Network == "" {
		config.Network = "mainnet-beta"
	}
	if config.BroadcastInterval <= 0 {
		config.BroadcastInterval = 6 * time.Hour
	}
	if config.LatencyWarnMS <= 0 {
		config.LatencyWarnMS = 5000
	}
	if config.LatencyAdviseMS <= 0 {
		config.LatencyAdviseMS = 3000
	}
	if config.MemoryAdviseMB == 0 {
		config.MemoryAdviseMB = 500
	}
	if !config.LowBalanceAdvise.IsPositive() {
		config.LowBalanceAdvise = decimal.RequireFromString("0.1")
	}

	now := time.Now()
	return &Service{
		monitor:              monitor,
		ledger:               ledger,
		notifier:             notifier,
		users:                users,
		journal:              NewJournal(config.LogDir),
		config:               config,
		logger:               log.Named("health"),
		now:                  time.Now,
		startedAt:            now,
		memStats:             readMemStats,
		lastHealthyBroadcast: now,
	}
}

func readMemStats() runtime.MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m
}

// Last returns the most recent snapshot, nil before the first run
func (s *Service) Last() *entities.HealthSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run performs a full check, journals it and broadcasts as needed
func (s *Service) Run(ctx context.Context) *entities.HealthSnapshot {
	s.logger.Info("Starting health check")

	snapshot := s.collectSafely(ctx)

	if err := s.journal.Append(snapshot); err != nil {
		s.logger.Error("Failed to journal health check", "error", err)
	}
	s.broadcast(ctx, snapshot)

	metrics.HealthStatusGauge.Set(snapshot.Status.Level())
	s.mu.Lock()
	s.last = snapshot
	s.mu.Unlock()

	s.logger.Info("Health check completed", "status", snapshot.Status, "id", snapshot.ID.String())
	return snapshot
}

// Report runs a check and adds advisory recommendations
func (s *Service) Report(ctx context.Context) *entities.HealthReport {
	snapshot := s.Run(ctx)
	return &entities.HealthReport{
		Snapshot:        snapshot,
		Recommendations: s.Recommendations(snapshot),
	}
}

// collectSafely turns a panic anywhere in aggregation into a critical snapshot
func (s *Service) collectSafely(ctx context.Context) (snapshot *entities.HealthSnapshot) {
	snapshot = s.newSnapshot()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Health check aggregation panicked", "panic", r)
			snapshot.Status = entities.HealthCritical
			snapshot.Errors = append(snapshot.Errors, fmt.Sprintf("Health check failed: %v", r))
		}
	}()

	s.collect(ctx, snapshot)
	return snapshot
}

func (s *Service) newSnapshot() *entities.HealthSnapshot {
	return &entities.HealthSnapshot{
		ID:        uuid.New(),
		Timestamp: s.now().UTC(),
		Status:    entities.HealthHealthy,
		Checks:    make(map[string]entities.CheckResult),
		Warnings:  []string{},
		Errors:    []string{},
	}
}

func (s *Service) collect(ctx context.Context, snapshot *entities.HealthSnapshot) {
	if s.collectHook != nil {
		s.collectHook()
	}

	checks := []struct {
		name string
		fn   func(context.Context, *entities.HealthMetrics) entities.CheckResult
	}{
		{CheckBotStatus, s.checkBotStatus},
		{CheckWalletMonitoring, s.checkWalletMonitoring},
		{CheckSolanaConnection, s.checkSolanaConnection},
		{CheckNotificationSystem, s.checkNotificationSystem},
		{CheckUserData, s.checkUserData},
	}

	for _, c := range checks {
		snapshot.Checks[c.name] = runCheck(ctx, c.fn, &snapshot.Metrics)
	}

	snapshot.Status = Aggregate(snapshot.Checks)

	names := make([]string, 0, len(snapshot.Checks))
	for name := range snapshot.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		result := snapshot.Checks[name]
		switch result.Status {
		case entities.CheckWarning:
			snapshot.Warnings = append(snapshot.Warnings, name)
		case entities.CheckError:
			snapshot.Errors = append(snapshot.Errors, fmt.Sprintf("%s: %s", name, result.Error))
		}
	}
}

// runCheck isolates one check so a panic marks only that check as failed
func runCheck(ctx context.Context, fn func(context.Context, *entities.HealthMetrics) entities.CheckResult, m *entities.HealthMetrics) (result entities.CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			result = entities.CheckResult{Status: entities.CheckError, Error: fmt.Sprintf("check panicked: %v", r)}
		}
	}()
	return fn(ctx, m)
}

// Aggregate folds check results: any error is critical, else any warning is a warning
func Aggregate(checks map[string]entities.CheckResult) entities.HealthStatus {
	status := entities.HealthHealthy
	for _, c := range checks {
		switch c.Status {
		case entities.CheckError:
			return entities.HealthCritical
		case entities.CheckWarning:
			status = entities.HealthWarning
		}
	}
	return status
}

func (s *Service) checkBotStatus(_ context.Context, m *entities.HealthMetrics) entities.CheckResult {
	mem := s.memStats()
	m.UptimeSeconds = int64(s.now().Sub(s.startedAt).Seconds())
	m.HeapAllocBytes = mem.HeapAlloc
	m.HeapSysBytes = mem.HeapSys
	m.Goroutines = runtime.NumGoroutine()

	return entities.CheckResult{
		Status: entities.CheckHealthy,
		Details: map[string]interface{}{
			"uptime_seconds":  m.UptimeSeconds,
			"memory_usage_mb": mem.HeapAlloc / (1 << 20),
			"memory_total_mb": mem.HeapSys / (1 << 20),
			"goroutines":      m.Goroutines,
		},
	}
}

func (s *Service) checkWalletMonitoring(_ context.Context, m *entities.HealthMetrics) entities.CheckResult {
	status := s.monitor.Status()
	m.Monitor = status

	result := entities.CheckResult{
		Status: entities.CheckHealthy,
		Details: map[string]interface{}{
			"is_running":        status.Running,
			"monitored_wallets": status.WalletCount,
			"last_poll":         status.LastPollAt,
		},
	}
	if !status.Running {
		result.Status = entities.CheckWarning
	}
	return result
}

func (s *Service) checkSolanaConnection(ctx context.Context, m *entities.HealthMetrics) entities.CheckResult {
	latency, err := s.ledger.Ping(ctx)
	if err != nil {
		return entities.CheckResult{Status: entities.CheckError, Error: err.Error()}
	}
	m.RPCLatencyMS = latency.Milliseconds()

	balance, err := s.ledger.GetBalance(ctx, s.config.BotAddress)
	if err != nil {
		return entities.CheckResult{Status: entities.CheckError, Error: err.Error()}
	}
	m.BotBalance = balance

	result := entities.CheckResult{
		Status: entities.CheckHealthy,
		Details: map[string]interface{}{
			"response_time_ms": m.RPCLatencyMS,
			"bot_balance_sol":  balance.String(),
			"network":          s.config.Network,
		},
	}
	if m.RPCLatencyMS >= s.config.LatencyWarnMS {
		result.Status = entities.CheckWarning
	}
	return result
}

func (s *Service) checkNotificationSystem(_ context.Context, m *entities.HealthMetrics) entities.CheckResult {
	m.SolPrice = s.notifier.Price()
	configured := s.notifier.GroupConfigured()

	freshness := "stale"
	if updated := s.notifier.PriceUpdatedAt(); !updated.IsZero() && s.now().Sub(updated) < 15*time.Minute {
		freshness = "recent"
	}

	result := entities.CheckResult{
		Status: entities.CheckHealthy,
		Details: map[string]interface{}{
			"sol_price_usd":      m.SolPrice.String(),
			"group_configured":   configured,
			"price_last_updated": freshness,
		},
	}
	if !configured {
		result.Status = entities.CheckWarning
	}
	return result
}

func (s *Service) checkUserData(ctx context.Context, m *entities.HealthMetrics) entities.CheckResult {
	users, err := s.users.List(ctx)
	if err != nil {
		return entities.CheckResult{Status: entities.CheckError, Error: err.Error()}
	}
	m.Users = entities.ComputeUserStats(users)

	return entities.CheckResult{
		Status: entities.CheckHealthy,
		Details: map[string]interface{}{
			"total_users":          m.Users.Total,
			"active_users":         m.Users.Active,
			"completed_setup":      m.Users.Completed,
			"data_file_accessible": true,
		},
	}
}

// Recommendations derives advisory actions from a snapshot
func (s *Service) Recommendations(snapshot *entities.HealthSnapshot) []string {
	recs := []string{}
	m := snapshot.Metrics

	if m.HeapAllocBytes > s.config.MemoryAdviseMB*(1<<20) {
		recs = append(recs, "Consider restarting the bot to free up memory")
	}
	if !m.Monitor.Running {
		recs = append(recs, "Restart wallet monitoring service")
	}
	if m.RPCLatencyMS > s.config.LatencyAdviseMS {
		recs = append(recs, "Solana RPC response time is slow, consider switching RPC endpoint")
	}
	if c, ok := snapshot.Checks[CheckSolanaConnection]; ok && c.Status != entities.CheckError && m.BotBalance.LessThan(s.config.LowBalanceAdvise) {
		recs = append(recs, "Bot wallet balance is low, consider funding the wallet")
	}
	return recs
}

func (s *Service) broadcast(ctx context.Context, snapshot *entities.HealthSnapshot) {
	if !s.notifier.GroupConfigured() {
		s.logger.Debug("No broadcast group configured for health notifications")
		return
	}

	var text string
	switch snapshot.Status {
	case entities.HealthCritical:
		text = s.criticalText(snapshot)
	case entities.HealthWarning:
		text = s.warningText(snapshot)
	default:
		s.mu.Lock()
		due := s.now().Sub(s.lastHealthyBroadcast) >= s.config.BroadcastInterval
		s.mu.Unlock()
		if !due {
			return
		}
		text = s.healthyText(snapshot)
	}

	if _, err := s.notifier.SendBroadcast(ctx, text, nil); err != nil {
		s.logger.Error("Failed to send health notification", "status", snapshot.Status, "error", err)
		return
	}
	if snapshot.Status == entities.HealthHealthy {
		s.mu.Lock()
		s.lastHealthyBroadcast = s.now()
		s.mu.Unlock()
	}
	s.logger.Info("Health notification sent", "status", snapshot.Status)
}
