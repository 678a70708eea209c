package health

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	"github.com/birdeye-sniper/sniper_service/pkg/logger"
)

type fakeMonitor struct {
	running bool
	panics  bool
}

func (m *fakeMonitor) Status() entities.MonitorStatus {
	if m.panics {
		panic("registry corrupted")
	}
	return entities.MonitorStatus{Running: m.running, WalletCount: 1}
}

type fakeLedger struct {
	latency time.Duration
	pingErr error
	balance decimal.Decimal
}

func (l *fakeLedger) Ping(context.Context) (time.Duration, error) {
	return l.latency, l.pingErr
}

func (l *fakeLedger) GetBalance(context.Context, string) (decimal.Decimal, error) {
	return l.balance, nil
}

type fakeNotifier struct {
	mu         sync.Mutex
	configured bool
	broadcasts []string
}

func (n *fakeNotifier) GroupConfigured() bool { return n.configured }
func (n *fakeNotifier) Price() decimal.Decimal { return decimal.NewFromInt(150) }
func (n *fakeNotifier) PriceUpdatedAt() time.Time { return time.Time{} }
func (n *fakeNotifier) FormatSOL(a decimal.Decimal) string { return a.StringFixed(4) + " SOL" }

func (n *fakeNotifier) SendBroadcast(_ context.Context, text string, _ *entities.Keyboard) (*entities.MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, text)
	return &entities.MessageRef{}, nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.broadcasts)
}

type stubUsers struct {
	users   []*entities.User
	listErr error
}

func (s *stubUsers) GetByID(context.Context, int64) (*entities.User, error) { return nil, errors.New("unused") }
func (s *stubUsers) Create(context.Context, *entities.User) error { return nil }
func (s *stubUsers) Update(context.Context, int64, entities.UserUpdate) (*entities.User, error) {
	return nil, errors.New("unused")
}
func (s *stubUsers) List(context.Context) ([]*entities.User, error) { return s.users, s.listErr }
func (s *stubUsers) ListActive(context.Context) ([]*entities.User, error) { return s.users, s.listErr }

type fixture struct {
	svc      *Service
	monitor  *fakeMonitor
	ledger   *fakeLedger
	notifier *fakeNotifier
	users    *stubUsers
	now      time.Time
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		monitor:  &fakeMonitor{running: true},
		ledger:   &fakeLedger{latency: 120 * time.Millisecond, balance: decimal.NewFromInt(3)},
		notifier: &fakeNotifier{configured: true},
		users: &stubUsers{users: []*entities.User{
			{ID: 1, MonitorEnabled: true, SetupStep: entities.SetupStepCompleted},
			{ID: 2, SetupStep: entities.SetupStepEmail},
		}},
		now: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		dir: t.TempDir(),
	}
	f.svc = NewService(f.monitor, f.ledger, f.notifier, f.users, Config{BotAddress: "Bot", LogDir: f.dir}, logger.NewNop())
	f.svc.now = func() time.Time { return f.now }
	f.svc.startedAt = f.now
	f.svc.lastHealthyBroadcast = f.now
	return f
}

func TestAggregate(t *testing.T) {
	h := entities.CheckResult{Status: entities.CheckHealthy}
	w := entities.CheckResult{Status: entities.CheckWarning}
	e := entities.CheckResult{Status: entities.CheckError}

	tests := []struct {
		name   string
		checks map[string]entities.CheckResult
		want   entities.HealthStatus
	}{
		{"all healthy", map[string]entities.CheckResult{"a": h, "b": h}, entities.HealthHealthy},
		{"healthy and warning", map[string]entities.CheckResult{"a": h, "b": w}, entities.HealthWarning},
		{"warning and error", map[string]entities.CheckResult{"a": w, "b": e}, entities.HealthCritical},
		{"error only", map[string]entities.CheckResult{"a": e}, entities.HealthCritical},
		{"empty", map[string]entities.CheckResult{}, entities.HealthHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.checks))
		})
	}
}

func TestService_Run_Healthy(t *testing.T) {
	f := newFixture(t)

	snap := f.svc.Run(context.Background())

	assert.Equal(t, entities.HealthHealthy, snap.Status)
	assert.Len(t, snap.Checks, 5)
	assert.Empty(t, snap.Warnings)
	assert.Empty(t, snap.Errors)
	assert.Equal(t, int64(120), snap.Metrics.RPCLatencyMS)
	assert.Equal(t, entities.UserStats{Total: 2, Active: 1, Completed: 1}, snap.Metrics.Users)
	assert.Same(t, snap, f.svc.Last())
	assert.Equal(t, 0, f.notifier.count(), "healthy broadcast clock starts at construction")
}

func TestService_HealthyBroadcastThrottle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.now = f.now.Add(5*time.Hour + 59*time.Minute)
	f.svc.Run(ctx)
	assert.Equal(t, 0, f.notifier.count())

	f.now = f.now.Add(time.Minute)
	f.svc.Run(ctx)
	require.Equal(t, 1, f.notifier.count())
	assert.Contains(t, f.notifier.broadcasts[0], "ALL SYSTEMS OPERATIONAL")

	f.svc.Run(ctx)
	assert.Equal(t, 1, f.notifier.count(), "clock reset by the broadcast")

	f.now = f.now.Add(6 * time.Hour)
	f.svc.Run(ctx)
	assert.Equal(t, 2, f.notifier.count())
}

func TestService_WarningAlwaysBroadcasts(t *testing.T) {
	f := newFixture(t)
	f.monitor.running = false

	for i := 0; i < 2; i++ {
		snap := f.svc.Run(context.Background())
		assert.Equal(t, entities.HealthWarning, snap.Status)
		assert.Equal(t, []string{CheckWalletMonitoring}, snap.Warnings)
	}

	require.Equal(t, 2, f.notifier.count())
	assert.Contains(t, f.notifier.broadcasts[0], "• WALLET MONITORING")
}

func TestService_SlowRPCIsWarning(t *testing.T) {
	f := newFixture(t)
	f.ledger.latency = 5 * time.Second

	snap := f.svc.Run(context.Background())

	assert.Equal(t, entities.HealthWarning, snap.Status)
	assert.Equal(t, entities.CheckWarning, snap.Checks[CheckSolanaConnection].Status)
}

func TestService_CriticalOnRPCFailure(t *testing.T) {
	f := newFixture(t)
	f.ledger.pingErr = errors.New("connection refused")

	snap := f.svc.Run(context.Background())

	assert.Equal(t, entities.HealthCritical, snap.Status)
	assert.Equal(t, []string{"solana_connection: connection refused"}, snap.Errors)
	require.Equal(t, 1, f.notifier.count())
	assert.Contains(t, f.notifier.broadcasts[0], "CRITICAL SYSTEM ALERT")
	assert.Contains(t, f.notifier.broadcasts[0], `solana\_connection: connection refused`)
}

func TestService_UserStoreFailureIsCritical(t *testing.T) {
	f := newFixture(t)
	f.users.listErr = errors.New("users.json: permission denied")

	snap := f.svc.Run(context.Background())

	assert.Equal(t, entities.HealthCritical, snap.Status)
	assert.Equal(t, entities.CheckError, snap.Checks[CheckUserData].Status)
}

func TestService_PanickingCheckIsContained(t *testing.T) {
	f := newFixture(t)
	f.monitor.panics = true

	snap := f.svc.Run(context.Background())

	assert.Equal(t, entities.HealthCritical, snap.Status)
	assert.Contains(t, snap.Checks[CheckWalletMonitoring].Error, "registry corrupted")
	assert.Equal(t, entities.CheckHealthy, snap.Checks[CheckUserData].Status, "other checks still run")
}

func TestService_AggregationPanicYieldsSyntheticCritical(t *testing.T) {
	f := newFixture(t)
	f.svc.collectHook = func() { panic("boom") }

	snap := f.svc.Run(context.Background())

	assert.Equal(t, entities.HealthCritical, snap.Status)
	assert.Contains(t, snap.Errors, "Health check failed: boom")

	summary, err := os.ReadFile(filepath.Join(f.dir, summaryFile))
	require.NoError(t, err)
	assert.Contains(t, string(summary), "CRITICAL")
}

func TestService_NoGroupNoBroadcast(t *testing.T) {
	f := newFixture(t)
	f.notifier.configured = false

	snap := f.svc.Run(context.Background())

	assert.Equal(t, entities.HealthWarning, snap.Status, "unconfigured group is itself a warning")
	assert.Equal(t, 0, f.notifier.count())
}

func TestService_JournalsEveryRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.Run(ctx)
	f.ledger.pingErr = errors.New("down")
	f.svc.Run(ctx)

	summary, err := os.ReadFile(filepath.Join(f.dir, summaryFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(summary)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "2026-05-01T00:00:00Z - HEALTHY", lines[0])
	assert.Equal(t, "2026-05-01T00:00:00Z - CRITICAL", lines[1])

	detailed, err := os.ReadFile(filepath.Join(f.dir, detailedFile))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(detailed), `"checks"`))
}

func TestService_Report(t *testing.T) {
	f := newFixture(t)
	f.monitor.running = false
	f.ledger.latency = 3500 * time.Millisecond
	f.ledger.balance = decimal.RequireFromString("0.05")
	f.svc.memStats = func() runtime.MemStats {
		return runtime.MemStats{HeapAlloc: 600 << 20, HeapSys: 700 << 20}
	}

	report := f.svc.Report(context.Background())

	assert.Equal(t, []string{
		"Consider restarting the bot to free up memory",
		"Restart wallet monitoring service",
		"Solana RPC response time is slow, consider switching RPC endpoint",
		"Bot wallet balance is low, consider funding the wallet",
	}, report.Recommendations)

	text := ReportText(report)
	assert.Contains(t, text, "🟡 WALLET MONITORING")
	assert.Contains(t, text, "RECOMMENDATIONS")
}

func TestService_ReportHealthyHasNoRecommendations(t *testing.T) {
	f := newFixture(t)

	report := f.svc.Report(context.Background())

	assert.Empty(t, report.Recommendations)
	assert.Contains(t, ReportText(report), "STATUS:* HEALTHY")
}

func TestHeadline(t *testing.T) {
	assert.Equal(t, "NOTIFICATION SYSTEM", Headline(CheckNotificationSystem))
}
