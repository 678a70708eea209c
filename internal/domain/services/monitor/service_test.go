package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
	"github.com/birdeye-sniper/sniper_service/internal/infrastructure/repositories"
	"github.com/birdeye-sniper/sniper_service/pkg/logger"
	"github.com/birdeye-sniper/sniper_service/pkg/scheduler/schedulertest"
)

const (
	botAddr    = "BotWa11et1111111111111111111111111111111111"
	payoutAddr = "Payout1111111111111111111111111111111111111"
)

type payment struct {
	from, to string
	amount   decimal.Decimal
}

type fakeLedger struct {
	mu         sync.Mutex
	balances   map[string]decimal.Decimal
	balanceErr error
	sendErr    error
	payments   []payment
	fetches    int
	onFetch    func()
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[string]decimal.Decimal)}
}

func (l *fakeLedger) set(address, amount string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[address] = decimal.RequireFromString(amount)
}

func (l *fakeLedger) IsValidAddress(address string) bool {
	return len(address) >= 32
}

func (l *fakeLedger) GetBalance(_ context.Context, address string) (decimal.Decimal, error) {
	l.mu.Lock()
	l.fetches++
	hook := l.onFetch
	balance, err := l.balances[address], l.balanceErr
	l.mu.Unlock()

	if hook != nil {
		hook()
	}
	return balance, err
}

func (l *fakeLedger) GetRecentTransactions(_ context.Context, _ string, _ int) ([]entities.LedgerTransaction, error) {
	return []entities.LedgerTransaction{{Signature: "sig-deposit"}}, nil
}

func (l *fakeLedger) GetTransactionDetails(_ context.Context, signature string) (*entities.TransactionDetails, error) {
	return &entities.TransactionDetails{Signature: signature, Fee: decimal.RequireFromString("0.000005")}, nil
}

func (l *fakeLedger) SendPayment(_ context.Context, from, to string, amount decimal.Decimal) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.payments = append(l.payments, payment{from: from, to: to, amount: amount})
	if l.sendErr != nil {
		return "", l.sendErr
	}
	return "sig-payout", nil
}

func (l *fakeLedger) paymentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.payments)
}

type fakeNotifier struct {
	mu        sync.Mutex
	deposits  []*entities.DepositEvent
	enriched  []*entities.TransactionDetails
	autoIn    []time.Duration
	transfers []*entities.TransferResult
}

func (n *fakeNotifier) DepositAlert(_ context.Context, event *entities.DepositEvent) (*entities.MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deposits = append(n.deposits, event)
	return &entities.MessageRef{ChatID: -100, MessageID: len(n.deposits)}, nil
}

func (n *fakeNotifier) EnrichDepositAlert(_ context.Context, _ entities.MessageRef, _ *entities.DepositEvent, details *entities.TransactionDetails, autoIn time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enriched = append(n.enriched, details)
	n.autoIn = append(n.autoIn, autoIn)
	return nil
}

func (n *fakeNotifier) TransferAlert(_ context.Context, result *entities.TransferResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transfers = append(n.transfers, result)
}

func (n *fakeNotifier) depositCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deposits)
}

type fixture struct {
	svc      *Service
	ledger   *fakeLedger
	notifier *fakeNotifier
	sched    *schedulertest.Manual
	users    *repositories.UserFileRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users, err := repositories.NewUserFileRepository(filepath.Join(t.TempDir(), "users.json"), zap.NewNop())
	require.NoError(t, err)

	f := &fixture{
		ledger:   newFakeLedger(),
		notifier: &fakeNotifier{},
		sched:    schedulertest.NewManual(),
		users:    users,
	}
	cfg := DefaultConfig()
	cfg.BotAddress = botAddr
	f.svc = NewService(f.ledger, f.notifier, users, f.sched, cfg, logger.NewNop())
	return f
}

func (f *fixture) enroll(t *testing.T, id int64, payout string) {
	t.Helper()
	user := entities.NewUser(id, entities.UserProfile{FirstName: "Op"})
	user.Email = "op@example.com"
	user.PayoutAddress = payout
	user.SetupStep = entities.SetupStepCompleted
	require.NoError(t, f.users.Create(context.Background(), user))
	require.NoError(t, f.svc.AddWallet(botAddr, id))
}

// prime registers the wallet and absorbs the initial 0 -> balance jump
func (f *fixture) prime(t *testing.T, balance string) {
	t.Helper()
	f.ledger.set(botAddr, balance)
	f.svc.PollOnce(context.Background())
	f.notifier.mu.Lock()
	f.notifier.deposits = nil
	f.notifier.mu.Unlock()
	f.svc.CancelAutoTransfer(botAddr)
	f.sched.FireAll()
	f.notifier.mu.Lock()
	f.notifier.enriched, f.notifier.autoIn = nil, nil
	f.notifier.mu.Unlock()
}

func observed(t *testing.T, svc *Service) decimal.Decimal {
	t.Helper()
	w, ok := svc.Wallet(botAddr)
	require.True(t, ok)
	return w.LastObservedBalance
}

func TestService_FirstPollAfterRegistrationIsADeposit(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, "")
	f.ledger.set(botAddr, "2.5")

	f.svc.PollOnce(context.Background())

	require.Equal(t, 1, f.notifier.depositCount())
	assert.True(t, decimal.RequireFromString("2.5").Equal(f.notifier.deposits[0].Delta))
	assert.Equal(t, "op@example.com", f.notifier.deposits[0].OwnerContact)
}

func TestService_SubThresholdDeltaUpdatesStateSilently(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, payoutAddr)
	f.prime(t, "10")

	for _, next := range []string{"10.001", "10.0005", "9.9995", "9.999"} {
		f.ledger.set(botAddr, next)
		f.svc.PollOnce(context.Background())

		assert.True(t, decimal.RequireFromString(next).Equal(observed(t, f.svc)), next)
	}
	assert.Equal(t, 0, f.notifier.depositCount())
	assert.Equal(t, 0, f.sched.PendingWithDelay(30*time.Minute))
}

func TestService_DecreaseNeverAlerts(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, payoutAddr)
	f.prime(t, "10")

	f.ledger.set(botAddr, "0.5")
	f.svc.PollOnce(context.Background())

	assert.Equal(t, 0, f.notifier.depositCount())
	assert.True(t, decimal.RequireFromString("0.5").Equal(observed(t, f.svc)))
}

func TestService_DepositAlertAndEnrichment(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, payoutAddr)
	f.prime(t, "10")

	f.ledger.set(botAddr, "10.002")
	f.svc.PollOnce(context.Background())

	require.Equal(t, 1, f.notifier.depositCount())
	assert.Equal(t, "0.0020", f.notifier.deposits[0].Delta.StringFixed(4))
	assert.Equal(t, 1, f.sched.PendingWithDelay(30*time.Minute))

	w, _ := f.svc.Wallet(botAddr)
	assert.True(t, w.AutoTransferPending)

	assert.Equal(t, 1, f.sched.FireDelay(3*time.Second))
	require.Len(t, f.notifier.enriched, 1)
	assert.Equal(t, "sig-deposit", f.notifier.enriched[0].Signature)
	assert.Greater(t, f.notifier.autoIn[0], 29*time.Minute)
}

func TestService_AutoTransferSendsReserveAdjustedAmount(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, payoutAddr)
	f.prime(t, "0")

	f.ledger.set(botAddr, "5")
	f.svc.PollOnce(context.Background())
	require.Equal(t, 1, f.notifier.depositCount())

	require.Equal(t, 1, f.sched.FireDelay(30*time.Minute))

	require.Equal(t, 1, f.ledger.paymentCount())
	p := f.ledger.payments[0]
	assert.Equal(t, botAddr, p.from)
	assert.Equal(t, payoutAddr, p.to)
	assert.Equal(t, "4.75", p.amount.String())

	require.Len(t, f.notifier.transfers, 1)
	assert.True(t, f.notifier.transfers[0].Succeeded())
	assert.Equal(t, entities.TransferKindAuto, f.notifier.transfers[0].Kind)

	w, _ := f.svc.Wallet(botAddr)
	assert.False(t, w.AutoTransferPending)
}

func TestService_AutoTransferAmountProperty(t *testing.T) {
	ratio := decimal.RequireFromString("0.95")
	for _, b := range []string{"0.0011", "1", "3.333333333", "1234.56789"} {
		f := newFixture(t)
		f.enroll(t, 1, payoutAddr)
		f.prime(t, "0")
		f.ledger.set(botAddr, b)
		f.svc.PollOnce(context.Background())
		f.sched.FireDelay(30 * time.Minute)

		require.Equal(t, 1, f.ledger.paymentCount(), b)
		want := decimal.RequireFromString(b).Mul(ratio)
		diff := want.Sub(f.ledger.payments[0].amount).Abs()
		assert.True(t, diff.LessThan(decimal.New(1, -9)), "balance %s sent %s", b, f.ledger.payments[0].amount)
	}
}

func TestService_AutoTransferSkippedAtDust(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, payoutAddr)
	f.prime(t, "0")

	f.ledger.set(botAddr, "2")
	f.svc.PollOnce(context.Background())
	f.ledger.set(botAddr, "0.001")

	f.sched.FireDelay(30 * time.Minute)

	assert.Equal(t, 0, f.ledger.paymentCount())
	assert.Empty(t, f.notifier.transfers)
}

func TestService_AutoTransferSkippedWithoutPayoutAddress(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, "")
	f.prime(t, "0")

	f.ledger.set(botAddr, "2")
	f.svc.PollOnce(context.Background())
	f.sched.FireDelay(30 * time.Minute)

	assert.Equal(t, 0, f.ledger.paymentCount())
}

func TestService_AutoTransferFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, payoutAddr)
	f.prime(t, "0")
	f.ledger.sendErr = errors.New("node is behind")

	f.ledger.set(botAddr, "2")
	f.svc.PollOnce(context.Background())
	f.sched.FireDelay(30 * time.Minute)

	require.Len(t, f.notifier.transfers, 1)
	assert.False(t, f.notifier.transfers[0].Succeeded())
	assert.EqualError(t, f.notifier.transfers[0].Err, "node is behind")
}

func TestService_ManualDispositionCancelsTimer(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, payoutAddr)
	f.prime(t, "0")

	f.ledger.set(botAddr, "5")
	f.svc.PollOnce(context.Background())

	assert.True(t, f.svc.CancelAutoTransfer(botAddr))
	assert.False(t, f.svc.CancelAutoTransfer(botAddr))

	assert.Equal(t, 0, f.sched.FireDelay(30*time.Minute))
	assert.Equal(t, 0, f.ledger.paymentCount())
}

func TestService_NewDepositReplacesTimer(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, payoutAddr)
	f.prime(t, "0")

	f.ledger.set(botAddr, "1")
	f.svc.PollOnce(context.Background())
	f.ledger.set(botAddr, "2")
	f.svc.PollOnce(context.Background())

	assert.Equal(t, 2, f.notifier.depositCount())
	assert.Equal(t, 1, f.sched.PendingWithDelay(30*time.Minute))

	f.sched.FireDelay(30 * time.Minute)
	assert.Equal(t, 1, f.ledger.paymentCount())
}

func TestService_FetchFailureKeepsWallet(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, "")
	f.prime(t, "1")
	f.ledger.balanceErr = errors.New("timeout")

	f.svc.PollOnce(context.Background())

	w, ok := f.svc.Wallet(botAddr)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(1).Equal(w.LastObservedBalance))
	assert.False(t, w.LastCheckedAt.IsZero())
	assert.Equal(t, 0, f.notifier.depositCount())
}

func TestService_WalletRemovedDuringFetch(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, payoutAddr)
	f.ledger.set(botAddr, "3")
	f.ledger.onFetch = func() { f.svc.RemoveWallet(botAddr) }

	f.svc.PollOnce(context.Background())

	assert.Equal(t, 0, f.notifier.depositCount())
	assert.Empty(t, f.svc.Wallets())
}

func TestService_RemoveWalletCancelsTimer(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, payoutAddr)
	f.prime(t, "0")
	f.ledger.set(botAddr, "3")
	f.svc.PollOnce(context.Background())

	assert.True(t, f.svc.RemoveWallet(botAddr))
	assert.Equal(t, 0, f.sched.PendingWithDelay(30*time.Minute))
	assert.False(t, f.svc.RemoveWallet(botAddr))
}

func TestService_SharedAddressReferenceCounting(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, 1, payoutAddr)
	f.enroll(t, 2, "")
	f.prime(t, "7")

	w, _ := f.svc.Wallet(botAddr)
	assert.Equal(t, int64(2), w.OwnerUserID, "last registrant owns the entry")
	assert.Equal(t, []int64{1, 2}, w.Owners)

	assert.False(t, f.svc.ReleaseWallet(botAddr, 2))
	w, _ = f.svc.Wallet(botAddr)
	assert.Equal(t, int64(1), w.OwnerUserID)
	assert.True(t, decimal.NewFromInt(7).Equal(w.LastObservedBalance), "balance state survives")

	assert.True(t, f.svc.ReleaseWallet(botAddr, 1))
	assert.Empty(t, f.svc.Wallets())
}

func TestService_AddWalletRejectsInvalidAddress(t *testing.T) {
	f := newFixture(t)
	err := f.svc.AddWallet("short", 1)
	assert.ErrorIs(t, err, domainerrors.ErrInvalidAddress)
}

func TestService_EnableDisableMonitoring(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.svc.EnableMonitoring(ctx, 9))
	user, err := f.users.GetByID(ctx, 9)
	require.NoError(t, err)
	assert.True(t, user.MonitorEnabled)
	assert.Len(t, f.svc.Wallets(), 1)

	require.NoError(t, f.svc.DisableMonitoring(ctx, 9))
	user, err = f.users.GetByID(ctx, 9)
	require.NoError(t, err)
	assert.False(t, user.MonitorEnabled)
	assert.Empty(t, f.svc.Wallets())
}

type countingHealth struct {
	mu   sync.Mutex
	runs int
}

func (h *countingHealth) Run(context.Context) *entities.HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs++
	return &entities.HealthSnapshot{Status: entities.HealthHealthy}
}

func TestService_StartLoadsEnrolledUsersAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	done := entities.NewUser(1, entities.UserProfile{})
	done.SetupStep = entities.SetupStepCompleted
	require.NoError(t, f.users.Create(ctx, done))

	halfway := entities.NewUser(2, entities.UserProfile{})
	halfway.SetupStep = entities.SetupStepIP
	require.NoError(t, f.users.Create(ctx, halfway))

	disabled := entities.NewUser(3, entities.UserProfile{})
	disabled.SetupStep = entities.SetupStepCompleted
	disabled.MonitorEnabled = false
	require.NoError(t, f.users.Create(ctx, disabled))

	health := &countingHealth{}
	f.svc.AttachHealth(health)
	f.ledger.set(botAddr, "1")

	require.NoError(t, f.svc.Start(ctx))
	require.NoError(t, f.svc.Start(ctx))
	defer f.svc.Stop()

	wallets := f.svc.Wallets()
	require.Len(t, wallets, 1)
	assert.Equal(t, []int64{1}, wallets[0].Owners)

	assert.Eventually(t, func() bool { return !f.svc.Status().LastPollAt.IsZero() }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, f.svc.Status().Running)

	assert.Equal(t, 1, f.sched.FireDelay(time.Minute), "initial health check")
	assert.Equal(t, 1, health.runs)
	assert.False(t, f.svc.Status().LastHealthCheck.IsZero())
}

func TestService_StopKeepsAutoTransferTimers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.enroll(t, 1, payoutAddr)
	f.ledger.set(botAddr, "4")

	require.NoError(t, f.svc.Start(ctx))
	assert.Eventually(t, func() bool { return f.notifier.depositCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	f.svc.Stop()
	f.svc.Stop()

	assert.False(t, f.svc.Status().Running)
	assert.Equal(t, 1, f.sched.PendingWithDelay(30*time.Minute))
	f.sched.FireDelay(30 * time.Minute)
	assert.Equal(t, 1, f.ledger.paymentCount())
}

func TestService_StopCancelsInitialHealthCheck(t *testing.T) {
	f := newFixture(t)
	health := &countingHealth{}
	f.svc.AttachHealth(health)
	f.ledger.set(botAddr, "1")

	require.NoError(t, f.svc.Start(context.Background()))
	require.Equal(t, 1, f.sched.PendingWithDelay(time.Minute))

	f.svc.Stop()

	assert.Equal(t, 0, f.sched.PendingWithDelay(time.Minute))
	assert.Equal(t, 0, f.sched.FireDelay(time.Minute))
	assert.Equal(t, 0, health.runs)
}

func TestService_ContextCancelClearsRunning(t *testing.T) {
	f := newFixture(t)
	f.ledger.set(botAddr, "1")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.svc.Start(ctx))
	require.True(t, f.svc.Status().Running)

	cancel()

	assert.Eventually(t, func() bool { return !f.svc.Status().Running }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.sched.PendingWithDelay(time.Minute), "initial health check cancelled")

	// a stopped monitor can be started again
	require.NoError(t, f.svc.Start(context.Background()))
	assert.True(t, f.svc.Status().Running)
	assert.Equal(t, 1, f.sched.PendingWithDelay(time.Minute))
	f.svc.Stop()
	assert.False(t, f.svc.Status().Running)
}

func TestService_InvalidScheduleFailsStart(t *testing.T) {
	f := newFixture(t)
	f.svc.config.HealthSchedule = "every tuesday"

	assert.Error(t, f.svc.Start(context.Background()))
	assert.False(t, f.svc.Status().Running)
}

type countingSweeper struct{ maxAge time.Duration }

func (s *countingSweeper) Sweep(maxAge time.Duration) int {
	s.maxAge = maxAge
	return 2
}

func TestService_SweepPendingUsesMaxAge(t *testing.T) {
	f := newFixture(t)
	sweeper := &countingSweeper{}
	f.svc.AttachSweeper(sweeper)

	f.svc.sweepPending()

	assert.Equal(t, 30*time.Minute, sweeper.maxAge)
}
