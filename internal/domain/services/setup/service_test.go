package setup

import (
	"context"
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
	chatID  = int64(555)
	userID  = int64(42)
	botAddr = "BotWa11et1111111111111111111111111111111111"
)

type fakeLedger struct{}

func (fakeLedger) GetBalance(context.Context, string) (decimal.Decimal, error) {
	return decimal.RequireFromString("1.5"), nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	sent     []string
	edits    []string
	recruits []*entities.User
}

func (n *fakeNotifier) SendToUser(_ context.Context, chat int64, text string, _ *entities.Keyboard) (entities.MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
	return entities.MessageRef{ChatID: chat, MessageID: 100 + len(n.sent)}, nil
}

func (n *fakeNotifier) Edit(_ context.Context, _ entities.MessageRef, text string, _ *entities.Keyboard) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.edits = append(n.edits, text)
	return nil
}

func (n *fakeNotifier) AnnounceRecruit(_ context.Context, user *entities.User) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recruits = append(n.recruits, user)
}

func (n *fakeNotifier) FormatSOL(a decimal.Decimal) string { return a.StringFixed(4) + " SOL" }

func (n *fakeNotifier) lastSent() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return ""
	}
	return n.sent[len(n.sent)-1]
}

func (n *fakeNotifier) lastEdit() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.edits) == 0 {
		return ""
	}
	return n.edits[len(n.edits)-1]
}

type fakeMonitor struct {
	enabled []int64
}

func (m *fakeMonitor) BotAddress() string { return botAddr }

func (m *fakeMonitor) EnableMonitoring(_ context.Context, id int64) error {
	m.enabled = append(m.enabled, id)
	return nil
}

type fixture struct {
	svc      *Service
	users    *repositories.UserFileRepository
	notifier *fakeNotifier
	monitor  *fakeMonitor
	sched    *schedulertest.Manual
	ref      entities.MessageRef
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	users, err := repositories.NewUserFileRepository(filepath.Join(t.TempDir(), "users.json"), zap.NewNop())
	require.NoError(t, err)

	f := &fixture{
		users:    users,
		notifier: &fakeNotifier{},
		monitor:  &fakeMonitor{},
		sched:    schedulertest.NewManual(),
		ref:      entities.MessageRef{ChatID: chatID, MessageID: 7},
	}
	f.svc = NewService(users, fakeLedger{}, f.notifier, f.monitor, f.sched, DefaultConfig(), logger.NewNop())
	return f
}

func (f *fixture) step(t *testing.T) entities.SetupStep {
	t.Helper()
	u, err := f.users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	return u.SetupStep
}

func (f *fixture) press(t *testing.T, action string) error {
	t.Helper()
	handled, err := f.svc.HandleCallback(context.Background(), chatID, userID, f.ref, cb(action))
	require.True(t, handled)
	return err
}

func (f *fixture) text(t *testing.T, text string) {
	t.Helper()
	handled, err := f.svc.HandleText(context.Background(), chatID, userID, text)
	require.NoError(t, err)
	require.True(t, handled)
}

// toWallet drives a fresh user up to the wallet activation screen
func (f *fixture) toWallet(t *testing.T) {
	t.Helper()
	require.NoError(t, f.svc.Start(context.Background(), chatID, userID, entities.UserProfile{FirstName: "Ava"}))
	require.NoError(t, f.press(t, ActionBegin))
	f.text(t, "ops@sniper.io")
	f.sched.FireDelay(3 * time.Second)
	f.text(t, "10.0.0.7")
	f.sched.FireDelay(2 * time.Second)
	require.Equal(t, entities.SetupStepWallet, f.step(t))
}

func TestService_StartRegistersAndWelcomes(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Start(context.Background(), chatID, userID, entities.UserProfile{Username: "ava", FirstName: "Ava"})
	require.NoError(t, err)

	u, err := f.users.GetByID(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, entities.SetupStepStart, u.SetupStep)
	assert.Equal(t, "ava", u.Username)
	assert.True(t, u.MonitorEnabled)
	assert.Equal(t, welcomeText, f.notifier.lastSent())
}

func TestService_FullFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Start(ctx, chatID, userID, entities.UserProfile{FirstName: "Ava"}))
	require.NoError(t, f.press(t, ActionBegin))
	assert.Equal(t, entities.SetupStepEmail, f.step(t))
	assert.Equal(t, emailPromptText, f.notifier.lastEdit())

	f.text(t, "not-an-email")
	assert.Equal(t, invalidEmailText, f.notifier.lastSent())
	assert.Equal(t, entities.SetupStepEmail, f.step(t))

	f.text(t, "ops_lead@sniper.io")
	assert.Equal(t, entities.SetupStepCheckingEmail, f.step(t))
	assert.Contains(t, f.notifier.lastSent(), `ops\_lead@sniper.io`)
	require.Equal(t, 1, f.sched.PendingWithDelay(3*time.Second))

	f.sched.FireDelay(3 * time.Second)
	assert.Equal(t, entities.SetupStepIP, f.step(t))
	assert.Equal(t, ipPromptText, f.notifier.lastSent())

	f.text(t, "300.1.1.1")
	assert.Equal(t, invalidIPText, f.notifier.lastSent())

	f.text(t, "10.0.0.7")
	assert.Equal(t, entities.SetupStepConnecting, f.step(t))
	require.Equal(t, 1, f.sched.PendingWithDelay(2*time.Second))

	f.sched.FireDelay(2 * time.Second)
	assert.Equal(t, entities.SetupStepWallet, f.step(t))
	assert.Equal(t, walletPromptText, f.notifier.lastSent())

	require.NoError(t, f.press(t, ActionActivate))
	assert.Equal(t, activatingText, f.notifier.lastEdit())
	assert.Equal(t, entities.SetupStepWallet, f.step(t), "completion waits for the activation delay")

	f.sched.FireDelay(3 * time.Second)

	u, err := f.users.GetByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, entities.SetupStepCompleted, u.SetupStep)
	assert.Equal(t, botAddr, u.LinkedAddress)
	assert.True(t, u.WalletGenerated)
	assert.NotNil(t, u.SetupCompletedAt)
	assert.Equal(t, "ops_lead@sniper.io", u.Email)
	assert.Equal(t, "10.0.0.7", u.IP)

	assert.Equal(t, []int64{userID}, f.monitor.enabled)
	require.Len(t, f.notifier.recruits, 1)
	assert.Equal(t, botAddr, f.notifier.recruits[0].LinkedAddress)
	assert.Contains(t, f.notifier.lastSent(), "SETUP COMPLETE")
	assert.Contains(t, f.notifier.lastSent(), "1.5000 SOL")
	assert.NotContains(t, f.notifier.lastSent(), "PRIVATE KEY")
}

func TestService_StartShowsDashboardWhenComplete(t *testing.T) {
	f := newFixture(t)
	f.toWallet(t)
	require.NoError(t, f.press(t, ActionActivate))
	f.sched.FireAll()

	require.NoError(t, f.svc.Start(context.Background(), chatID, userID, entities.UserProfile{}))

	assert.Contains(t, f.notifier.lastSent(), "BirdEye Sniper Dashboard")
	assert.Contains(t, f.notifier.lastSent(), "🟢 Active")
}

func TestService_CancelDropsDelayedStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Start(ctx, chatID, userID, entities.UserProfile{}))
	require.NoError(t, f.press(t, ActionBegin))
	f.text(t, "ops@sniper.io")
	require.NoError(t, f.press(t, ActionCancel))

	sent := len(f.notifier.sent)
	f.sched.FireAll()

	u, err := f.users.GetByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, entities.SetupStepStart, u.SetupStep)
	assert.Empty(t, u.Email)
	assert.Equal(t, cancelledText, f.notifier.lastEdit())
	assert.Len(t, f.notifier.sent, sent, "no ip prompt after cancel")
}

func TestService_BackNavigation(t *testing.T) {
	f := newFixture(t)
	f.toWallet(t)

	require.NoError(t, f.press(t, ActionBackWallet))
	assert.Equal(t, entities.SetupStepIP, f.step(t))
	assert.Equal(t, ipPromptText, f.notifier.lastEdit())

	require.NoError(t, f.press(t, ActionBackIP))
	assert.Equal(t, entities.SetupStepEmail, f.step(t))
	assert.Equal(t, emailPromptText, f.notifier.lastEdit())

	require.NoError(t, f.press(t, ActionBackEmail))
	assert.Equal(t, entities.SetupStepStart, f.step(t))
	assert.Equal(t, welcomeText, f.notifier.lastEdit())
}

func TestService_ActivateRequiresWalletStep(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Start(context.Background(), chatID, userID, entities.UserProfile{}))

	err := f.press(t, ActionActivate)

	assert.True(t, domainerrors.IsValidation(err))
	assert.Equal(t, 0, f.sched.Pending())
}

func TestService_LearnMoreKeepsStep(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.svc.Start(context.Background(), chatID, userID, entities.UserProfile{}))

	require.NoError(t, f.press(t, ActionLearnMore))
	assert.Equal(t, learnMoreText, f.notifier.lastEdit())
	require.NoError(t, f.press(t, ActionWelcome))
	assert.Equal(t, welcomeText, f.notifier.lastEdit())
	assert.Equal(t, entities.SetupStepStart, f.step(t))
}

func TestService_HandleTextIgnoresOtherSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	handled, err := f.svc.HandleText(ctx, chatID, userID, "hello")
	require.NoError(t, err)
	assert.False(t, handled, "unknown user")

	require.NoError(t, f.svc.Start(ctx, chatID, userID, entities.UserProfile{}))
	handled, err = f.svc.HandleText(ctx, chatID, userID, "hello")
	require.NoError(t, err)
	assert.False(t, handled, "start step takes no text")
}

func TestService_HandleCallbackIgnoresForeignData(t *testing.T) {
	f := newFixture(t)

	handled, err := f.svc.HandleCallback(context.Background(), chatID, userID, f.ref, "tx:confirm")

	require.NoError(t, err)
	assert.False(t, handled)
}
