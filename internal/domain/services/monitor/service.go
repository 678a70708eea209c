package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
	"github.com/birdeye-sniper/sniper_service/internal/domain/repositories"
	"github.com/birdeye-sniper/sniper_service/pkg/logger"
	"github.com/birdeye-sniper/sniper_service/pkg/metrics"
	"github.com/birdeye-sniper/sniper_service/pkg/scheduler"
	"github.com/birdeye-sniper/sniper_service/pkg/tracing"
)

// Ledger is the chain access the monitor needs
type Ledger interface {
	IsValidAddress(address string) bool
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
	GetRecentTransactions(ctx context.Context, address string, limit int) ([]entities.LedgerTransaction, error)
	GetTransactionDetails(ctx context.Context, signature string) (*entities.TransactionDetails, error)
	SendPayment(ctx context.Context, fromAddress, toAddress string, amount decimal.Decimal) (string, error)
}

// Notifier publishes monitor events
type Notifier interface {
	DepositAlert(ctx context.Context, event *entities.DepositEvent) (*entities.MessageRef, error)
	EnrichDepositAlert(ctx context.Context, ref entities.MessageRef, event *entities.DepositEvent, details *entities.TransactionDetails, autoTransferIn time.Duration) error
	TransferAlert(ctx context.Context, result *entities.TransferResult)
}

// HealthRunner runs the periodic health check
type HealthRunner interface {
	Run(ctx context.Context) *entities.HealthSnapshot
}

// PendingSweeper drops stale interactive transfers
type PendingSweeper interface {
	Sweep(maxAge time.Duration) int
}

// Config holds monitor settings
type Config struct {
	BotAddress         string
	PollInterval       time.Duration
	DustThreshold      decimal.Decimal
	AutoTransferDelay  time.Duration
	AutoTransferRatio  decimal.Decimal
	DetailsDelay       time.Duration
	HealthSchedule     string
	SweepSchedule      string
	PendingMaxAge      time.Duration
	InitialHealthDelay time.Duration
}

// DefaultConfig returns the production cadence
func DefaultConfig() Config {
	return Config{
		PollInterval:       30 * time.Second,
		DustThreshold:      decimal.RequireFromString("0.001"),
		AutoTransferDelay:  30 * time.Minute,
		AutoTransferRatio:  decimal.RequireFromString("0.95"),
		DetailsDelay:       3 * time.Second,
		HealthSchedule:     "0 */6 * * *",
		SweepSchedule:      "0 * * * *",
		PendingMaxAge:      30 * time.Minute,
		InitialHealthDelay: time.Minute,
	}
}

type wallet struct {
	address       string
	owner         int64
	owners        map[int64]struct{}
	lastBalance   decimal.Decimal
	lastCheckedAt time.Time

	// at most one auto-transfer timer; generation invalidates callbacks of replaced timers
	cancelAuto scheduler.CancelFunc
	autoAt     *time.Time
	autoGen    uint64
}

func (w *wallet) view() entities.MonitoredWallet {
	owners := make([]int64, 0, len(w.owners))
	for id := range w.owners {
		owners = append(owners, id)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })

	mw := entities.MonitoredWallet{
		Address:             w.address,
		OwnerUserID:         w.owner,
		Owners:              owners,
		LastObservedBalance: w.lastBalance,
		LastCheckedAt:       w.lastCheckedAt,
		AutoTransferPending: w.cancelAuto != nil,
	}
	if w.autoAt != nil {
		at := *w.autoAt
		mw.AutoTransferScheduleAt = &at
	}
	return mw
}

// Service polls registered addresses and reacts to deposits
type Service struct {
	ledger   Ledger
	notifier Notifier
	users    repositories.UserRepository
	sched    scheduler.Scheduler
	config   Config
	logger   *logger.Logger
	now      func() time.Time

	mu           sync.Mutex
	wallets      map[string]*wallet
	running      bool
	startedAt    time.Time
	lastPollAt   time.Time
	lastHealthAt time.Time
	stopCh       chan struct{}
	done         chan struct{}
	cron         *cron.Cron
	cancelFirst  scheduler.CancelFunc
	health       HealthRunner
	sweeper      PendingSweeper
}

// NewService creates a monitor
func NewService(ledger Ledger, notifier Notifier, users repositories.UserRepository, sched scheduler.Scheduler, config Config, log *logger.Logger) *Service {
	defaults := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if !config.DustThreshold.IsPositive() {
		config.DustThreshold = defaults.DustThreshold
	}
	if config.AutoTransferDelay <= 0 {
		config.AutoTransferDelay = defaults.AutoTransferDelay
	}
	if !config.AutoTransferRatio.IsPositive() {
		config.AutoTransferRatio = defaults.AutoTransferRatio
	}
	if config.DetailsDelay <= 0 {
		config.DetailsDelay = defaults.DetailsDelay
	}
	if config.HealthSchedule == "" {
		config.HealthSchedule = defaults.HealthSchedule
	}
	if config.SweepSchedule == "" {
		config.SweepSchedule = defaults.SweepSchedule
	}
	if config.PendingMaxAge <= 0 {
		config.PendingMaxAge = defaults.PendingMaxAge
	}

	return &Service{
		ledger:   ledger,
		notifier: notifier,
		users:    users,
		sched:    sched,
		config:   config,
		logger:   log.Named("monitor"),
		now:      time.Now,
		wallets:  make(map[string]*wallet),
	}
}

// AttachHealth sets the runner for the scheduled health check
func (s *Service) AttachHealth(runner HealthRunner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = runner
}

// AttachSweeper sets the target of the scheduled pending sweep
func (s *Service) AttachSweeper(sweeper PendingSweeper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeper = sweeper
}

// BotAddress returns the shared monitored address
func (s *Service) BotAddress() string {
	return s.config.BotAddress
}

// Start loads enrolled users, starts the poll loop and the cron jobs. Calling it again is a no-op.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.startedAt = s.now()
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	s.loadEnrolled(ctx)

	c := cron.New()
	if _, err := c.AddFunc(s.config.HealthSchedule, s.runHealth); err != nil {
		s.abortStart(done)
		return domainerrors.Wrap(err, "invalid health schedule")
	}
	if _, err := c.AddFunc(s.config.SweepSchedule, s.sweepPending); err != nil {
		s.abortStart(done)
		return domainerrors.Wrap(err, "invalid sweep schedule")
	}
	c.Start()

	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()

	if s.config.InitialHealthDelay > 0 {
		cancelFirst, err := s.sched.After(s.config.InitialHealthDelay, s.runHealth)
		if err != nil {
			s.logger.Warn("Failed to schedule initial health check", "error", err)
		} else {
			s.mu.Lock()
			s.cancelFirst = cancelFirst
			s.mu.Unlock()
		}
	}

	go s.loop(ctx, stopCh, done)

	s.logger.Info("Wallet monitor started",
		"wallets", s.walletCount(),
		"poll_interval", s.config.PollInterval.String(),
		"dust_threshold", s.config.DustThreshold.String())
	return nil
}

func (s *Service) abortStart(done chan struct{}) {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	close(done)
}

// Stop halts polling, the cron jobs and a not yet fired initial health check.
// Pending auto-transfer timers stay armed.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()

	s.halt()
	<-done
	s.logger.Info("Wallet monitor stopped")
}

// halt clears the run state and stops the jobs tied to it
func (s *Service) halt() {
	s.mu.Lock()
	s.running = false
	c, cancelFirst := s.cron, s.cancelFirst
	s.cron, s.cancelFirst = nil, nil
	s.mu.Unlock()

	if cancelFirst != nil {
		cancelFirst()
	}
	if c != nil {
		<-c.Stop().Done()
	}
}

func (s *Service) loop(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.PollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			// Stop may have won the race and already owns the teardown
			stopping := !s.running || s.stopCh != stopCh
			s.mu.Unlock()
			if !stopping {
				s.halt()
				s.logger.Info("Wallet monitor loop stopped (context cancelled)")
			}
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

func (s *Service) loadEnrolled(ctx context.Context) {
	users, err := s.users.ListActive(ctx)
	if err != nil {
		s.logger.Error("Failed to load enrolled users", "error", err)
		return
	}

	for _, u := range users {
		if !u.IsSetupComplete() {
			continue
		}
		if err := s.AddWallet(s.config.BotAddress, u.ID); err != nil {
			s.logger.Warn("Failed to enroll user", "user_id", u.ID, "error", err)
		}
	}
}

// AddWallet registers userID as an owner of address. A re-registration keeps the balance state
// and makes userID the current owner.
func (s *Service) AddWallet(address string, userID int64) error {
	if !s.ledger.IsValidAddress(address) {
		return domainerrors.InvalidAddressError(address)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[address]
	if !ok {
		w = &wallet{
			address:     address,
			owners:      make(map[int64]struct{}),
			lastBalance: decimal.Zero,
		}
		s.wallets[address] = w
	}
	w.owners[userID] = struct{}{}
	w.owner = userID
	s.publish()

	s.logger.Info("Wallet registered", "address", address, "owner", userID, "owners", len(w.owners))
	return nil
}

// RemoveWallet deregisters address and cancels its auto-transfer timer
func (s *Service) RemoveWallet(address string) bool {
	s.mu.Lock()
	w, ok := s.wallets[address]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.wallets, address)
	cancel := w.cancelAuto
	w.cancelAuto = nil
	w.autoGen++
	s.publish()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.logger.Info("Wallet removed", "address", address)
	return true
}

// ReleaseWallet drops userID's claim on address and deregisters it once nobody is left.
// It reports whether the address was deregistered.
func (s *Service) ReleaseWallet(address string, userID int64) bool {
	s.mu.Lock()
	w, ok := s.wallets[address]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(w.owners, userID)
	if len(w.owners) > 0 {
		if w.owner == userID {
			w.owner = lowestOwner(w.owners)
		}
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	return s.RemoveWallet(address)
}

func lowestOwner(owners map[int64]struct{}) int64 {
	first := true
	var lowest int64
	for id := range owners {
		if first || id < lowest {
			lowest = id
			first = false
		}
	}
	return lowest
}

// EnableMonitoring persists the flag and enrolls the user on the bot address
func (s *Service) EnableMonitoring(ctx context.Context, userID int64) error {
	if _, err := s.users.Update(ctx, userID, entities.UserUpdate{MonitorEnabled: entities.BoolPtr(true)}); err != nil {
		return domainerrors.Wrap(err, "failed to enable monitoring")
	}
	return s.AddWallet(s.config.BotAddress, userID)
}

// DisableMonitoring persists the flag and releases the user's claim on the bot address
func (s *Service) DisableMonitoring(ctx context.Context, userID int64) error {
	if _, err := s.users.Update(ctx, userID, entities.UserUpdate{MonitorEnabled: entities.BoolPtr(false)}); err != nil {
		return domainerrors.Wrap(err, "failed to disable monitoring")
	}
	s.ReleaseWallet(s.config.BotAddress, userID)
	return nil
}

// CancelAutoTransfer disarms the pending auto-transfer of address.
// It reports whether a timer was armed.
func (s *Service) CancelAutoTransfer(address string) bool {
	s.mu.Lock()
	w, ok := s.wallets[address]
	if !ok || w.cancelAuto == nil {
		s.mu.Unlock()
		return false
	}
	cancel := w.cancelAuto
	w.cancelAuto = nil
	w.autoAt = nil
	w.autoGen++
	s.mu.Unlock()

	cancel()
	s.logger.Info("Auto-transfer cancelled", "address", address)
	return true
}

// Status reports the run state
func (s *Service) Status() entities.MonitorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return entities.MonitorStatus{
		Running:         s.running,
		WalletCount:     len(s.wallets),
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		LastHealthCheck: s.lastHealthAt,
		PollInterval:    s.config.PollInterval.String(),
	}
}

// Wallets returns the registry sorted by address
func (s *Service) Wallets() []entities.MonitoredWallet {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entities.MonitoredWallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Wallet returns one registry entry
func (s *Service) Wallet(address string) (entities.MonitoredWallet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[address]
	if !ok {
		return entities.MonitoredWallet{}, false
	}
	return w.view(), true
}

func (s *Service) walletCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.wallets)
}

// publish updates the gauge. Caller holds mu.
func (s *Service) publish() {
	metrics.MonitoredWalletsGauge.Set(float64(len(s.wallets)))
}

// PollOnce checks every registered address once
func (s *Service) PollOnce(ctx context.Context) {
	s.mu.Lock()
	addresses := make([]string, 0, len(s.wallets))
	for address := range s.wallets {
		addresses = append(addresses, address)
	}
	s.mu.Unlock()
	sort.Strings(addresses)

	ctx, span := tracing.StartSpan(ctx, "monitor", "monitor.poll", attribute.Int("wallets", len(addresses)))
	defer tracing.EndSpan(span, nil)

	for _, address := range addresses {
		if ctx.Err() != nil {
			return
		}
		s.checkWallet(ctx, address)
	}

	s.mu.Lock()
	s.lastPollAt = s.now()
	s.mu.Unlock()
	metrics.PollCyclesTotal.Inc()
}

func (s *Service) checkWallet(ctx context.Context, address string) {
	balance, err := s.ledger.GetBalance(ctx, address)

	s.mu.Lock()
	w, ok := s.wallets[address]
	if !ok {
		s.mu.Unlock()
		return
	}
	w.lastCheckedAt = s.now()
	if err != nil {
		s.mu.Unlock()
		metrics.BalanceFetchErrorsTotal.Inc()
		s.logger.Warn("Failed to fetch balance", "address", address, "error", err)
		return
	}

	// observed balance advances on every successful fetch, dust included
	previous := w.lastBalance
	delta := balance.Sub(previous)
	w.lastBalance = balance

	if delta.Abs().LessThanOrEqual(s.config.DustThreshold) {
		s.mu.Unlock()
		return
	}
	if delta.IsNegative() {
		s.mu.Unlock()
		s.logger.Info("Balance decreased", "address", address, "previous", previous.String(), "current", balance.String())
		return
	}

	event := &entities.DepositEvent{
		ID:              uuid.New(),
		Address:         address,
		OwnerUserID:     w.owner,
		Watchers:        len(w.owners),
		PreviousBalance: previous,
		NewBalance:      balance,
		Delta:           delta,
		DetectedAt:      s.now(),
	}
	s.mu.Unlock()

	s.handleDeposit(ctx, event)
}

func (s *Service) handleDeposit(ctx context.Context, event *entities.DepositEvent) {
	metrics.DepositsDetectedTotal.Inc()
	event.OwnerContact = "Unknown"
	if owner, err := s.users.GetByID(ctx, event.OwnerUserID); err == nil {
		event.OwnerContact = owner.Contact()
	}

	s.logger.Info("Deposit detected",
		"event_id", event.ID.String(),
		"address", event.Address,
		"delta", event.Delta.String(),
		"balance", event.NewBalance.String())

	ref, err := s.notifier.DepositAlert(ctx, event)
	if err != nil {
		s.logger.Error("Failed to send deposit alert", "address", event.Address, "error", err)
	}

	s.scheduleAutoTransfer(event.Address)

	if ref == nil {
		return
	}
	alert := *ref
	if _, err := s.sched.After(s.config.DetailsDelay, func() { s.enrichAlert(alert, event) }); err != nil {
		s.logger.Warn("Failed to schedule alert enrichment", "address", event.Address, "error", err)
	}
}

func (s *Service) scheduleAutoTransfer(address string) {
	s.mu.Lock()
	w, ok := s.wallets[address]
	if !ok {
		s.mu.Unlock()
		return
	}
	previous := w.cancelAuto
	w.cancelAuto = nil
	w.autoAt = nil
	w.autoGen++
	gen := w.autoGen
	s.mu.Unlock()

	if previous != nil {
		previous()
	}

	cancel, err := s.sched.After(s.config.AutoTransferDelay, func() { s.runAutoTransfer(address, gen) })
	if err != nil {
		s.logger.Error("Failed to schedule auto-transfer", "address", address, "error", err)
		return
	}

	s.mu.Lock()
	w, ok = s.wallets[address]
	if !ok || w.autoGen != gen {
		s.mu.Unlock()
		cancel()
		return
	}
	at := s.now().Add(s.config.AutoTransferDelay)
	w.cancelAuto = cancel
	w.autoAt = &at
	s.mu.Unlock()

	s.logger.Info("Auto-transfer armed", "address", address, "fires_at", at.Format(time.RFC3339))
}

func (s *Service) runAutoTransfer(address string, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	s.mu.Lock()
	w, ok := s.wallets[address]
	if !ok || w.autoGen != gen {
		s.mu.Unlock()
		return
	}
	w.cancelAuto = nil
	w.autoAt = nil
	owner := w.owner
	s.mu.Unlock()

	user, err := s.users.GetByID(ctx, owner)
	if err != nil {
		s.logger.Warn("Auto-transfer skipped, owner unavailable", "address", address, "owner", owner, "error", err)
		return
	}
	if user.PayoutAddress == "" {
		s.logger.Info("Auto-transfer skipped, no payout address", "address", address, "owner", owner)
		return
	}

	balance, err := s.ledger.GetBalance(ctx, address)
	if err != nil {
		s.logger.Error("Auto-transfer aborted, balance unavailable", "address", address, "error", err)
		return
	}
	if balance.LessThanOrEqual(s.config.DustThreshold) {
		s.logger.Debug("Auto-transfer skipped, balance at dust", "address", address, "balance", balance.String())
		return
	}

	amount := balance.Mul(s.config.AutoTransferRatio).Truncate(9)
	result := &entities.TransferResult{
		Kind:       entities.TransferKindAuto,
		From:       address,
		To:         user.PayoutAddress,
		Amount:     amount,
		OwnerEmail: user.Email,
	}
	result.Signature, result.Err = s.ledger.SendPayment(ctx, address, user.PayoutAddress, amount)
	result.CompletedAt = s.now()
	metrics.TransfersTotal.WithLabelValues(string(result.Kind), result.Status()).Inc()

	if result.Succeeded() {
		s.logger.Info("Auto-transfer executed", "address", address, "to", user.PayoutAddress, "amount", amount.String(), "signature", result.Signature)
	} else {
		s.logger.Error("Auto-transfer failed", "address", address, "to", user.PayoutAddress, "amount", amount.String(), "error", result.Err)
	}
	s.notifier.TransferAlert(ctx, result)
}

func (s *Service) enrichAlert(ref entities.MessageRef, event *entities.DepositEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var details *entities.TransactionDetails
	txs, err := s.ledger.GetRecentTransactions(ctx, event.Address, 1)
	switch {
	case err != nil:
		s.logger.Warn("Failed to fetch recent transactions", "address", event.Address, "error", err)
	case len(txs) > 0:
		details, err = s.ledger.GetTransactionDetails(ctx, txs[0].Signature)
		if err != nil {
			s.logger.Warn("Failed to fetch transaction details", "signature", txs[0].Signature, "error", err)
			details = &entities.TransactionDetails{Signature: txs[0].Signature, Timestamp: txs[0].BlockTime, Failed: txs[0].Failed}
		}
	}

	var autoIn time.Duration
	s.mu.Lock()
	if w, ok := s.wallets[event.Address]; ok && w.autoAt != nil {
		autoIn = w.autoAt.Sub(s.now())
	}
	s.mu.Unlock()

	if err := s.notifier.EnrichDepositAlert(ctx, ref, event, details, autoIn); err != nil {
		s.logger.Warn("Failed to enrich deposit alert", "address", event.Address, "error", err)
	}
}

// RunHealthCheck runs the attached health check now
func (s *Service) RunHealthCheck(ctx context.Context) *entities.HealthSnapshot {
	s.mu.Lock()
	runner := s.health
	s.mu.Unlock()
	if runner == nil {
		return nil
	}

	snapshot := runner.Run(ctx)
	s.mu.Lock()
	s.lastHealthAt = s.now()
	s.mu.Unlock()
	return snapshot
}

func (s *Service) runHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	s.RunHealthCheck(ctx)
}

func (s *Service) sweepPending() {
	s.mu.Lock()
	sweeper := s.sweeper
	s.mu.Unlock()
	if sweeper == nil {
		return
	}
	if removed := sweeper.Sweep(s.config.PendingMaxAge); removed > 0 {
		s.logger.Info("Pending transactions swept", "removed", removed)
	}
}
