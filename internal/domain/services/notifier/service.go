package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	"github.com/birdeye-sniper/sniper_service/pkg/logger"
)

// Messenger is the chat transport
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string, keyboard *entities.Keyboard) (entities.MessageRef, error)
	Edit(ctx context.Context, ref entities.MessageRef, text string, keyboard *entities.Keyboard) error
	GroupAdmins(ctx context.Context, chatID int64) ([]int64, error)
}

// PriceSource provides the SOL/USD quote
type PriceSource interface {
	FetchSOLPrice(ctx context.Context) (decimal.Decimal, error)
}

// Mailer delivers transfer reports by email
type Mailer interface {
	SendTransferReport(ctx context.Context, to string, result *entities.TransferResult) error
}

// Config holds notifier settings
type Config struct {
	GroupID              int64
	AdminIDs             []int64
	DefaultPrice         decimal.Decimal
	AdminRefreshInterval time.Duration
}

// Service formats and delivers alerts and answers authorization questions
type Service struct {
	messenger Messenger
	prices    PriceSource
	mailer    Mailer
	config    Config
	admins    map[int64]struct{}
	logger    *logger.Logger
	now       func() time.Time

	priceMu        sync.RWMutex
	price          decimal.Decimal
	priceUpdatedAt time.Time

	groupMu          sync.Mutex
	groupAdmins      map[int64]struct{}
	groupRefreshedAt time.Time
}

// NewService creates a notifier. mailer may be nil.
func NewService(messenger Messenger, prices PriceSource, mailer Mailer, config Config, log *logger.Logger) *Service {
	if config.DefaultPrice.IsZero() {
		config.DefaultPrice = decimal.NewFromInt(100)
	}
	if config.AdminRefreshInterval == 0 {
		config.AdminRefreshInterval = time.Minute
	}

	admins := make(map[int64]struct{}, len(config.AdminIDs))
	for _, id := range config.AdminIDs {
		admins[id] = struct{}{}
	}

	return &Service{
		messenger:   messenger,
		prices:      prices,
		mailer:      mailer,
		config:      config,
		admins:      admins,
		logger:      log.Named("notifier"),
		now:         time.Now,
		groupAdmins: make(map[int64]struct{}),
	}
}

// GroupConfigured reports whether a broadcast channel is set
func (s *Service) GroupConfigured() bool {
	return s.config.GroupID != 0
}

// GroupID returns the broadcast channel id, zero when unset
func (s *Service) GroupID() int64 {
	return s.config.GroupID
}

// SendBroadcast posts to the broadcast channel. It returns nil without error when no channel is configured.
func (s *Service) SendBroadcast(ctx context.Context, text string, keyboard *entities.Keyboard) (*entities.MessageRef, error) {
	if !s.GroupConfigured() {
		return nil, nil
	}
	ref, err := s.messenger.Send(ctx, s.config.GroupID, text, keyboard)
	if err != nil {
		s.logger.Error("Failed to send broadcast", "error", err)
		return nil, err
	}
	return &ref, nil
}

// SendToUser posts a direct message
func (s *Service) SendToUser(ctx context.Context, chatID int64, text string, keyboard *entities.Keyboard) (entities.MessageRef, error) {
	ref, err := s.messenger.Send(ctx, chatID, text, keyboard)
	if err != nil {
		s.logger.Warn("Failed to send message", "chat_id", chatID, "error", err)
	}
	return ref, err
}

// Edit replaces a sent message
func (s *Service) Edit(ctx context.Context, ref entities.MessageRef, text string, keyboard *entities.Keyboard) error {
	if err := s.messenger.Edit(ctx, ref, text, keyboard); err != nil {
		s.logger.Warn("Failed to edit message", "chat_id", ref.ChatID, "message_id", ref.MessageID, "error", err)
		return err
	}
	return nil
}

// IsAdmin reports whether userID is a configured administrator
func (s *Service) IsAdmin(userID int64) bool {
	_, ok := s.admins[userID]
	return ok
}

// IsAuthorized accepts configured admins and administrators of the broadcast group.
// An unknown user triggers a throttled refresh of the group admin cache.
func (s *Service) IsAuthorized(ctx context.Context, userID int64) bool {
	if s.IsAdmin(userID) {
		return true
	}
	if !s.GroupConfigured() {
		return false
	}

	s.groupMu.Lock()
	_, cached := s.groupAdmins[userID]
	stale := s.now().Sub(s.groupRefreshedAt) >= s.config.AdminRefreshInterval
	s.groupMu.Unlock()

	if cached {
		return true
	}
	if !stale {
		return false
	}

	if err := s.RefreshGroupAdmins(ctx); err != nil {
		return false
	}

	s.groupMu.Lock()
	defer s.groupMu.Unlock()
	_, ok := s.groupAdmins[userID]
	return ok
}

// RefreshGroupAdmins reloads the broadcast group's administrator list
func (s *Service) RefreshGroupAdmins(ctx context.Context) error {
	if !s.GroupConfigured() {
		return nil
	}

	ids, err := s.messenger.GroupAdmins(ctx, s.config.GroupID)

	s.groupMu.Lock()
	defer s.groupMu.Unlock()
	s.groupRefreshedAt = s.now()
	if err != nil {
		s.logger.Warn("Failed to refresh group admins", "error", err)
		return err
	}

	s.groupAdmins = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		s.groupAdmins[id] = struct{}{}
	}
	s.logger.Debug("Group admins refreshed", "count", len(ids))
	return nil
}

// RefreshPrice fetches a new quote, keeping the cached one on failure
func (s *Service) RefreshPrice(ctx context.Context) error {
	if s.prices == nil {
		return nil
	}
	price, err := s.prices.FetchSOLPrice(ctx)
	if err != nil {
		s.logger.Warn("Failed to refresh SOL price, keeping cached quote", "error", err)
		return err
	}

	s.priceMu.Lock()
	s.price = price
	s.priceUpdatedAt = s.now()
	s.priceMu.Unlock()
	return nil
}

// Price returns the cached quote or the configured default
func (s *Service) Price() decimal.Decimal {
	s.priceMu.RLock()
	defer s.priceMu.RUnlock()
	if s.price.IsPositive() {
		return s.price
	}
	return s.config.DefaultPrice
}

// PriceUpdatedAt returns when the quote was last refreshed
func (s *Service) PriceUpdatedAt() time.Time {
	s.priceMu.RLock()
	defer s.priceMu.RUnlock()
	return s.priceUpdatedAt
}

// FormatSOL renders an amount with its USD value
func (s *Service) FormatSOL(amount decimal.Decimal) string {
	return FormatCurrency(amount, s.Price())
}

// FormatCurrency renders "x.xxxx SOL ($y.yy)"
func FormatCurrency(amount, price decimal.Decimal) string {
	return fmt.Sprintf("%s SOL ($%s)", amount.StringFixed(4), amount.Mul(price).StringFixed(2))
}

// DepositAlert broadcasts the initial deposit alert
func (s *Service) DepositAlert(ctx context.Context, event *entities.DepositEvent) (*entities.MessageRef, error) {
	return s.SendBroadcast(ctx, s.depositText(event), nil)
}

// EnrichDepositAlert edits the deposit alert with transaction details and the action keyboard
func (s *Service) EnrichDepositAlert(ctx context.Context, ref entities.MessageRef, event *entities.DepositEvent, details *entities.TransactionDetails, autoTransferIn time.Duration) error {
	text := s.depositText(event) + "\n\n" + s.detailsText(details, autoTransferIn)
	return s.Edit(ctx, ref, text, DepositKeyboard(event.Address))
}

// TransferAlert broadcasts a transfer outcome and mails the owner when possible
func (s *Service) TransferAlert(ctx context.Context, result *entities.TransferResult) {
	if _, err := s.SendBroadcast(ctx, s.transferText(result), nil); err != nil {
		s.logger.Error("Failed to broadcast transfer result", "kind", result.Kind, "error", err)
	}
	s.mailReport(ctx, result)
}

// NotifyTransfer sends the transfer outcome to the operator and the broadcast channel
func (s *Service) NotifyTransfer(ctx context.Context, chatID int64, result *entities.TransferResult) {
	text := s.transferText(result)
	if _, err := s.SendToUser(ctx, chatID, text, nil); err != nil {
		s.logger.Error("Failed to notify operator of transfer", "chat_id", chatID, "error", err)
	}
	if chatID != s.config.GroupID {
		if _, err := s.SendBroadcast(ctx, text, nil); err != nil {
			s.logger.Error("Failed to broadcast transfer result", "error", err)
		}
	}
	s.mailReport(ctx, result)
}

func (s *Service) mailReport(ctx context.Context, result *entities.TransferResult) {
	if s.mailer == nil || result.OwnerEmail == "" {
		return
	}
	if err := s.mailer.SendTransferReport(ctx, result.OwnerEmail, result); err != nil {
		s.logger.Warn("Failed to email transfer report", "error", err)
	}
}
