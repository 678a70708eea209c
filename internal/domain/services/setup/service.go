// Package setup runs the onboarding dialogue that takes a new chat user from
// /start to a completed profile linked to the bot wallet.
package setup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
	"github.com/birdeye-sniper/sniper_service/internal/domain/repositories"
	"github.com/birdeye-sniper/sniper_service/pkg/logger"
	"github.com/birdeye-sniper/sniper_service/pkg/scheduler"
	"github.com/birdeye-sniper/sniper_service/pkg/security"
)

// Ledger reads wallet balances for the completion and dashboard screens
type Ledger interface {
	GetBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

// Notifier delivers setup screens
type Notifier interface {
	SendToUser(ctx context.Context, chatID int64, text string, keyboard *entities.Keyboard) (entities.MessageRef, error)
	Edit(ctx context.Context, ref entities.MessageRef, text string, keyboard *entities.Keyboard) error
	AnnounceRecruit(ctx context.Context, user *entities.User)
	FormatSOL(amount decimal.Decimal) string
}

// Monitor enrolls users whose setup completed
type Monitor interface {
	BotAddress() string
	EnableMonitoring(ctx context.Context, userID int64) error
}

// Config holds the pauses between setup stages
type Config struct {
	EmailCheckDelay time.Duration
	ConnectDelay    time.Duration
	ActivationDelay time.Duration
}

// DefaultConfig returns the stock pauses
func DefaultConfig() Config {
	return Config{
		EmailCheckDelay: 3 * time.Second,
		ConnectDelay:    2 * time.Second,
		ActivationDelay: 3 * time.Second,
	}
}

// Service drives onboarding
type Service struct {
	users    repositories.UserRepository
	ledger   Ledger
	notifier Notifier
	monitor  Monitor
	sched    scheduler.Scheduler
	validate *validator.Validate
	config   Config
	logger   *logger.Logger
	now      func() time.Time
}

// NewService creates a setup service
func NewService(users repositories.UserRepository, ledger Ledger, notifier Notifier, monitor Monitor, sched scheduler.Scheduler, config Config, log *logger.Logger) *Service {
	return &Service{
		users:    users,
		ledger:   ledger,
		notifier: notifier,
		monitor:  monitor,
		sched:    sched,
		validate: validator.New(),
		config:   config,
		logger:   log.Named("setup"),
		now:      time.Now,
	}
}

// Start handles /start: new users are created and welcomed, finished ones get the dashboard
func (s *Service) Start(ctx context.Context, chatID, userID int64, profile entities.UserProfile) error {
	user, err := s.users.GetByID(ctx, userID)
	switch {
	case domainerrors.IsNotFound(err):
		user = entities.NewUser(userID, profile)
		if err := s.users.Create(ctx, user); err != nil {
			return domainerrors.Wrap(err, "failed to create user")
		}
		s.logger.Info("User registered", "user_id", userID, "username", profile.Username)
	case err != nil:
		return domainerrors.Wrap(err, "failed to load user")
	}

	if user.IsSetupComplete() {
		return s.Dashboard(ctx, chatID, userID, nil)
	}
	_, err = s.notifier.SendToUser(ctx, chatID, welcomeText, welcomeKeyboard())
	return err
}

// HandleCallback routes a "setup:" button press. It reports false for foreign data.
func (s *Service) HandleCallback(ctx context.Context, chatID, userID int64, ref entities.MessageRef, data string) (bool, error) {
	action, ok := strings.CutPrefix(data, CallbackPrefix+":")
	if !ok {
		return false, nil
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return true, err
	}

	switch action {
	case ActionBegin:
		return true, s.toEmail(ctx, user, &ref)
	case ActionLearnMore:
		return true, s.notifier.Edit(ctx, ref, learnMoreText, learnMoreKeyboard())
	case ActionWelcome:
		return true, s.notifier.Edit(ctx, ref, welcomeText, welcomeKeyboard())
	case ActionBackEmail:
		if _, err := s.setStep(ctx, user, entities.SetupStepStart); err != nil {
			return true, err
		}
		return true, s.notifier.Edit(ctx, ref, welcomeText, welcomeKeyboard())
	case ActionBackIP:
		return true, s.toEmail(ctx, user, &ref)
	case ActionBackWallet:
		return true, s.toIP(ctx, chatID, user, &ref)
	case ActionActivate:
		return true, s.activate(ctx, chatID, user, ref)
	case ActionCancel:
		return true, s.cancel(ctx, user, ref)
	case ActionDashboard:
		return true, s.Dashboard(ctx, chatID, userID, &ref)
	}
	return true, domainerrors.ValidationError("callback", "unknown setup action "+action)
}

// HandleText consumes free text while the user is on a step that expects it.
// It reports false when the user is not waiting for setup input.
func (s *Service) HandleText(ctx context.Context, chatID, userID int64, text string) (bool, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if domainerrors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	text = strings.TrimSpace(text)
	switch user.SetupStep {
	case entities.SetupStepEmail:
		return true, s.receiveEmail(ctx, chatID, user, text)
	case entities.SetupStepIP:
		return true, s.receiveIP(ctx, chatID, user, text)
	}
	return false, nil
}

// Dashboard shows the main menu, editing ref in place when given
func (s *Service) Dashboard(ctx context.Context, chatID, userID int64, ref *entities.MessageRef) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsSetupComplete() {
		return s.show(ctx, chatID, ref, welcomeText, welcomeKeyboard())
	}
	return s.show(ctx, chatID, ref, s.dashboardText(ctx, user), dashboardKeyboard())
}

func (s *Service) toEmail(ctx context.Context, user *entities.User, ref *entities.MessageRef) error {
	if _, err := s.setStep(ctx, user, entities.SetupStepEmail); err != nil {
		return err
	}
	return s.show(ctx, ref.ChatID, ref, emailPromptText, navKeyboard(ActionBackEmail))
}

func (s *Service) toIP(ctx context.Context, chatID int64, user *entities.User, ref *entities.MessageRef) error {
	if _, err := s.setStep(ctx, user, entities.SetupStepIP); err != nil {
		return err
	}
	return s.show(ctx, chatID, ref, ipPromptText, navKeyboard(ActionBackIP))
}

func (s *Service) receiveEmail(ctx context.Context, chatID int64, user *entities.User, email string) error {
	if err := s.validate.Var(email, "required,email"); err != nil {
		_, err := s.notifier.SendToUser(ctx, chatID, invalidEmailText, navKeyboard(ActionBackEmail))
		return err
	}

	if _, err := s.users.Update(ctx, user.ID, entities.UserUpdate{
		Email:     entities.StringPtr(email),
		SetupStep: entities.StepPtr(entities.SetupStepCheckingEmail),
	}); err != nil {
		return domainerrors.Wrap(err, "failed to save email")
	}
	if _, err := s.notifier.SendToUser(ctx, chatID, checkingEmailText(email), nil); err != nil {
		return err
	}

	return s.after(s.config.EmailCheckDelay, user.ID, entities.SetupStepCheckingEmail, func(ctx context.Context, u *entities.User) error {
		return s.toIP(ctx, chatID, u, nil)
	})
}

func (s *Service) receiveIP(ctx context.Context, chatID int64, user *entities.User, ip string) error {
	if err := s.validate.Var(ip, "required,ipv4"); err != nil {
		_, err := s.notifier.SendToUser(ctx, chatID, invalidIPText, navKeyboard(ActionBackIP))
		return err
	}

	if _, err := s.users.Update(ctx, user.ID, entities.UserUpdate{
		IP:        entities.StringPtr(ip),
		SetupStep: entities.StepPtr(entities.SetupStepConnecting),
	}); err != nil {
		return domainerrors.Wrap(err, "failed to save ip")
	}
	if _, err := s.notifier.SendToUser(ctx, chatID, connectingText(ip), nil); err != nil {
		return err
	}

	return s.after(s.config.ConnectDelay, user.ID, entities.SetupStepConnecting, func(ctx context.Context, u *entities.User) error {
		if _, err := s.setStep(ctx, u, entities.SetupStepWallet); err != nil {
			return err
		}
		_, err := s.notifier.SendToUser(ctx, chatID, walletPromptText, walletKeyboard())
		return err
	})
}

func (s *Service) activate(ctx context.Context, chatID int64, user *entities.User, ref entities.MessageRef) error {
	if user.SetupStep != entities.SetupStepWallet {
		return domainerrors.ValidationError("setup_step", "wallet activation is not available at step "+string(user.SetupStep))
	}
	if err := s.notifier.Edit(ctx, ref, activatingText, nil); err != nil {
		return err
	}

	return s.after(s.config.ActivationDelay, user.ID, entities.SetupStepWallet, func(ctx context.Context, u *entities.User) error {
		return s.complete(ctx, chatID, u)
	})
}

func (s *Service) complete(ctx context.Context, chatID int64, user *entities.User) error {
	address := s.monitor.BotAddress()
	completedAt := s.now().UTC()

	user, err := s.users.Update(ctx, user.ID, entities.UserUpdate{
		SetupStep:        entities.StepPtr(entities.SetupStepCompleted),
		LinkedAddress:    entities.StringPtr(address),
		WalletGenerated:  entities.BoolPtr(true),
		SetupCompletedAt: &completedAt,
	})
	if err != nil {
		return domainerrors.Wrap(err, "failed to complete setup")
	}
	if err := s.monitor.EnableMonitoring(ctx, user.ID); err != nil {
		s.logger.Error("Failed to enroll user in monitoring", "user_id", user.ID, "error", err)
	}
	s.logger.Info("Setup completed", "user_id", user.ID, "address", security.MaskAddress(address))

	if _, err := s.notifier.SendToUser(ctx, chatID, s.completedText(ctx, user), completedKeyboard()); err != nil {
		s.logger.Warn("Failed to send setup confirmation", "user_id", user.ID, "error", err)
	}
	s.notifier.AnnounceRecruit(ctx, user)
	return nil
}

func (s *Service) cancel(ctx context.Context, user *entities.User, ref entities.MessageRef) error {
	if _, err := s.users.Update(ctx, user.ID, entities.ResetSetupUpdate()); err != nil {
		return domainerrors.Wrap(err, "failed to reset setup")
	}
	s.logger.Info("Setup cancelled", "user_id", user.ID, "step", user.SetupStep)
	return s.notifier.Edit(ctx, ref, cancelledText, nil)
}

func (s *Service) setStep(ctx context.Context, user *entities.User, next entities.SetupStep) (*entities.User, error) {
	if user.SetupStep == next {
		return user, nil
	}
	if err := user.SetupStep.ValidateTransition(next); err != nil {
		return nil, domainerrors.ValidationError("setup_step", err.Error())
	}
	updated, err := s.users.Update(ctx, user.ID, entities.UserUpdate{SetupStep: entities.StepPtr(next)})
	if err != nil {
		return nil, domainerrors.Wrap(err, "failed to update setup step")
	}
	return updated, nil
}

// after runs step once delay elapses, provided the user is still at expect.
// A cancel or navigation in the meantime drops the step.
func (s *Service) after(delay time.Duration, userID int64, expect entities.SetupStep, step func(context.Context, *entities.User) error) error {
	_, err := s.sched.After(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			s.logger.Error("Failed to load user for delayed setup step", "user_id", userID, "error", err)
			return
		}
		if user.SetupStep != expect {
			s.logger.Debug("Delayed setup step dropped", "user_id", userID, "expected", expect, "actual", user.SetupStep)
			return
		}
		if err := step(ctx, user); err != nil {
			s.logger.Error("Delayed setup step failed", "user_id", userID, "step", expect, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule setup step: %w", err)
	}
	return nil
}

// show edits ref when given, otherwise sends a new message
func (s *Service) show(ctx context.Context, chatID int64, ref *entities.MessageRef, text string, keyboard *entities.Keyboard) error {
	if ref != nil {
		if err := s.notifier.Edit(ctx, *ref, text, keyboard); err == nil {
			return nil
		}
	}
	_, err := s.notifier.SendToUser(ctx, chatID, text, keyboard)
	return err
}

func (s *Service) balanceText(ctx context.Context, address string) string {
	if address == "" {
		return "N/A"
	}
	balance, err := s.ledger.GetBalance(ctx, address)
	if err != nil {
		s.logger.Warn("Balance lookup failed", "address", address, "error", err)
		return "unavailable"
	}
	return s.notifier.FormatSOL(balance)
}
