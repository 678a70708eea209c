package entities

import (
	"strconv"
	"time"
)

// User is a chat user known to the bot
type User struct {
	ID               int64      `json:"id" db:"id"`
	Username         string     `json:"telegram_username,omitempty" db:"username"`
	FirstName        string     `json:"telegram_first_name,omitempty" db:"first_name"`
	LastName         string     `json:"telegram_last_name,omitempty" db:"last_name"`
	Email            string     `json:"email,omitempty" db:"email"`
	IP               string     `json:"ip,omitempty" db:"ip"`
	SetupStep        SetupStep  `json:"setup_step" db:"setup_step"`
	MonitorEnabled   bool       `json:"monitor_enabled" db:"monitor_enabled"`
	LinkedAddress    string     `json:"sol_address,omitempty" db:"linked_address"`
	PayoutAddress    string     `json:"payout_address,omitempty" db:"payout_address"`
	WalletGenerated  bool       `json:"wallet_generated" db:"wallet_generated"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
	SetupCompletedAt *time.Time `json:"setup_completed_at,omitempty" db:"setup_completed_at"`
}

// NewUser returns a fresh user at the start of onboarding with monitoring enabled
func NewUser(id int64, profile UserProfile) *User {
	now := time.Now().UTC()
	return &User{
		ID:             id,
		Username:       profile.Username,
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		SetupStep:      SetupStepStart,
		MonitorEnabled: true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// UserProfile carries the chat-provided identity fields
type UserProfile struct {
	Username  string
	FirstName string
	LastName  string
}

// Key returns the string form used as a map or cache key
func (u *User) Key() string {
	return strconv.FormatInt(u.ID, 10)
}

// IsActive reports whether the user participates in monitoring
func (u *User) IsActive() bool {
	return u.MonitorEnabled
}

// IsSetupComplete reports whether onboarding finished
func (u *User) IsSetupComplete() bool {
	return u.SetupStep.IsTerminal()
}

// DisplayName returns the best available human name
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return "Commander"
	}
}

// Contact returns the owner contact shown in alerts
func (u *User) Contact() string {
	if u.Email != "" {
		return u.Email
	}
	return "Unknown"
}

// Clone returns a deep copy
func (u *User) Clone() *User {
	c := *u
	if u.SetupCompletedAt != nil {
		t := *u.SetupCompletedAt
		c.SetupCompletedAt = &t
	}
	return &c
}

// UserUpdate is a partial update; nil fields are left untouched
type UserUpdate struct {
	Email            *string
	IP               *string
	SetupStep        *SetupStep
	MonitorEnabled   *bool
	LinkedAddress    *string
	PayoutAddress    *string
	WalletGenerated  *bool
	SetupCompletedAt *time.Time
	ClearCompletedAt bool
}

// Apply merges the update into u and bumps UpdatedAt
func (upd UserUpdate) Apply(u *User) {
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.IP != nil {
		u.IP = *upd.IP
	}
	if upd.SetupStep != nil {
		u.SetupStep = *upd.SetupStep
	}
	if upd.MonitorEnabled != nil {
		u.MonitorEnabled = *upd.MonitorEnabled
	}
	if upd.LinkedAddress != nil {
		u.LinkedAddress = *upd.LinkedAddress
	}
	if upd.PayoutAddress != nil {
		u.PayoutAddress = *upd.PayoutAddress
	}
	if upd.WalletGenerated != nil {
		u.WalletGenerated = *upd.WalletGenerated
	}
	if upd.SetupCompletedAt != nil {
		t := *upd.SetupCompletedAt
		u.SetupCompletedAt = &t
	}
	if upd.ClearCompletedAt {
		u.SetupCompletedAt = nil
	}
	u.UpdatedAt = time.Now().UTC()
}

// ResetSetupUpdate returns the update that sends a user back to the start of onboarding
func ResetSetupUpdate() UserUpdate {
	step := SetupStepStart
	empty := ""
	no := false
	return UserUpdate{
		SetupStep:        &step,
		Email:            &empty,
		IP:               &empty,
		WalletGenerated:  &no,
		ClearCompletedAt: true,
	}
}

// UserStats summarizes the user base
type UserStats struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
}

// ComputeUserStats counts users by state
func ComputeUserStats(users []*User) UserStats {
	stats := UserStats{Total: len(users)}
	for _, u := range users {
		if u.IsActive() {
			stats.Active++
		}
		if u.IsSetupComplete() {
			stats.Completed++
		}
	}
	return stats
}

// pointer helpers for UserUpdate literals

func StringPtr(s string) *string { return &s }

func BoolPtr(b bool) *bool { return &b }

func StepPtr(s SetupStep) *SetupStep { return &s }
