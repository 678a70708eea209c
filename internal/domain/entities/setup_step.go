package entities

import "fmt"

// SetupStep represents a user's progress through the onboarding dialogue
type SetupStep string

const (
	SetupStepStart         SetupStep = "start"
	SetupStepEmail         SetupStep = "email"
	SetupStepCheckingEmail SetupStep = "checking_email"
	SetupStepIP            SetupStep = "ip"
	SetupStepConnecting    SetupStep = "connecting"
	SetupStepWallet        SetupStep = "wallet"
	SetupStepCompleted     SetupStep = "completed"
)

// ValidSetupTransitions defines allowed step transitions.
// Any step may also fall back to start when the user cancels.
var ValidSetupTransitions = map[SetupStep][]SetupStep{
	SetupStepStart:         {SetupStepEmail},
	SetupStepEmail:         {SetupStepCheckingEmail},
	SetupStepCheckingEmail: {SetupStepIP},
	SetupStepIP:            {SetupStepConnecting, SetupStepEmail},
	SetupStepConnecting:    {SetupStepWallet},
	SetupStepWallet:        {SetupStepCompleted, SetupStepIP},
	SetupStepCompleted:     {}, // Terminal state
}

// IsValid checks if the step is known
func (s SetupStep) IsValid() bool {
	_, ok := ValidSetupTransitions[s]
	return ok
}

// CanTransitionTo checks if moving to next is allowed
func (s SetupStep) CanTransitionTo(next SetupStep) bool {
	if next == SetupStepStart {
		return true
	}
	for _, step := range ValidSetupTransitions[s] {
		if step == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true once onboarding is finished
func (s SetupStep) IsTerminal() bool {
	return s == SetupStepCompleted
}

// ValidateTransition returns an error if the transition is not allowed
func (s SetupStep) ValidateTransition(next SetupStep) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("invalid setup transition from %s to %s", s, next)
	}
	return nil
}
