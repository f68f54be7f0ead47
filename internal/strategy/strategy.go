// Package strategy implements the platform-specific action sequences that
// fill and submit one job application through a browser actuation session.
package strategy

import (
	"context"
	"time"

	"github.com/avelkin/applyq/internal/platform"
	"github.com/avelkin/applyq/internal/profile"
	"github.com/avelkin/applyq/internal/storage"
)

// Attempt outcome methods.
const (
	MethodForm        = "form"
	MethodEasyApply   = "easy_apply"
	MethodIndeedApply = "indeed_apply"
	MethodRedirect    = "redirect"
	MethodTimeout     = "timeout"
)

// defaultBudgetBuffer is how close to the session budget a strategy may get
// before refusing to start another multi-step sub-flow.
const defaultBudgetBuffer = 10 * time.Second

// Actuator is the capability contract strategies drive. Strategies depend
// only on this boolean-outcome surface, never on the client's internals, so
// they stay unit-testable without a real browser. Implemented by
// browser.Session.
type Actuator interface {
	Navigate(ctx context.Context, url string) error
	Act(ctx context.Context, intent string) (bool, error)
	Extract(ctx context.Context, instruction string, schema map[string]string) (map[string]any, error)
	Location(ctx context.Context) (string, error)
	VisibleText(ctx context.Context) (string, error)
	NearBudget(buffer time.Duration) bool
}

// Outcome is the terminal result of one application attempt.
//
// Success=true means a confirmation signal was detected after submission.
// Method=MethodRedirect means the platform handed off to an external site
// and the attempt was deliberately abandoned: a skip, not a failure.
// Absence of a confirmation signal is unknown, not success: such attempts
// report Success=false with a Reason.
type Outcome struct {
	Success      bool
	Method       string
	Confirmation string
	Reason       string
}

func timeoutOutcome(method, step string) Outcome {
	return Outcome{
		Method: MethodTimeout,
		Reason: "timeout: session budget nearly exhausted before " + step,
	}
}

// Strategy drives one application to a terminal outcome. A returned error
// means an unexpected actuation failure; an unsuccessful Outcome with nil
// error is a normal negative result (redirect, no confirmation, timeout).
type Strategy interface {
	Name() string
	Apply(ctx context.Context, act Actuator, job storage.JobLead, prof profile.Profile) (Outcome, error)
}

// ForPlatform selects the strategy for a classified platform. Greenhouse,
// Lever and unknown platforms all use the generic form strategy.
func ForPlatform(p platform.Platform) Strategy {
	switch p {
	case platform.LinkedIn:
		return &LinkedIn{}
	case platform.Indeed:
		return &Indeed{}
	default:
		return &GenericForm{}
	}
}
