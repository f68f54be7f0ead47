// Package apply contains the two queue drivers, the periodic batch driver
// and the reactive live driver, plus the shared attempt runner they both
// delegate actuation to.
package apply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avelkin/applyq/internal/browser"
	"github.com/avelkin/applyq/internal/platform"
	"github.com/avelkin/applyq/internal/profile"
	"github.com/avelkin/applyq/internal/storage"
	"github.com/avelkin/applyq/internal/strategy"
)

// Session is what one attempt needs from an open actuation session.
// Implemented by browser.Session.
type Session interface {
	strategy.Actuator
	ID() string
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Opener acquires actuation sessions. Tests substitute a spy to prove no
// session is ever opened for an incomplete profile.
type Opener interface {
	Open(ctx context.Context, budget time.Duration) (Session, error)
}

// BrowserOpener adapts browser.Client to the Opener contract.
type BrowserOpener struct {
	Client *browser.Client
}

func (o BrowserOpener) Open(ctx context.Context, budget time.Duration) (Session, error) {
	s, err := o.Client.Open(ctx, budget)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Config bounds one attempt.
type Config struct {
	// SessionBudget is the wall-clock ceiling for one actuation session,
	// deliberately shorter than the host's hard execution ceiling.
	SessionBudget time.Duration
	// BudgetBuffer is how close to the budget strategies may run before
	// bailing out.
	BudgetBuffer time.Duration
}

// WithDefaults fills zero fields.
func (c Config) WithDefaults() Config {
	if c.SessionBudget <= 0 {
		c.SessionBudget = 55 * time.Second
	}
	if c.BudgetBuffer <= 0 {
		c.BudgetBuffer = 10 * time.Second
	}
	return c
}

// RecordFunc persists an attempt's result. Execute invokes it exactly once,
// after the strategy resolves and before the session closes, so the store
// never points at a session that has already been torn down.
type RecordFunc func(out strategy.Outcome, attemptErr error)

// Execute runs one actuation attempt for a claimed entry: open a session,
// dispatch the platform strategy, record the result, then close the
// session. A nil record just returns the outcome; callers that persist a
// terminal transition pass it as record, keeping the write ordered before
// the close. A strategy panic is recovered and reported as an error.
func Execute(ctx context.Context, opener Opener, job storage.JobLead, prof profile.Profile, cfg Config, logger *slog.Logger, record RecordFunc) (strategy.Outcome, error) {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	session, err := opener.Open(ctx, cfg.SessionBudget)
	if err != nil {
		if record != nil {
			record(strategy.Outcome{}, err)
		}
		return strategy.Outcome{}, err
	}
	closed := false
	defer func() {
		// Leak backstop only; the normal path closes below, after the
		// result is recorded.
		if !closed {
			session.Close()
		}
	}()

	plat := platform.Classify(job.ApplyURL)
	strat := strategy.ForPlatform(plat)
	logger.Info("starting application attempt",
		"job_id", job.ID, "platform", string(plat), "strategy", strat.Name(), "session_id", session.ID())

	out, err := runStrategy(ctx, strat, session, job, prof)
	if err != nil {
		out = strategy.Outcome{}
		// Best-effort evidence of where the page ended up.
		if _, shotErr := session.Screenshot(ctx); shotErr != nil {
			logger.Debug("screenshot after failure unavailable", "error", shotErr)
		}
	}

	if record != nil {
		record(out, err)
	}

	closed = true
	if closeErr := session.Close(); closeErr != nil {
		// Outcome is recorded by now; close failure never escalates into
		// the result.
		logger.Warn("closing actuation session", "session_id", session.ID(), "error", closeErr)
	}
	return out, err
}

// runStrategy isolates strategy panics so the attempt can still record its
// result and close the session in order.
func runStrategy(ctx context.Context, strat strategy.Strategy, session Session, job storage.JobLead, prof profile.Profile) (out strategy.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy panic: %v", r)
		}
	}()
	return strat.Apply(ctx, session, job, prof)
}

// WriteOutcome maps an attempt result onto the entry's terminal transition.
// attemptErr takes precedence; provisioning errors get their own message so
// users can tell them from in-page failures.
func WriteOutcome(store *storage.Store, entryID string, out strategy.Outcome, attemptErr error, started time.Time) error {
	durationMs := time.Since(started).Milliseconds()

	if attemptErr != nil {
		msg := attemptErr.Error()
		if errors.Is(attemptErr, browser.ErrProvisioning) {
			msg = "browser provisioning: " + msg
		}
		return store.Fail(entryID, msg, durationMs)
	}

	switch {
	case out.Method == strategy.MethodRedirect:
		return store.Skip(entryID, storage.Result{
			Method:     out.Method,
			Error:      out.Reason,
			DurationMs: durationMs,
		})
	case out.Success:
		return store.Complete(entryID, storage.Result{
			Method:       out.Method,
			Confirmation: out.Confirmation,
			DurationMs:   durationMs,
		})
	default:
		reason := out.Reason
		if reason == "" {
			reason = "application did not complete"
		}
		return store.Fail(entryID, reason, durationMs)
	}
}

// ValidateProfile returns a user-actionable error message when required
// profile fields are missing, or "" when the profile is complete. No
// browser session may be opened while this returns non-empty.
func ValidateProfile(prof profile.Profile) string {
	missing := prof.MissingFields()
	if len(missing) == 0 {
		return ""
	}
	return "incomplete profile: missing " + strings.Join(missing, ", ")
}
