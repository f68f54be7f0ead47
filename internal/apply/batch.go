package apply

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avelkin/applyq/internal/profile"
	"github.com/avelkin/applyq/internal/storage"
	"github.com/avelkin/applyq/internal/strategy"
)

// ProfileSource yields the applicant profile for an attempt. Implemented by
// profile.Manager; passed explicitly so drivers never share module state.
type ProfileSource interface {
	Get() (profile.Profile, error)
}

// Summary is the batch driver's per-invocation report.
type Summary struct {
	Processed int    `json:"processed"`
	EntryID   string `json:"entryId,omitempty"`
	JobID     string `json:"jobId,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// BatchDriver pumps the queue on an external cadence. Each invocation
// claims at most one pending entry and runs it to a terminal transition
// within the session budget, so concurrency within the driver is enforced
// structurally.
type BatchDriver struct {
	Store    *storage.Store
	Profiles ProfileSource
	Opener   Opener
	Config   Config
	Logger   *slog.Logger
}

// RunOnce processes the oldest pending entry for the owner, if any. A
// drained queue is a successful no-op. A lost claim race is silent: the
// other driver has the entry.
func (d *BatchDriver) RunOnce(ctx context.Context, ownerID string) (Summary, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	entry, err := d.Store.NextPending(ownerID)
	if err != nil {
		return Summary{}, fmt.Errorf("reading next pending entry: %w", err)
	}
	if entry == nil {
		return Summary{}, nil
	}

	claimToken := uuid.New().String()
	claimed, err := d.Store.Claim(entry.ID, claimToken)
	if err != nil {
		return Summary{}, fmt.Errorf("claiming entry %s: %w", entry.ID, err)
	}
	if !claimed {
		logger.Debug("claim race lost", "entry_id", entry.ID)
		return Summary{}, nil
	}

	started := time.Now()
	summary := Summary{Processed: 1, EntryID: entry.ID, JobID: entry.Job.ID}

	prof, err := d.Profiles.Get()
	if err != nil {
		msg := fmt.Sprintf("loading applicant profile: %v", err)
		if failErr := d.Store.Fail(entry.ID, msg, 0); failErr != nil {
			logger.Error("recording profile failure", "entry_id", entry.ID, "error", failErr)
		}
		summary.Error = msg
		return summary, nil
	}
	if msg := ValidateProfile(prof); msg != "" {
		if failErr := d.Store.Fail(entry.ID, msg, 0); failErr != nil {
			logger.Error("recording validation failure", "entry_id", entry.ID, "error", failErr)
		}
		summary.Error = msg
		return summary, nil
	}

	// The terminal transition is written from inside the attempt, before
	// the session closes, so a crash never strands a claimed entry whose
	// session is already gone.
	var writeErr error
	out, attemptErr := Execute(ctx, d.Opener, entry.Job, prof, d.Config, logger,
		func(out strategy.Outcome, attemptErr error) {
			writeErr = WriteOutcome(d.Store, entry.ID, out, attemptErr, started)
		})
	if writeErr != nil {
		return summary, fmt.Errorf("writing outcome for entry %s: %w", entry.ID, writeErr)
	}

	summary.Success = attemptErr == nil && out.Success
	if attemptErr != nil {
		summary.Error = attemptErr.Error()
	} else if !out.Success {
		summary.Error = out.Reason
	}
	logger.Info("batch attempt finished",
		"entry_id", entry.ID, "success", summary.Success, "method", out.Method)
	return summary, nil
}
