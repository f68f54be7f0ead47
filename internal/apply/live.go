package apply

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/avelkin/applyq/internal/storage"
	"github.com/avelkin/applyq/internal/strategy"
)

const (
	defaultWatchInterval = 2 * time.Second
	defaultPollInterval  = time.Second
	defaultPollAttempts  = 120
)

// LiveStatus is the reactive driver's observable state.
type LiveStatus struct {
	Enabled      bool               `json:"enabled"`
	PendingCount int                `json:"pendingCount"`
	IsProcessing bool               `json:"isProcessing"`
	CurrentJob   string             `json:"currentJob,omitempty"`
	Stats        storage.QueueStats `json:"stats"`
}

// LiveDriver watches the queue while enabled and submits newly approved
// entries immediately. Actuation is delegated to a Runner and polled to
// closure; a single-flight guard ensures the driver never has two attempts
// in flight for the same user.
type LiveDriver struct {
	Store    *storage.Store
	Profiles ProfileSource
	Runner   Runner
	Logger   *slog.Logger

	// WatchInterval is how often the queue is checked for new pending
	// entries; PollInterval/PollAttempts bound the run-status poll loop.
	// Zero values select the defaults; tests inject near-zero delays.
	WatchInterval time.Duration
	PollInterval  time.Duration
	PollAttempts  int

	mu         sync.Mutex
	ownerID    string
	cancel     context.CancelFunc
	processing atomic.Bool
	currentJob atomic.Value // string: title of the entry in flight
}

// Enable starts the watch loop for the given owner. Enabling while already
// enabled restarts the loop with the new owner.
func (d *LiveDriver) Enable(ownerID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.ownerID = ownerID
	d.cancel = cancel
	go d.watch(ctx, ownerID)
}

// Disable stops the watch loop. An attempt already in flight runs to its
// terminal transition; cancellation is cooperative only.
func (d *LiveDriver) Disable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// Status reports the driver's state for live UI observers.
func (d *LiveDriver) Status() (LiveStatus, error) {
	d.mu.Lock()
	ownerID := d.ownerID
	enabled := d.cancel != nil
	d.mu.Unlock()

	st := LiveStatus{
		Enabled:      enabled,
		IsProcessing: d.processing.Load(),
	}
	if job, ok := d.currentJob.Load().(string); ok {
		st.CurrentJob = job
	}
	if ownerID != "" {
		stats, err := d.Store.Stats(ownerID)
		if err != nil {
			return LiveStatus{}, err
		}
		st.Stats = stats
		st.PendingCount = stats.Pending
	}
	return st, nil
}

func (d *LiveDriver) watch(ctx context.Context, ownerID string) {
	logger := d.logger()
	interval := d.WatchInterval
	if interval <= 0 {
		interval = defaultWatchInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("live driver enabled", "owner_id", ownerID)
	for {
		select {
		case <-ctx.Done():
			logger.Info("live driver disabled", "owner_id", ownerID)
			return
		case <-ticker.C:
		}

		if d.processing.Load() {
			continue
		}
		entry, err := d.Store.NextPending(ownerID)
		if err != nil {
			logger.Error("watching queue", "error", err)
			continue
		}
		if entry == nil {
			continue
		}
		d.processOne(ctx, *entry)
	}
}

// processOne runs one entry through claim → validate → delegate → poll.
// The single-flight swap rejects overlap: a second pending entry waits for
// the next watch tick after the current one resolves.
func (d *LiveDriver) processOne(ctx context.Context, entry storage.Entry) {
	if !d.processing.CompareAndSwap(false, true) {
		return
	}
	defer d.processing.Store(false)
	defer d.currentJob.Store("")
	d.currentJob.Store(entry.Job.Title)

	logger := d.logger()

	claimToken := uuid.New().String()
	claimed, err := d.Store.Claim(entry.ID, claimToken)
	if err != nil {
		logger.Error("claiming entry", "entry_id", entry.ID, "error", err)
		return
	}
	if !claimed {
		// Claim race lost to the batch driver; move on.
		return
	}

	started := time.Now()

	prof, err := d.Profiles.Get()
	if err != nil {
		d.fail(entry.ID, fmt.Sprintf("loading applicant profile: %v", err), started)
		return
	}
	if msg := ValidateProfile(prof); msg != "" {
		d.fail(entry.ID, msg, started)
		return
	}

	runID, err := d.Runner.StartRun(ctx, entry.ID)
	if err != nil {
		d.fail(entry.ID, fmt.Sprintf("starting actuation run: %v", err), started)
		return
	}

	state, ok := d.pollRun(ctx, runID)
	if !ok {
		d.fail(entry.ID, fmt.Sprintf("timeout: actuation run %s did not complete within the poll budget", runID), started)
		return
	}

	out := storageOutcome(state)
	if !state.Recorded {
		// The runner could not persist the outcome itself; write the
		// terminal transition here so the entry is not left claimed.
		var attemptErr error
		if state.Error != "" {
			attemptErr = fmt.Errorf("%s", state.Error)
		}
		if err := WriteOutcome(d.Store, entry.ID, out, attemptErr, started); err != nil {
			logger.Error("writing outcome", "entry_id", entry.ID, "error", err)
			return
		}
	}
	logger.Info("live attempt finished", "entry_id", entry.ID, "success", out.Success, "method", out.Method)
}

// pollRun checks the run at a fixed interval up to the attempt cap.
func (d *LiveDriver) pollRun(ctx context.Context, runID string) (RunState, bool) {
	interval := d.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	attempts := d.PollAttempts
	if attempts <= 0 {
		attempts = defaultPollAttempts
	}

	for i := 0; i < attempts; i++ {
		state, err := d.Runner.RunStatus(ctx, runID)
		if err != nil {
			d.logger().Warn("polling run", "run_id", runID, "error", err)
		} else if state.Done {
			return state, true
		}

		select {
		case <-ctx.Done():
			return RunState{}, false
		case <-time.After(interval):
		}
	}
	return RunState{}, false
}

func storageOutcome(state RunState) strategy.Outcome {
	if state.Outcome != nil {
		return *state.Outcome
	}
	return strategy.Outcome{}
}

func (d *LiveDriver) fail(entryID, msg string, started time.Time) {
	if err := d.Store.Fail(entryID, msg, time.Since(started).Milliseconds()); err != nil {
		d.logger().Error("recording failure", "entry_id", entryID, "error", err)
	}
}

func (d *LiveDriver) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}
