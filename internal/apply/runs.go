package apply

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avelkin/applyq/internal/storage"
	"github.com/avelkin/applyq/internal/strategy"
)

// RunState is the observable state of one asynchronous actuation run.
// Recorded reports that the run already wrote the entry's terminal
// transition; pollers must not write a second one.
type RunState struct {
	ID       string            `json:"id"`
	EntryID  string            `json:"entryId"`
	Done     bool              `json:"done"`
	Recorded bool              `json:"recorded,omitempty"`
	Outcome  *strategy.Outcome `json:"outcome,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Runner is the out-of-process actuation endpoint contract the live driver
// polls: start a run for a claimed entry, then check it to closure.
type Runner interface {
	StartRun(ctx context.Context, entryID string) (string, error)
	RunStatus(ctx context.Context, runID string) (RunState, error)
}

// defaultRunRetention is how long a finished run stays pollable. Long
// enough for the live driver's full poll budget, short enough that the
// registry stays bounded on a long-lived daemon.
const defaultRunRetention = 10 * time.Minute

// RunService executes actuation runs asynchronously and keeps their state
// in memory for polling. It persists the entry's terminal transition
// before the browser session closes and flags that through
// RunState.Recorded so the polling driver does not write a second one.
// Finished runs are evicted after a retention window.
type RunService struct {
	store     *storage.Store
	profiles  ProfileSource
	opener    Opener
	cfg       Config
	logger    *slog.Logger
	retention time.Duration

	mu   sync.Mutex
	runs map[string]*RunState
}

// NewRunService creates a RunService.
func NewRunService(store *storage.Store, profiles ProfileSource, opener Opener, cfg Config, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{
		store:     store,
		profiles:  profiles,
		opener:    opener,
		cfg:       cfg.WithDefaults(),
		logger:    logger,
		retention: defaultRunRetention,
		runs:      make(map[string]*RunState),
	}
}

// StartRun launches an actuation run for an already-claimed entry and
// returns the run id to poll.
func (s *RunService) StartRun(ctx context.Context, entryID string) (string, error) {
	entry, err := s.store.Get(entryID)
	if err != nil {
		return "", err
	}
	if entry.Status != storage.StatusClaimed {
		return "", fmt.Errorf("entry %s is %s, not claimed: %w", entryID, entry.Status, storage.ErrConflict)
	}

	prof, err := s.profiles.Get()
	if err != nil {
		return "", fmt.Errorf("loading applicant profile: %w", err)
	}

	runID := uuid.New().String()
	state := &RunState{ID: runID, EntryID: entryID}
	s.mu.Lock()
	s.runs[runID] = state
	s.mu.Unlock()

	// The run is detached from the caller's request context; its lifetime
	// is bounded by the session budget plus shutdown slack.
	runCtx, cancel := context.WithTimeout(context.Background(), s.cfg.SessionBudget+15*time.Second)
	started := time.Now()
	go func() {
		defer cancel()
		Execute(runCtx, s.opener, entry.Job, prof, s.cfg, s.logger,
			func(out strategy.Outcome, attemptErr error) {
				// The entry is terminal before its session closes; a
				// crash after this point cannot strand a claimed entry.
				recorded := true
				if err := WriteOutcome(s.store, entryID, out, attemptErr, started); err != nil {
					s.logger.Error("recording run outcome", "entry_id", entryID, "error", err)
					recorded = false
				}
				s.mu.Lock()
				defer s.mu.Unlock()
				state.Done = true
				state.Recorded = recorded
				if attemptErr != nil {
					state.Error = attemptErr.Error()
				} else {
					state.Outcome = &out
				}
				s.scheduleEviction(runID)
			})
	}()

	return runID, nil
}

// scheduleEviction drops a finished run from the registry after the
// retention window, so a long-lived daemon does not accumulate one state
// record per attempt forever. Callers hold s.mu.
func (s *RunService) scheduleEviction(runID string) {
	time.AfterFunc(s.retention, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}

// RunStatus reports the current state of a run.
func (s *RunService) RunStatus(ctx context.Context, runID string) (RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.runs[runID]
	if !ok {
		return RunState{}, storage.ErrNotFound
	}
	return *state, nil
}
