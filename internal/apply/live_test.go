package apply

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/avelkin/applyq/internal/storage"
	"github.com/avelkin/applyq/internal/strategy"
)

// fakeRunner scripts actuation runs without a browser. Runs complete after
// pollsUntilDone status checks.
type fakeRunner struct {
	mu             sync.Mutex
	startErr       error
	startCalls     int
	statusCalls    int
	pollsUntilDone int
	state          RunState
}

func (r *fakeRunner) StartRun(ctx context.Context, entryID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startCalls++
	if r.startErr != nil {
		return "", r.startErr
	}
	r.state.ID = "run-1"
	r.state.EntryID = entryID
	return "run-1", nil
}

func (r *fakeRunner) RunStatus(ctx context.Context, runID string) (RunState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if runID != r.state.ID {
		return RunState{}, storage.ErrNotFound
	}
	r.statusCalls++
	if r.statusCalls >= r.pollsUntilDone {
		r.state.Done = true
	}
	return r.state, nil
}

func newTestLive(store *storage.Store, runner Runner) *LiveDriver {
	return &LiveDriver{
		Store:        store,
		Profiles:     stubProfiles{prof: completeProfile()},
		Runner:       runner,
		PollInterval: time.Millisecond,
		PollAttempts: 5,
	}
}

func enqueuePending(t *testing.T, store *storage.Store, jobID string) storage.Entry {
	t.Helper()
	id, err := store.Enqueue("default", storage.JobLead{
		ID:       jobID,
		Title:    "Backend Engineer",
		ApplyURL: "https://boards.greenhouse.io/acme/jobs/" + jobID,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	entry, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return entry
}

func TestProcessOneSuccess(t *testing.T) {
	store := openTestStore(t)
	entry := enqueuePending(t, store, "lead-1")

	runner := &fakeRunner{
		pollsUntilDone: 2,
		state: RunState{
			Outcome: &strategy.Outcome{Success: true, Method: strategy.MethodForm, Confirmation: "done"},
		},
	}
	d := newTestLive(store, runner)
	d.processOne(context.Background(), entry)

	got, _ := store.Get(entry.ID)
	if got.Status != storage.StatusCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if runner.startCalls != 1 {
		t.Errorf("StartRun called %d times, want 1", runner.startCalls)
	}
	if d.processing.Load() {
		t.Error("processing flag still set after the attempt resolved")
	}
}

func TestProcessOnePollExhaustion(t *testing.T) {
	store := openTestStore(t)
	entry := enqueuePending(t, store, "lead-1")

	// The run never reports done within the poll budget.
	runner := &fakeRunner{pollsUntilDone: 1000}
	d := newTestLive(store, runner)
	d.processOne(context.Background(), entry)

	got, _ := store.Get(entry.ID)
	if got.Status != storage.StatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.Result == nil || !strings.HasPrefix(got.Result.Error, "timeout:") {
		t.Errorf("Result = %+v, want a timeout reason", got.Result)
	}
}

func TestProcessOneStartRunError(t *testing.T) {
	store := openTestStore(t)
	entry := enqueuePending(t, store, "lead-1")

	runner := &fakeRunner{startErr: errors.New("run service unavailable")}
	d := newTestLive(store, runner)
	d.processOne(context.Background(), entry)

	got, _ := store.Get(entry.ID)
	if got.Status != storage.StatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.Result == nil || !strings.Contains(got.Result.Error, "starting actuation run") {
		t.Errorf("Result = %+v, want a start-run reason", got.Result)
	}
}

func TestProcessOneRunError(t *testing.T) {
	store := openTestStore(t)
	entry := enqueuePending(t, store, "lead-1")

	runner := &fakeRunner{pollsUntilDone: 1, state: RunState{Error: "act backend down"}}
	d := newTestLive(store, runner)
	d.processOne(context.Background(), entry)

	got, _ := store.Get(entry.ID)
	if got.Status != storage.StatusFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.Result == nil || got.Result.Error != "act backend down" {
		t.Errorf("Result = %+v, want the run error recorded", got.Result)
	}
}

func TestProcessOneDefersToRecordingRunner(t *testing.T) {
	store := openTestStore(t)
	entry := enqueuePending(t, store, "lead-1")

	// A runner that already persisted the terminal transition reports
	// Recorded; the driver must not write a second one.
	runner := &fakeRunner{
		pollsUntilDone: 1,
		state: RunState{
			Recorded: true,
			Outcome:  &strategy.Outcome{Success: true, Method: strategy.MethodForm},
		},
	}
	d := newTestLive(store, runner)
	d.processOne(context.Background(), entry)

	// The fake never touched the store, so any transition away from
	// claimed would have come from a duplicate write by the driver.
	got, _ := store.Get(entry.ID)
	if got.Status != storage.StatusClaimed {
		t.Errorf("Status = %q, want claimed untouched by the driver", got.Status)
	}
}

func TestProcessOneSingleFlight(t *testing.T) {
	store := openTestStore(t)
	entry := enqueuePending(t, store, "lead-1")

	runner := &fakeRunner{pollsUntilDone: 1, state: RunState{Outcome: &strategy.Outcome{Success: true}}}
	d := newTestLive(store, runner)

	d.processing.Store(true)
	d.processOne(context.Background(), entry)
	d.processing.Store(false)

	if runner.startCalls != 0 {
		t.Errorf("StartRun called %d times while another attempt was in flight", runner.startCalls)
	}
	got, _ := store.Get(entry.ID)
	if got.Status != storage.StatusPending {
		t.Errorf("Status = %q, want the entry untouched", got.Status)
	}
}

func TestLiveEnableDisableStatus(t *testing.T) {
	store := openTestStore(t)
	enqueuePending(t, store, "lead-1")

	d := newTestLive(store, &fakeRunner{pollsUntilDone: 1})
	d.WatchInterval = time.Hour // keep the loop idle during the test

	st, err := d.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Enabled {
		t.Error("Enabled = true before Enable")
	}

	d.Enable("default")
	defer d.Disable()

	st, err = d.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Enabled {
		t.Error("Enabled = false after Enable")
	}
	if st.PendingCount != 1 {
		t.Errorf("PendingCount = %d, want 1", st.PendingCount)
	}

	d.Disable()
	st, err = d.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Enabled {
		t.Error("Enabled = true after Disable")
	}
}

func TestWatchProcessesPendingEntry(t *testing.T) {
	store := openTestStore(t)
	entry := enqueuePending(t, store, "lead-1")

	runner := &fakeRunner{
		pollsUntilDone: 1,
		state:          RunState{Outcome: &strategy.Outcome{Success: true, Method: strategy.MethodForm}},
	}
	d := newTestLive(store, runner)
	d.WatchInterval = 5 * time.Millisecond

	d.Enable("default")
	defer d.Disable()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.Get(entry.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status.Terminal() {
			if got.Status != storage.StatusCompleted {
				t.Fatalf("Status = %q, want completed", got.Status)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("watch loop never processed the pending entry")
}
