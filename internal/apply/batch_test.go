package apply

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/avelkin/applyq/internal/browser"
	"github.com/avelkin/applyq/internal/profile"
	"github.com/avelkin/applyq/internal/storage"
)

func newTestBatch(store *storage.Store, opener *spyOpener, profiles ProfileSource) *BatchDriver {
	return &BatchDriver{
		Store:    store,
		Profiles: profiles,
		Opener:   opener,
		Config:   Config{}.WithDefaults(),
	}
}

func TestRunOnceDrainedQueue(t *testing.T) {
	store := openTestStore(t)
	opener := &spyOpener{}
	d := newTestBatch(store, opener, stubProfiles{prof: completeProfile()})

	sum, err := d.RunOnce(context.Background(), "default")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Processed != 0 {
		t.Errorf("Processed = %d, want 0", sum.Processed)
	}
	if opener.opens != 0 {
		t.Errorf("opened %d sessions for an empty queue", opener.opens)
	}
}

func TestRunOnceSuccess(t *testing.T) {
	store := openTestStore(t)
	id, err := store.Enqueue("default", storage.JobLead{
		ID:       "lead-1",
		Title:    "Backend Engineer",
		ApplyURL: "https://boards.greenhouse.io/acme/jobs/1",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	opener := &spyOpener{}
	d := newTestBatch(store, opener, stubProfiles{prof: completeProfile()})

	sum, err := d.RunOnce(context.Background(), "default")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Processed != 1 || !sum.Success {
		t.Fatalf("summary = %+v, want processed success", sum)
	}
	if sum.EntryID != id || sum.JobID != "lead-1" {
		t.Errorf("summary ids = %q/%q, want %q/lead-1", sum.EntryID, sum.JobID, id)
	}

	entry, _ := store.Get(id)
	if entry.Status != storage.StatusCompleted {
		t.Errorf("Status = %q, want completed", entry.Status)
	}
	if entry.Result == nil || !entry.Result.Success {
		t.Errorf("Result = %+v, want recorded success", entry.Result)
	}
	if opener.opens != 1 {
		t.Errorf("opened %d sessions, want 1", opener.opens)
	}
}

func TestRunOnceIncompleteProfile(t *testing.T) {
	store := openTestStore(t)
	id, err := store.Enqueue("default", storage.JobLead{
		ID:       "lead-1",
		ApplyURL: "https://example.com/jobs/1",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	opener := &spyOpener{}
	d := newTestBatch(store, opener, stubProfiles{prof: profile.Profile{FirstName: "Ada"}})

	sum, err := d.RunOnce(context.Background(), "default")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Success {
		t.Error("Success = true for an incomplete profile")
	}
	if !strings.HasPrefix(sum.Error, "incomplete profile") {
		t.Errorf("Error = %q, want incomplete-profile message", sum.Error)
	}
	if opener.opens != 0 {
		t.Errorf("opened %d sessions before validation, want 0", opener.opens)
	}

	entry, _ := store.Get(id)
	if entry.Status != storage.StatusFailed {
		t.Errorf("Status = %q, want failed", entry.Status)
	}
}

func TestRunOnceRedirectSkips(t *testing.T) {
	store := openTestStore(t)
	id, err := store.Enqueue("default", storage.JobLead{
		ID:       "lead-1",
		ApplyURL: "https://www.indeed.com/viewjob?jk=1",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// The apply control navigates off the indeed domain.
	opener := &spyOpener{makeFn: func() *fakeSession {
		return &fakeSession{location: "https://careers.acme.example/apply"}
	}}
	d := newTestBatch(store, opener, stubProfiles{prof: completeProfile()})

	sum, err := d.RunOnce(context.Background(), "default")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Success {
		t.Error("Success = true for a redirected application")
	}

	entry, _ := store.Get(id)
	if entry.Status != storage.StatusSkipped {
		t.Errorf("Status = %q, want skipped", entry.Status)
	}
	if entry.Result == nil || !strings.Contains(entry.Result.Error, "external") {
		t.Errorf("Result = %+v, want external-application reason", entry.Result)
	}
}

// The entry must already be terminal when its session closes; a crash in
// between would otherwise strand a claimed entry whose session is gone.
func TestRunOnceWritesOutcomeBeforeClose(t *testing.T) {
	store := openTestStore(t)
	id, err := store.Enqueue("default", storage.JobLead{
		ID:       "lead-1",
		ApplyURL: "https://boards.greenhouse.io/acme/jobs/1",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	var statusAtClose storage.Status
	opener := &spyOpener{makeFn: func() *fakeSession {
		s := &fakeSession{}
		s.closeFn = func() {
			entry, err := store.Get(id)
			if err != nil {
				t.Errorf("Get at close: %v", err)
				return
			}
			statusAtClose = entry.Status
		}
		return s
	}}
	d := newTestBatch(store, opener, stubProfiles{prof: completeProfile()})

	if _, err := d.RunOnce(context.Background(), "default"); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if statusAtClose != storage.StatusCompleted {
		t.Errorf("status observed at session close = %q, want completed", statusAtClose)
	}
}

func TestRunOnceProcessesOldestFirst(t *testing.T) {
	store := openTestStore(t)
	first, err := store.Enqueue("default", storage.JobLead{
		ID:       "lead-1",
		ApplyURL: "https://boards.greenhouse.io/acme/jobs/1",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := store.Enqueue("default", storage.JobLead{
		ID:       "lead-2",
		ApplyURL: "https://boards.greenhouse.io/acme/jobs/2",
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	d := newTestBatch(store, &spyOpener{}, stubProfiles{prof: completeProfile()})
	sum, err := d.RunOnce(context.Background(), "default")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.EntryID != first {
		t.Errorf("processed %s, want the oldest entry %s", sum.EntryID, first)
	}
}

func TestRunOnceProvisioningFailure(t *testing.T) {
	store := openTestStore(t)
	id, err := store.Enqueue("default", storage.JobLead{
		ID:       "lead-1",
		ApplyURL: "https://example.com/jobs/1",
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	opener := &spyOpener{openErr: fmt.Errorf("%w: no API key configured", browser.ErrProvisioning)}
	d := newTestBatch(store, opener, stubProfiles{prof: completeProfile()})

	sum, err := d.RunOnce(context.Background(), "default")
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if sum.Success {
		t.Error("Success = true when no session could be provisioned")
	}

	entry, _ := store.Get(id)
	if entry.Status != storage.StatusFailed {
		t.Errorf("Status = %q, want failed", entry.Status)
	}
	if entry.Result == nil || !strings.HasPrefix(entry.Result.Error, "browser provisioning:") {
		t.Errorf("Result = %+v, want provisioning prefix", entry.Result)
	}
}
