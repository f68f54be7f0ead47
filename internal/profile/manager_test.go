package profile

import (
	"sync"
	"testing"
	"time"
)

// --- Mock store ---

type mockStore struct {
	mu   sync.Mutex
	data map[string]string

	getAllCalls int
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) SetProfileKey(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockStore) GetAllProfileKeys() (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getAllCalls++
	cp := make(map[string]string, len(m.data))
	for k, v := range m.data {
		cp[k] = v
	}
	return cp, nil
}

func (m *mockStore) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getAllCalls
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- Tests ---

func TestGet_Empty(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(store)

	p, err := mgr.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.FirstName != "" {
		t.Errorf("expected empty first name, got %q", p.FirstName)
	}
	if p.WorkAuthorized {
		t.Error("expected WorkAuthorized false for empty store")
	}
}

func TestSetFieldAndGet(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(store)

	if err := mgr.SetField("first_name", "Ada"); err != nil {
		t.Fatalf("SetField error: %v", err)
	}
	if err := mgr.SetField("years_experience", "7"); err != nil {
		t.Fatalf("SetField error: %v", err)
	}
	if err := mgr.SetField("work_authorized", "true"); err != nil {
		t.Fatalf("SetField error: %v", err)
	}

	p, err := mgr.Get()
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if p.FirstName != "Ada" {
		t.Errorf("FirstName = %q, want %q", p.FirstName, "Ada")
	}
	if p.YearsExperience != 7 {
		t.Errorf("YearsExperience = %d, want 7", p.YearsExperience)
	}
	if !p.WorkAuthorized {
		t.Error("WorkAuthorized = false, want true")
	}
}

func TestSetFieldRejectsUnknownKey(t *testing.T) {
	store := newMockStore()
	mgr := NewManager(store)

	if err := mgr.SetField("firstname", "Ada"); err == nil {
		t.Error("SetField accepted an unknown key")
	}
	if len(store.data) != 0 {
		t.Errorf("store contains %d keys, want 0", len(store.data))
	}
}

func TestGetUsesCacheWithinTTL(t *testing.T) {
	store := newMockStore()
	clock := &mockClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	mgr := NewManagerWithClock(store, clock, time.Minute)

	if _, err := mgr.Get(); err != nil {
		t.Fatalf("first Get: %v", err)
	}
	if _, err := mgr.Get(); err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if got := store.calls(); got != 1 {
		t.Errorf("store reads = %d, want 1 (second Get should hit the cache)", got)
	}

	clock.Advance(2 * time.Minute)
	if _, err := mgr.Get(); err != nil {
		t.Fatalf("Get after TTL: %v", err)
	}
	if got := store.calls(); got != 2 {
		t.Errorf("store reads = %d, want 2 after TTL expiry", got)
	}
}

func TestSetFieldInvalidatesCache(t *testing.T) {
	store := newMockStore()
	clock := &mockClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	mgr := NewManagerWithClock(store, clock, time.Hour)

	if _, err := mgr.Get(); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := mgr.SetField("email", "ada@example.com"); err != nil {
		t.Fatalf("SetField: %v", err)
	}

	p, err := mgr.Get()
	if err != nil {
		t.Fatalf("Get after SetField: %v", err)
	}
	if p.Email != "ada@example.com" {
		t.Errorf("Email = %q, want the freshly written value", p.Email)
	}
}

func TestFullName(t *testing.T) {
	cases := []struct {
		first, last, want string
	}{
		{"Ada", "Lovelace", "Ada Lovelace"},
		{"Ada", "", "Ada"},
		{"", "Lovelace", "Lovelace"},
		{"", "", ""},
	}
	for _, c := range cases {
		p := Profile{FirstName: c.first, LastName: c.last}
		if got := p.FullName(); got != c.want {
			t.Errorf("FullName(%q, %q) = %q, want %q", c.first, c.last, got, c.want)
		}
	}
}

func TestMissingFields(t *testing.T) {
	complete := Profile{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
		ResumeText: "Analyst. Wrote the first program.",
	}
	if missing := complete.MissingFields(); len(missing) != 0 {
		t.Errorf("MissingFields = %v, want none", missing)
	}

	partial := Profile{FirstName: "Ada"}
	missing := partial.MissingFields()
	want := map[string]bool{"lastName": true, "email": true, "resumeText": true}
	if len(missing) != len(want) {
		t.Fatalf("MissingFields = %v, want %d fields", missing, len(want))
	}
	for _, f := range missing {
		if !want[f] {
			t.Errorf("unexpected missing field %q", f)
		}
	}
}
