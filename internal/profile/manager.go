package profile

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// ProfileStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type ProfileStore interface {
	SetProfileKey(key, value string) error
	GetAllProfileKeys() (map[string]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager provides cached, structured access to the applicant profile
// stored as key/value rows in SQLite.
type Manager struct {
	store ProfileStore
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   *Profile
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store ProfileStore) *Manager {
	return &Manager{
		store: store,
		clock: realClock{},
		ttl:   60 * time.Second,
	}
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store ProfileStore, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store: store,
		clock: clock,
		ttl:   ttl,
	}
}

// Get reads all profile keys from storage (or cache) and assembles a
// structured Profile. An empty store yields a zero-value Profile.
func (m *Manager) Get() (Profile, error) {
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		p := *m.cached
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring the write lock.
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return *m.cached, nil
	}

	keys, err := m.store.GetAllProfileKeys()
	if err != nil {
		return Profile{}, fmt.Errorf("loading profile keys: %w", err)
	}

	p := buildProfile(keys)
	m.cached = &p
	m.cachedAt = m.clock.Now()
	return p, nil
}

// SetField persists a profile key and invalidates the cache. Unknown keys
// are rejected so typos don't silently vanish into the store.
func (m *Manager) SetField(key, value string) error {
	if !knownKeys[key] {
		return fmt.Errorf("unknown profile field %q", key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetProfileKey(key, value); err != nil {
		return fmt.Errorf("setting profile key %q: %w", key, err)
	}
	m.cached = nil
	return nil
}

var knownKeys = map[string]bool{
	"first_name":           true,
	"last_name":            true,
	"email":                true,
	"phone":                true,
	"location":             true,
	"linkedin":             true,
	"website":              true,
	"work_authorized":      true,
	"requires_sponsorship": true,
	"start_date":           true,
	"salary_expectation":   true,
	"years_experience":     true,
	"resume_text":          true,
	"cover_letter":         true,
}

func buildProfile(keys map[string]string) Profile {
	p := Profile{
		FirstName:         keys["first_name"],
		LastName:          keys["last_name"],
		Email:             keys["email"],
		Phone:             keys["phone"],
		Location:          keys["location"],
		LinkedIn:          keys["linkedin"],
		Website:           keys["website"],
		StartDate:         keys["start_date"],
		SalaryExpectation: keys["salary_expectation"],
		ResumeText:        keys["resume_text"],
		CoverLetter:       keys["cover_letter"],
	}
	p.WorkAuthorized = parseBool(keys["work_authorized"])
	p.RequiresSponsorship = parseBool(keys["requires_sponsorship"])
	if n, err := strconv.Atoi(keys["years_experience"]); err == nil {
		p.YearsExperience = n
	}
	return p
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
