package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const timeFormat = time.RFC3339

const entryColumns = `id, owner_id, job_id, job_title, job_company, job_apply_url,
	job_description, job_match_score, status, claimed_session_id,
	result_success, result_method, result_confirmation, result_error,
	result_duration_ms, retry_count, created_at, updated_at`

// Enqueue creates a pending entry for an approved lead. It is idempotent
// against re-approval: if a non-terminal entry for the same lead already
// exists for this owner, its id is returned and nothing is inserted.
func (s *Store) Enqueue(ownerID string, lead JobLead) (string, error) {
	if lead.ID == "" {
		return "", fmt.Errorf("enqueue: lead id is required")
	}
	if lead.ApplyURL == "" {
		return "", fmt.Errorf("enqueue: lead %s has no apply url", lead.ID)
	}

	if id, err := s.liveEntryID(ownerID, lead.ID); err != nil {
		return "", err
	} else if id != "" {
		return id, nil
	}

	id := uuid.New().String()
	now := time.Now().UTC().Format(timeFormat)
	_, err := s.db.Exec(`
		INSERT INTO queue_entries (id, owner_id, job_id, job_title, job_company,
			job_apply_url, job_description, job_match_score, status, retry_count,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', 0, ?, ?)`,
		id, ownerID, lead.ID, lead.Title, lead.Company,
		lead.ApplyURL, lead.Description, lead.MatchScore, now, now,
	)
	if err != nil {
		// A concurrent enqueue of the same lead may have won the race to
		// idx_queue_entries_live_job between our check and the insert.
		if dup, dupErr := s.liveEntryID(ownerID, lead.ID); dupErr == nil && dup != "" {
			return dup, nil
		}
		return "", fmt.Errorf("inserting entry: %w", err)
	}
	return id, nil
}

// liveEntryID returns the id of the non-terminal entry for this owner and
// job, or "" if none exists.
func (s *Store) liveEntryID(ownerID, jobID string) (string, error) {
	var id string
	err := s.db.QueryRow(`
		SELECT id FROM queue_entries
		WHERE owner_id = ? AND job_id = ? AND status IN ('pending', 'claimed')
		LIMIT 1`, ownerID, jobID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("checking for duplicate entry: %w", err)
	}
	return id, nil
}

// Claim performs the atomic pending -> claimed transition, tagging the entry
// with the session that will process it. It is a single conditional write:
// of any number of concurrent claims on the same entry, exactly one sees
// claimed=true. A false return with nil error means the entry was not
// pending (another driver won, or it is already terminal).
func (s *Store) Claim(id, sessionID string) (bool, error) {
	now := time.Now().UTC().Format(timeFormat)
	res, err := s.db.Exec(`
		UPDATE queue_entries
		SET status = 'claimed', claimed_session_id = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		sessionID, now, id,
	)
	if err != nil {
		return false, fmt.Errorf("claiming entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.Get(id); err != nil {
		return false, err
	}
	return false, nil
}

// Complete records a successful attempt. Valid only from claimed.
func (s *Store) Complete(id string, res Result) error {
	res.Success = true
	return s.terminal(id, StatusCompleted, res)
}

// Fail records a failed attempt with the given error message. Valid only
// from claimed.
func (s *Store) Fail(id, errMsg string, durationMs int64) error {
	return s.terminal(id, StatusFailed, Result{Error: errMsg, DurationMs: durationMs})
}

// Skip records a deliberately abandoned attempt (external redirect,
// cancellation). Res.Error carries the human-readable reason. Valid only
// from claimed.
func (s *Store) Skip(id string, res Result) error {
	res.Success = false
	return s.terminal(id, StatusSkipped, res)
}

// terminal is the single conditional write behind Complete, Fail and Skip.
// Writing a terminal status from anything but claimed is a logic error and
// is rejected with ErrConflict.
func (s *Store) terminal(id string, status Status, res Result) error {
	now := time.Now().UTC().Format(timeFormat)
	r, err := s.db.Exec(`
		UPDATE queue_entries
		SET status = ?, claimed_session_id = '',
			result_success = ?, result_method = ?, result_confirmation = ?,
			result_error = ?, result_duration_ms = ?, updated_at = ?
		WHERE id = ? AND status = 'claimed'`,
		string(status), boolToInt(res.Success), res.Method, res.Confirmation,
		res.Error, res.DurationMs, now, id,
	)
	if err != nil {
		return fmt.Errorf("writing %s for entry %s: %w", status, id, err)
	}
	n, err := r.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.Get(id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("entry %s is not claimed: %w", id, ErrConflict)
	}
	return nil
}

// Retry re-queues a failed entry: status back to pending, result cleared,
// retry count incremented. Claimed, completed and skipped entries are
// rejected: a redirect skip means the platform cannot be auto-completed,
// so re-queueing it would only skip again.
func (s *Store) Retry(id string) (bool, error) {
	now := time.Now().UTC().Format(timeFormat)
	res, err := s.db.Exec(`
		UPDATE queue_entries
		SET status = 'pending', claimed_session_id = '',
			result_success = NULL, result_method = NULL, result_confirmation = NULL,
			result_error = NULL, result_duration_ms = NULL,
			retry_count = retry_count + 1, updated_at = ?
		WHERE id = ? AND status = 'failed'`,
		now, id,
	)
	if err != nil {
		return false, fmt.Errorf("retrying entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.Get(id); err != nil {
		return false, err
	}
	return false, ErrConflict
}

// Cancel marks a pending entry as skipped with a cancellation reason.
// Entries are never hard-deleted; cancellation is a terminal status so
// history and audit stay intact. Valid only while pending.
func (s *Store) Cancel(id string) error {
	now := time.Now().UTC().Format(timeFormat)
	res, err := s.db.Exec(`
		UPDATE queue_entries
		SET status = 'skipped', result_success = 0, result_method = 'cancelled',
			result_error = 'cancelled by user', result_duration_ms = 0, updated_at = ?
		WHERE id = ? AND status = 'pending'`,
		now, id,
	)
	if err != nil {
		return fmt.Errorf("cancelling entry %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.Get(id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("entry %s is not pending: %w", id, ErrConflict)
	}
	return nil
}

// Get returns a single entry by id.
func (s *Store) Get(id string) (Entry, error) {
	row := s.db.QueryRow(`SELECT `+entryColumns+` FROM queue_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, ErrNotFound
	}
	return e, err
}

// NextPending returns the oldest pending entry for the owner, or nil if the
// queue is drained. It does not claim: claiming is a separate, explicit
// atomic step so a crash between read and claim loses nothing.
func (s *Store) NextPending(ownerID string) (*Entry, error) {
	row := s.db.QueryRow(`
		SELECT `+entryColumns+` FROM queue_entries
		WHERE owner_id = ? AND status = 'pending'
		ORDER BY created_at ASC, rowid ASC
		LIMIT 1`, ownerID,
	)
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListByOwner returns the owner's entries, newest first.
func (s *Store) ListByOwner(ownerID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT `+entryColumns+` FROM queue_entries
		WHERE owner_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, ownerID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats returns the owner's per-status entry counts.
func (s *Store) Stats(ownerID string) (QueueStats, error) {
	rows, err := s.db.Query(`
		SELECT status, COUNT(*) FROM queue_entries
		WHERE owner_id = ? GROUP BY status`, ownerID,
	)
	if err != nil {
		return QueueStats{}, err
	}
	defer rows.Close()

	var st QueueStats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return QueueStats{}, err
		}
		switch Status(status) {
		case StatusPending:
			st.Pending = n
		case StatusClaimed:
			st.Claimed = n
		case StatusCompleted:
			st.Completed = n
		case StatusFailed:
			st.Failed = n
		case StatusSkipped:
			st.Skipped = n
		}
	}
	return st, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var status, createdAt, updatedAt string
	var success sql.NullInt64
	var method, confirmation, errMsg sql.NullString
	var durationMs sql.NullInt64

	err := row.Scan(
		&e.ID, &e.OwnerID, &e.Job.ID, &e.Job.Title, &e.Job.Company, &e.Job.ApplyURL,
		&e.Job.Description, &e.Job.MatchScore, &status, &e.ClaimedSessionID,
		&success, &method, &confirmation, &errMsg,
		&durationMs, &e.RetryCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return Entry{}, err
	}

	e.Status = Status(status)
	if e.Status.Terminal() {
		e.Result = &Result{
			Success:      success.Int64 == 1,
			Method:       method.String,
			Confirmation: confirmation.String,
			Error:        errMsg.String,
			DurationMs:   durationMs.Int64,
		}
	}
	if e.CreatedAt, err = time.Parse(timeFormat, createdAt); err != nil {
		return Entry{}, fmt.Errorf("parsing created_at for entry %s: %w", e.ID, err)
	}
	if e.UpdatedAt, err = time.Parse(timeFormat, updatedAt); err != nil {
		return Entry{}, fmt.Errorf("parsing updated_at for entry %s: %w", e.ID, err)
	}
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- Applicant profile ---

// SetProfileKey upserts one applicant profile field.
func (s *Store) SetProfileKey(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO applicant_profile (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(timeFormat),
	)
	return err
}

// GetProfileKey reads one applicant profile field.
func (s *Store) GetProfileKey(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM applicant_profile WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// GetAllProfileKeys returns every applicant profile field.
func (s *Store) GetAllProfileKeys() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM applicant_profile")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}
