package mode

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Store records per-session mode activation in SQLite. All public
// methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a mode store on db. The schema is created
// automatically on first use. The caller owns db.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS mode_state (
			session_id   TEXT NOT NULL,
			mode         TEXT NOT NULL,
			activated_at TEXT NOT NULL,
			PRIMARY KEY (session_id, mode)
		);
	`)
	return err
}

// Activate marks id active for the session. Re-activating an active
// mode keeps its original activation time.
func (s *Store) Activate(ctx context.Context, sessionID string, id ID) error {
	if _, ok := Lookup(id); !ok {
		return fmt.Errorf("unknown mode %q", id)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mode_state (session_id, mode, activated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (session_id, mode) DO NOTHING`,
		sessionID, string(id), s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("activate %s/%s: %w", sessionID, id, err)
	}
	return nil
}

// Deactivate clears id for the session. No error is returned if the
// mode was not active.
func (s *Store) Deactivate(ctx context.Context, sessionID string, id ID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM mode_state WHERE session_id = ? AND mode = ?`,
		sessionID, string(id),
	)
	if err != nil {
		return fmt.Errorf("deactivate %s/%s: %w", sessionID, id, err)
	}
	return nil
}

// DeactivateAll clears every mode for the session and returns how many
// were active.
func (s *Store) DeactivateAll(ctx context.Context, sessionID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM mode_state WHERE session_id = ?`,
		sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("deactivate all %s: %w", sessionID, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// States returns the activation records for the session in table order.
func (s *Store) States(ctx context.Context, sessionID string) ([]State, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT mode, activated_at FROM mode_state WHERE session_id = ?`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", sessionID, err)
	}
	defer rows.Close()

	var states []State
	for rows.Next() {
		var id, at string
		if err := rows.Scan(&id, &at); err != nil {
			return nil, fmt.Errorf("scan %s: %w", sessionID, err)
		}
		activatedAt, _ := time.Parse(time.RFC3339Nano, at)
		states = append(states, State{ID: ID(id), Active: true, ActivatedAt: activatedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(states, func(i, j int) bool {
		return rank(states[i].ID) < rank(states[j].ID)
	})
	return states, nil
}

// ActiveModes returns the ids of the session's active modes in table
// order.
func (s *Store) ActiveModes(ctx context.Context, sessionID string) ([]ID, error) {
	states, err := s.States(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ids := make([]ID, len(states))
	for i, st := range states {
		ids[i] = st.ID
	}
	return ids, nil
}

// IsAnyModeActive reports whether the session has at least one active
// mode.
func (s *Store) IsAnyModeActive(ctx context.Context, sessionID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mode_state WHERE session_id = ?`,
		sessionID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count %s: %w", sessionID, err)
	}
	return n > 0, nil
}
