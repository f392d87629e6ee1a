package checkpoint

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Store handles checkpoint persistence.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a checkpoint store using the given database.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			created_at  INTEGER NOT NULL,
			trigger     TEXT NOT NULL,
			state_gz    BLOB NOT NULL,
			byte_size   INTEGER NOT NULL,
			mode_count  INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_session_created
			ON checkpoints(session_id, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_created
			ON checkpoints(created_at DESC);
	`)
	return err
}

// Create builds a new checkpoint for the session with a fresh UUIDv7 and
// creation time. It does not persist anything; see [Store.Save].
func (s *Store) Create(sessionID string, trigger Trigger, b Bundle) (*Checkpoint, error) {
	if !trigger.Valid() {
		return nil, fmt.Errorf("invalid trigger %q", trigger)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate id: %w", err)
	}
	modes := b.ModeStates
	if modes == nil {
		modes = map[string]ModeState{}
	}
	return &Checkpoint{
		ID:            id,
		SessionID:     sessionID,
		Trigger:       trigger,
		CreatedAt:     s.now().UTC(),
		ModeStates:    modes,
		WorkflowState: b.WorkflowState,
		MemoryContext: b.MemoryContext,
	}, nil
}

// Save persists cp. Checkpoints are append-only: saving an id that
// already exists fails. On success cp.ByteSize is set.
func (s *Store) Save(ctx context.Context, cp *Checkpoint) error {
	if cp == nil {
		return errors.New("nil checkpoint")
	}
	if cp.ID == uuid.Nil {
		return errors.New("checkpoint has no id")
	}

	// Serialize and compress state
	stateJSON, err := json.Marshal(cp.bundle())
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(stateJSON); err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}
	compressed := buf.Bytes()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, session_id, created_at, trigger, state_gz, byte_size, mode_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, cp.ID.String(), cp.SessionID, cp.CreatedAt.UnixNano(), string(cp.Trigger),
		compressed, len(compressed), len(cp.ActiveModes()))
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	cp.ByteSize = int64(len(compressed))
	return nil
}

// Get retrieves a checkpoint by ID, including full state.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, created_at, trigger, state_gz, byte_size
		FROM checkpoints WHERE id = ?
	`, id.String())

	cp, err := scanFull(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cp, err
}

// Latest returns the most recent checkpoint for the session, or nil if
// the session has none.
func (s *Store) Latest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, created_at, trigger, state_gz, byte_size
		FROM checkpoints
		WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, sessionID)

	cp, err := scanFull(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

// List returns checkpoints ordered by creation time (newest first). An
// empty sessionID lists every session. Does not include full state to
// keep the response small.
func (s *Store) List(ctx context.Context, sessionID string, limit int) ([]*Checkpoint, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, created_at, trigger, byte_size
		FROM checkpoints
		WHERE ? = '' OR session_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, sessionID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var checkpoints []*Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var idStr, trigger string
		var created int64
		if err := rows.Scan(&idStr, &cp.SessionID, &created, &trigger, &cp.ByteSize); err != nil {
			return nil, err
		}
		cp.ID, _ = uuid.Parse(idStr)
		cp.CreatedAt = time.Unix(0, created).UTC()
		cp.Trigger = Trigger(trigger)
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, rows.Err()
}

// Prune removes checkpoints older than the given duration, keeping at
// least minKeep overall.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration, minKeep int) (int, error) {
	cutoff := s.now().UTC().Add(-olderThan)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints`).Scan(&total); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	if total <= minKeep {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints
		WHERE id IN (
			SELECT id FROM checkpoints
			WHERE created_at < ?
			ORDER BY created_at ASC
			LIMIT ?
		)
	`, cutoff.UnixNano(), total-minKeep)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return int(deleted), nil
}

func scanFull(row *sql.Row) (*Checkpoint, error) {
	var cp Checkpoint
	var idStr, trigger string
	var created int64
	var stateGz []byte

	if err := row.Scan(&idStr, &cp.SessionID, &created, &trigger, &stateGz, &cp.ByteSize); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", idStr, err)
	}
	cp.ID = id
	cp.CreatedAt = time.Unix(0, created).UTC()
	cp.Trigger = Trigger(trigger)

	// Decompress state
	gr, err := gzip.NewReader(bytes.NewReader(stateGz))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gr.Close()

	stateJSON, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}

	var b Bundle
	if err := json.Unmarshal(stateJSON, &b); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	cp.ModeStates = b.ModeStates
	if cp.ModeStates == nil {
		cp.ModeStates = map[string]ModeState{}
	}
	cp.WorkflowState = b.WorkflowState
	cp.MemoryContext = b.MemoryContext

	return &cp, nil
}
