package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is what the durable layer keeps per session: ownership, the last
// exchange, and the variable map. Enough to reconstruct a minimal
// conversation, nothing more.
type Record struct {
	SessionID     uuid.UUID
	UserID        string
	LastUser      string
	LastAssistant string
	Variables     map[string]string
	UpdatedAt     time.Time
}

// Archive is the durable fallback behind the fast cache.
type Archive interface {
	Save(ctx context.Context, conv *Conversation) error
	Load(ctx context.Context, id uuid.UUID) (*Record, error)
	Delete(ctx context.Context, id uuid.UUID, userID string) error
}

// PGArchive persists session records to PostgreSQL. It is written on every
// completed turn and read only when the fast layer cannot serve a lookup.
//
// PGArchive is safe for concurrent use; all state lives in the database.
type PGArchive struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGArchive creates an archive backed by the given pool.
func NewPGArchive(pool *pgxpool.Pool, logger *slog.Logger) *PGArchive {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGArchive{pool: pool, logger: logger}
}

// Save upserts the session's archive record from its current state.
func (a *PGArchive) Save(ctx context.Context, conv *Conversation) error {
	lastUser, lastAssistant := conv.LastExchange()

	variables, err := json.Marshal(conv.Variables)
	if err != nil {
		return fmt.Errorf("encoding variables: %w", err)
	}

	// The WHERE clause keeps a conflicting write from rebinding a session
	// to a different user.
	const q = `
		INSERT INTO conversation_archive (session_id, user_id, last_user, last_assistant, variables, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			last_user      = EXCLUDED.last_user,
			last_assistant = EXCLUDED.last_assistant,
			variables      = EXCLUDED.variables,
			updated_at     = EXCLUDED.updated_at
		WHERE conversation_archive.user_id = EXCLUDED.user_id`

	tag, err := a.pool.Exec(ctx, q,
		conv.ID, conv.UserID, lastUser, lastAssistant, variables, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("archiving session %s: %w", conv.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOwnerMismatch
	}

	a.logger.Debug("session archived", "session_id", conv.ID)
	return nil
}

// Load fetches the archive record for id, or ErrNotFound.
func (a *PGArchive) Load(ctx context.Context, id uuid.UUID) (*Record, error) {
	const q = `
		SELECT session_id, user_id, last_user, last_assistant, variables, updated_at
		FROM conversation_archive
		WHERE session_id = $1`

	var (
		rec       Record
		variables []byte
	)
	err := a.pool.QueryRow(ctx, q, id).Scan(
		&rec.SessionID, &rec.UserID, &rec.LastUser, &rec.LastAssistant, &variables, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading archived session %s: %w", id, err)
	}

	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &rec.Variables); err != nil {
			return nil, fmt.Errorf("decoding variables for session %s: %w", id, err)
		}
	}
	return &rec, nil
}

// Delete removes the archive record if owned by userID.
func (a *PGArchive) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	const q = `DELETE FROM conversation_archive WHERE session_id = $1 AND user_id = $2`

	tag, err := a.pool.Exec(ctx, q, id, userID)
	if err != nil {
		return fmt.Errorf("deleting archived session %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PruneStale removes archive records untouched for longer than maxAge and
// returns how many were removed. Run periodically from the maintenance
// command, not per turn.
func (a *PGArchive) PruneStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	const q = `DELETE FROM conversation_archive WHERE updated_at < $1`

	tag, err := a.pool.Exec(ctx, q, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("pruning archive: %w", err)
	}
	return tag.RowsAffected(), nil
}
