package session

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/tripwise/tripwise/internal/llm"
)

// Cache is the fast session layer. Implementations return ErrNotFound for
// every absent outcome; any other error means the layer itself is
// unreachable and the store degrades instead of failing the turn.
type Cache interface {
	Get(ctx context.Context, id uuid.UUID, userID string) (*Conversation, error)
	Put(ctx context.Context, conv *Conversation, ttl time.Duration) error
	Delete(ctx context.Context, id uuid.UUID, userID string) error
}

// Store layers the fast cache over the durable archive.
//
// Lookup order: cache, then archive. An archive hit reconstructs a minimal
// conversation from the record's last exchange, assigns it a freshly
// derived session identifier, and re-seeds the cache with a randomized TTL
// so reconstructed sessions do not all expire in the same sweep.
//
// Failure policy: a broken cache degrades lookups to archive-or-absent and
// makes writes best-effort; a broken archive during reconstruction reads
// as absent. Both are logged as warnings. Store methods never surface an
// infrastructure failure to the caller.
type Store struct {
	cache   Cache
	archive Archive
	ttl     time.Duration
	logger  *slog.Logger
}

// NewStore creates the layered store. archive may be nil when no durable
// layer is configured.
func NewStore(cache Cache, archive Archive, ttl time.Duration, logger *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cache:   cache,
		archive: archive,
		ttl:     ttl,
		logger:  logger,
	}
}

// Get returns the conversation for id if it exists and is owned by userID.
// Absent, expired, and wrong-owner all read as ErrNotFound.
//
// The returned conversation may carry a different ID than requested: a
// reconstruction from the archive is a new cache generation under a
// derived identifier, which callers should report back so the client
// tracks the live session.
func (s *Store) Get(ctx context.Context, id uuid.UUID, userID string) (*Conversation, error) {
	conv, err := s.cache.Get(ctx, id, userID)
	if err == nil {
		return conv, nil
	}
	if errors.Is(err, ErrOwnerMismatch) {
		return nil, ErrOwnerMismatch
	}
	if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("session cache unreachable, degrading to archive", "session_id", id, "error", err)
	}

	if s.archive == nil {
		return nil, ErrNotFound
	}

	rec, err := s.archive.Load(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			// An unreachable archive during reconstruction reads as absent.
			s.logger.Warn("session archive unreachable", "session_id", id, "error", err)
		}
		return nil, ErrNotFound
	}
	if rec.UserID != userID {
		return nil, ErrOwnerMismatch
	}

	conv = s.reconstruct(rec)
	if err := s.cache.Put(ctx, conv, jitterTTL(s.ttl)); err != nil {
		s.logger.Warn("session cache unreachable, skipping re-seed", "session_id", conv.ID, "error", err)
	}

	s.logger.Info("session reconstructed from archive",
		"archived_id", id,
		"session_id", conv.ID,
	)
	return conv, nil
}

// reconstruct builds a minimal conversation from an archive record: the
// last exchange as history, the variable map, and a fresh derived
// identifier.
func (s *Store) reconstruct(rec *Record) *Conversation {
	conv := NewConversation(DeriveSessionID(rec.SessionID), rec.UserID)
	if rec.LastUser != "" {
		conv.Messages = append(conv.Messages, llm.Message{Role: llm.RoleUser, Content: rec.LastUser})
	}
	if rec.LastAssistant != "" {
		conv.Messages = append(conv.Messages, llm.Message{Role: llm.RoleAssistant, Content: rec.LastAssistant})
	}
	for k, v := range rec.Variables {
		conv.Variables[k] = v
	}
	return conv
}

// Put persists the conversation to both layers and resets the expiry
// window. Layer failures are logged and absorbed: the turn that produced
// this state has already succeeded.
func (s *Store) Put(ctx context.Context, conv *Conversation) error {
	if err := s.cache.Put(ctx, conv, s.ttl); err != nil {
		if errors.Is(err, ErrOwnerMismatch) {
			return ErrOwnerMismatch
		}
		s.logger.Warn("session cache write failed, continuing degraded", "session_id", conv.ID, "error", err)
	}
	if s.archive != nil {
		if err := s.archive.Save(ctx, conv); err != nil {
			if errors.Is(err, ErrOwnerMismatch) {
				return ErrOwnerMismatch
			}
			s.logger.Warn("session archive write failed", "session_id", conv.ID, "error", err)
		}
	}
	return nil
}

// Delete removes the session from both layers. ErrNotFound when neither
// layer held a record owned by userID.
func (s *Store) Delete(ctx context.Context, id uuid.UUID, userID string) error {
	found := false

	if err := s.cache.Delete(ctx, id, userID); err == nil {
		found = true
	} else if !errors.Is(err, ErrNotFound) {
		s.logger.Warn("session cache delete failed", "session_id", id, "error", err)
	}

	if s.archive != nil {
		if err := s.archive.Delete(ctx, id, userID); err == nil {
			found = true
		} else if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("session archive delete failed", "session_id", id, "error", err)
		}
	}

	if !found {
		return ErrNotFound
	}
	return nil
}

// TTL returns the configured inactivity window.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// DeriveSessionID deterministically derives the identifier a reconstructed
// session is re-seeded under.
func DeriveSessionID(archived uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, archived[:])
}

// jitterTTL spreads re-seeded TTLs over 80-120% of the base window so a
// batch of reconstructions does not expire en masse.
func jitterTTL(base time.Duration) time.Duration {
	return time.Duration(float64(base) * (0.8 + 0.4*rand.Float64()))
}
