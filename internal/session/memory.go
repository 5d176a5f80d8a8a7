package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const shardCount = 16

type memoryEntry struct {
	conv      *Conversation
	expiresAt time.Time
}

type memoryShard struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]memoryEntry
}

// Memory is the fast session layer: a sharded in-memory TTL cache. Sharding
// keeps lock contention local to a slice of the key space, and the
// background sweep iterates a per-shard snapshot so no lock is held for the
// duration of a full scan.
//
// Entries expire after their TTL; a put resets the window. Reads and writes
// copy the conversation, so cached state is never aliased by a running
// turn.
type Memory struct {
	shards [shardCount]*memoryShard
	ttl    time.Duration
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewMemory creates the cache and starts its expiry sweep. Call Close at
// process shutdown to stop the sweep goroutine.
func NewMemory(ttl, sweepInterval time.Duration, logger *slog.Logger) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Memory{
		ttl:    ttl,
		logger: logger,
		done:   make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i] = &memoryShard{entries: make(map[uuid.UUID]memoryEntry)}
	}

	m.wg.Add(1)
	go m.sweep(sweepInterval)
	return m
}

// TTL returns the configured inactivity window.
func (m *Memory) TTL() time.Duration {
	return m.ttl
}

func (m *Memory) shard(id uuid.UUID) *memoryShard {
	// UUID bytes are uniformly distributed, the first one shards fine.
	return m.shards[int(id[0])%shardCount]
}

// Get returns the conversation for id if present, unexpired, and owned by
// userID. ErrNotFound for missing or expired entries, ErrOwnerMismatch
// when the entry belongs to someone else. A lookup does not extend the
// expiry window.
func (m *Memory) Get(_ context.Context, id uuid.UUID, userID string) (*Conversation, error) {
	s := m.shard(id)

	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, ErrNotFound
	}
	if entry.conv.UserID != userID {
		return nil, ErrOwnerMismatch
	}
	return entry.conv.Clone(), nil
}

// Put stores the conversation and resets its expiry window. A non-positive
// ttl uses the cache default. An unexpired entry owned by a different user
// is never overwritten.
func (m *Memory) Put(_ context.Context, conv *Conversation, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	s := m.shard(conv.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[conv.ID]; ok &&
		entry.conv.UserID != conv.UserID && time.Now().Before(entry.expiresAt) {
		return ErrOwnerMismatch
	}
	s.entries[conv.ID] = memoryEntry{
		conv:      conv.Clone(),
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Delete removes the conversation if it exists and is owned by userID.
func (m *Memory) Delete(_ context.Context, id uuid.UUID, userID string) error {
	s := m.shard(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[id]
	if !ok || entry.conv.UserID != userID {
		return ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

// Len reports the number of cached conversations, expired entries
// included until the next sweep.
func (m *Memory) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

func (m *Memory) sweep(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.removeExpired()
		case <-m.done:
			return
		}
	}
}

// removeExpired drops stale entries shard by shard. Candidates are
// collected under a read lock, then removed under a write lock with the
// staleness re-checked, so a concurrent Put is never clobbered.
func (m *Memory) removeExpired() {
	now := time.Now()
	removed := 0

	for _, s := range m.shards {
		s.mu.RLock()
		var stale []uuid.UUID
		for id, entry := range s.entries {
			if now.After(entry.expiresAt) {
				stale = append(stale, id)
			}
		}
		s.mu.RUnlock()

		if len(stale) == 0 {
			continue
		}

		s.mu.Lock()
		for _, id := range stale {
			if entry, ok := s.entries[id]; ok && now.After(entry.expiresAt) {
				delete(s.entries, id)
				removed++
			}
		}
		s.mu.Unlock()
	}

	if removed > 0 {
		m.logger.Debug("expired sessions removed", "count", removed)
	}
}

// Close stops the sweep goroutine. Safe to call more than once.
func (m *Memory) Close() {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}
