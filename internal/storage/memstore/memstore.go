// Package memstore provides in-memory implementations of the reserve and
// dedup stores. It backs unit tests and local development runs without a
// Redis instance; semantics (atomicity per key, TTL expiry) match the Redis
// implementation.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// Store is a mutex-guarded key/value map with lazy TTL expiry.
type Store struct {
	mu   sync.Mutex
	data map[string]entry
}

func New() *Store {
	return &Store{data: map[string]entry{}}
}

func (s *Store) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if e, ok := s.data[key]; ok && !e.expired(now) {
		return false, nil
	}
	s.data[key] = entry{value: value, expiresAt: expiry(now, ttl)}
	return true, nil
}

func (s *Store) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = entry{value: value, expiresAt: expiry(time.Now(), ttl)}
	return nil
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok {
		return "", false, nil
	}
	if e.expired(time.Now()) {
		delete(s.data, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *Store) CompareAndSwapMove(_ context.Context, srcKey, expected, dstKey, newValue string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.data[srcKey]
	if !ok || e.expired(now) || e.value != expected {
		return false, nil
	}
	delete(s.data, srcKey)
	s.data[dstKey] = entry{value: newValue, expiresAt: expiry(now, ttl)}
	return true, nil
}

func (s *Store) DeleteIfValue(_ context.Context, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || e.expired(time.Now()) || e.value != expected {
		return false, nil
	}
	delete(s.data, key)
	return true, nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.data[key]
	if !ok || e.expired(time.Now()) {
		delete(s.data, key)
		return false, nil
	}
	delete(s.data, key)
	return true, nil
}

func (s *Store) ExtendTTL(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.data[key]
	if !ok || e.expired(now) {
		return false, nil
	}
	e.expiresAt = expiry(now, ttl)
	s.data[key] = e
	return true, nil
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// DedupStore is the in-memory counterpart of the Redis dedup store.
type DedupStore struct {
	mu      sync.Mutex
	records map[string]domain.DedupRecord
}

func NewDedup() *DedupStore {
	return &DedupStore{records: map[string]domain.DedupRecord{}}
}

func dedupKey(bot domain.BotType, updateID int64) string {
	return fmt.Sprintf("%s:%d", bot, updateID)
}

func (s *DedupStore) TryAcquire(_ context.Context, bot domain.BotType, updateID int64, now, staleBefore time.Time) (domain.DedupOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey(bot, updateID)
	rec, ok := s.records[key]
	if !ok {
		s.records[key] = domain.DedupRecord{BotType: bot, UpdateID: updateID, CreatedAt: now}
		return domain.DedupAcquired, nil
	}
	if rec.ProcessedAt != nil {
		return domain.DedupAlreadyProcessed, nil
	}
	if rec.CreatedAt.Before(staleBefore) {
		s.records[key] = domain.DedupRecord{BotType: bot, UpdateID: updateID, CreatedAt: now}
		return domain.DedupAcquired, nil
	}
	return domain.DedupInProgress, nil
}

func (s *DedupStore) MarkProcessed(_ context.Context, bot domain.BotType, updateID int64, processedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey(bot, updateID)
	rec, ok := s.records[key]
	// Marking a record that no longer exists is a no-op; resurrecting it
	// would leave a processed entry no acquisition ever created.
	if !ok || rec.ProcessedAt != nil {
		return nil
	}
	rec.ProcessedAt = &processedAt
	s.records[key] = rec
	return nil
}

func (s *DedupStore) ReleaseProcessing(_ context.Context, bot domain.BotType, updateID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := dedupKey(bot, updateID)
	rec, ok := s.records[key]
	if !ok || rec.ProcessedAt != nil {
		return nil
	}
	delete(s.records, key)
	return nil
}
