package taskstore

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mathtoons/mathtoons/internal/models"
)

const (
	keyPrefix = "task:"

	// NonTerminalTTL bounds how long ACCEPTED/IN_PROGRESS/FAILED entries
	// survive; CompleteTTL keeps finished videos pollable for a day.
	NonTerminalTTL = 1 * time.Hour
	CompleteTTL    = 24 * time.Hour
)

// Store maps task_id → status payload with per-entry expirations.
//
// The backing is a shared Redis instance when reachable. Every operation
// that fails against Redis degrades to a best-effort in-process map instead
// of propagating the error — status visibility can diverge across worker
// processes during an outage, but within one process no write is lost.
type Store struct {
	client *redis.Client // nil = memory-only mode

	mu    sync.RWMutex
	local map[string]localEntry
}

type localEntry struct {
	payload   models.StatusPayload
	expiresAt time.Time
}

// New creates a Store backed by Redis at redisURL. An empty URL or a failed
// connection yields a memory-only store (logged, not fatal).
func New(redisURL string) *Store {
	s := &Store{local: make(map[string]localEntry)}

	if redisURL == "" {
		log.Println("[TaskStore] No Redis URL configured, using in-process store only")
		return s
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("[TaskStore] WARNING: invalid Redis URL, using in-process store only: %v", err)
		return s
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("[TaskStore] WARNING: Redis unreachable, using in-process store only: %v", err)
		client.Close()
		return s
	}

	s.client = client
	return s
}

// Set writes the payload for taskID with the given TTL, replacing any prior
// payload and its TTL. Store failures never propagate to the caller.
func (s *Store) Set(ctx context.Context, taskID string, payload models.StatusPayload, ttl time.Duration) {
	if s.client != nil {
		data, err := json.Marshal(payload)
		if err == nil {
			if err := s.client.Set(ctx, keyPrefix+taskID, data, ttl).Err(); err == nil {
				return
			}
			log.Printf("[TaskStore] WARNING: Redis set failed for task %s, falling back to in-process store: %v", taskID, err)
		}
	}

	s.mu.Lock()
	s.local[taskID] = localEntry{payload: payload, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
}

// Get returns the current payload for taskID, or false if unknown or expired.
func (s *Store) Get(ctx context.Context, taskID string) (models.StatusPayload, bool) {
	if s.client != nil {
		raw, err := s.client.Get(ctx, keyPrefix+taskID).Result()
		if err == nil {
			var payload models.StatusPayload
			if jsonErr := json.Unmarshal([]byte(raw), &payload); jsonErr == nil {
				return payload, true
			}
			return models.StatusPayload{}, false
		}
		if err != redis.Nil {
			log.Printf("[TaskStore] WARNING: Redis get failed for task %s, checking in-process store: %v", taskID, err)
		}
		// redis.Nil falls through: the entry may have been written locally
		// during an earlier outage.
	}

	s.mu.RLock()
	entry, ok := s.local[taskID]
	s.mu.RUnlock()

	if !ok {
		return models.StatusPayload{}, false
	}

	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.local, taskID)
		s.mu.Unlock()
		return models.StatusPayload{}, false
	}

	return entry.payload, true
}

// Close releases the Redis connection, if any.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
