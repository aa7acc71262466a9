package resilience

import (
	"fmt"
	"sync"
	"time"
)

// KeyPool manages a pool of API keys with round-robin rotation and
// per-key rate-limit awareness. The gateway keeps one pool per provider
// key-pool name and draws a key each time it opens an upstream stream.
type KeyPool struct {
	mu      sync.Mutex
	keys    []keyEntry
	current int
}

type keyEntry struct {
	Key       string
	ResetAt   time.Time // When the rate limit resets
	Exhausted bool      // Temporarily exhausted
}

// NewKeyPool creates a key pool from a list of API keys.
func NewKeyPool(keys []string) *KeyPool {
	entries := make([]keyEntry, len(keys))
	for i, k := range keys {
		entries[i] = keyEntry{Key: k}
	}
	return &KeyPool{keys: entries}
}

// Next returns the next available API key using round-robin selection.
// It skips keys that are currently exhausted (rate-limited).
// Returns an error if all keys are exhausted.
func (kp *KeyPool) Next() (string, error) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	n := len(kp.keys)
	if n == 0 {
		return "", fmt.Errorf("keypool: no keys configured")
	}

	now := time.Now()

	// Try each key once in round-robin order
	for i := 0; i < n; i++ {
		idx := (kp.current + i) % n
		entry := &kp.keys[idx]

		// Reset exhausted keys whose cooldown has passed
		if entry.Exhausted && now.After(entry.ResetAt) {
			entry.Exhausted = false
		}

		if !entry.Exhausted {
			kp.current = (idx + 1) % n
			return entry.Key, nil
		}
	}

	// All keys exhausted — find the earliest reset time
	earliest := kp.keys[0].ResetAt
	for _, e := range kp.keys[1:] {
		if e.ResetAt.Before(earliest) {
			earliest = e.ResetAt
		}
	}

	return "", fmt.Errorf("keypool: all keys exhausted, earliest reset at %s", earliest.Format(time.RFC3339))
}

// MarkRateLimited marks a key as rate-limited with the given reset time.
func (kp *KeyPool) MarkRateLimited(key string, resetAt time.Time) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	for i := range kp.keys {
		if kp.keys[i].Key == key {
			kp.keys[i].Exhausted = true
			kp.keys[i].ResetAt = resetAt
			return
		}
	}
}

// Size returns the number of keys in the pool.
func (kp *KeyPool) Size() int {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return len(kp.keys)
}
