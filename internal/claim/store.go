// Package claim lets several bot replicas connected to the same server agree
// on which one deletes a given message. Claims are short-lived Redis keys:
//
//	Key:   modbot:claim:<message_id>
//	Value: <owner>
//	TTL:   claim duration
package claim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Prefix is the Redis key prefix for claim records.
	Prefix = "modbot:claim:"

	// DefaultTTL outlives any realistic delete delay plus retry window.
	DefaultTTL = 10 * time.Minute
)

// Store manages claim records in Redis.
type Store struct {
	client *redis.Client
	owner  string
	ttl    time.Duration
}

// NewStore creates a claim store. owner identifies this replica in the
// stored value; ttl <= 0 selects DefaultTTL.
func NewStore(client *redis.Client, owner string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, owner: owner, ttl: ttl}
}

// Claim atomically records this replica as the one acting on messageID.
// It returns false if another owner already holds the claim. Claiming a
// message this replica already holds succeeds.
func (s *Store) Claim(ctx context.Context, messageID string) (bool, error) {
	key := Prefix + messageID

	ok, err := s.client.SetNX(ctx, key, s.owner, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim: setnx: %w", err)
	}
	if ok {
		return true, nil
	}

	holder, err := s.Owner(ctx, messageID)
	if err != nil {
		return false, err
	}
	return holder == s.owner, nil
}

// Owner returns the current holder of a claim, or "" if unclaimed.
func (s *Store) Owner(ctx context.Context, messageID string) (string, error) {
	owner, err := s.client.Get(ctx, Prefix+messageID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("claim: get: %w", err)
	}
	return owner, nil
}

// Release drops a claim immediately, e.g. after a failed delete so another
// replica may retry.
func (s *Store) Release(ctx context.Context, messageID string) error {
	if err := s.client.Del(ctx, Prefix+messageID).Err(); err != nil {
		return fmt.Errorf("claim: del: %w", err)
	}
	return nil
}
