// Package store defines the durable key/value + list contract the
// orchestration core persists through, plus Redis and in-memory adapters.
//
// Values round-trip as JSON strings. A missing key is a normal condition
// reported via the found flag, not an error. Connectivity failures wrap
// ErrUnavailable so callers can apply their degradation policy with
// errors.Is instead of string matching.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable marks a store that cannot be reached.
var ErrUnavailable = errors.New("store unavailable")

// Store is the persistence substrate: key/value with per-key expiry plus
// front-push list primitives. Index 0 of a list is the most recently pushed
// element.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error

	ListPush(ctx context.Context, key, value string, ttl time.Duration) error
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ListTrim(ctx context.Context, key string, start, stop int64) error
}

// GetJSON fetches key and unmarshals it into a T.
func GetJSON[T any](ctx context.Context, s Store, key string) (*T, bool, error) {
	raw, found, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return &out, true, nil
}

// SetJSON marshals value and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, string(raw), ttl)
}
