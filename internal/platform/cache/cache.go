// Package cache provides the key/value cache used for cache-aside reads and
// idempotency markers. Values are opaque strings; callers own serialization.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Cache is a TTL key/value store. Get reports found=false for missing or
// expired keys; err is reserved for transport failures. SetNX stores the value
// only if key is absent and reports whether it did, atomically across callers.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Key prefixes shared across the service.
const (
	summaryPrefix        = "summary:"
	membersPrefix        = "members:"
	processedEventPrefix = "processedEvent:"
	userEmailPrefix      = "user_email:"
)

func SummaryKey(groupID string) string        { return summaryPrefix + groupID }
func MembersKey(memberID string) string       { return membersPrefix + memberID }
func ProcessedEventKey(eventID string) string { return processedEventPrefix + eventID }
func UserEmailKey(email string) string        { return userEmailPrefix + email }

// MembersKeys returns the members:{id} key for every given member.
func MembersKeys(memberIDs []string) []string {
	keys := make([]string, 0, len(memberIDs))
	for _, id := range memberIDs {
		keys = append(keys, MembersKey(id))
	}
	return keys
}

// Keyspace returns the prefix of a key up to its first colon ("summary",
// "members", ...); used as a low-cardinality metrics label.
func Keyspace(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return "other"
}

// GetJSON reads key and decodes it into T. A value that fails to decode is
// reported as an error, not as a miss.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool, error) {
	var out T
	raw, found, err := c.Get(ctx, key)
	if err != nil || !found {
		return out, false, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return out, true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Set(ctx, key, string(raw), ttl)
}
