// Package cache provides caching and in-process event fan-out for Atelier.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrCacheMiss indicates a cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Client defines the cache interface.
type Client interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// PubSub is the event fan-out interface. The redis client carries session
// events across instances; the memory client fans out in-process.
type PubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

// Key builds a colon-separated cache key from components.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// PageKey is the cache key for a rendered page image.
func PageKey(sessionID, pageID uuid.UUID) string {
	return Key("s", sessionID.String(), "page", pageID.String())
}

// PageTextKey is the cache key for a page's extracted text.
func PageTextKey(sessionID, pageID uuid.UUID) string {
	return Key("s", sessionID.String(), "page", pageID.String(), "text")
}

// BlueprintKey is the cache key for a session's architecture blueprint.
func BlueprintKey(sessionID uuid.UUID) string {
	return Key("s", sessionID.String(), "blueprint")
}

// WorkflowKey is the cache key for a session's workflow graph.
func WorkflowKey(sessionID uuid.UUID) string {
	return Key("s", sessionID.String(), "workflow")
}

// SessionPrefix covers every cached artifact of a session, for invalidation
// on delete or re-analysis.
func SessionPrefix(sessionID uuid.UUID) string {
	return Key("s", sessionID.String())
}

// EventChannel is the pub/sub channel carrying a session's stream events.
func EventChannel(sessionID uuid.UUID) string {
	return Key("events", sessionID.String())
}
