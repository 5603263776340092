package transport

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"griddata/internal/request"
)

// memoEntry is a memoized call result with expiration
type memoEntry struct {
	value     any
	expiresAt time.Time
}

// Memo wraps a caller with a bounded TTL response cache keyed by request
// fingerprint. It sits below the semantic request cache, which is
// unbounded and sticky; the memo only short-circuits repeat RPCs across
// ServerData instances (a host recreating its session keeps warm data).
// Errors are never memoized.
type Memo struct {
	inner  Caller
	cache  *lru.Cache[string, memoEntry]
	ttl    time.Duration
	logger zerolog.Logger
}

// Caller mirrors endpoint.Caller; declared here so the transport package
// does not depend on the endpoint package.
type Caller interface {
	Call(ctx context.Context, model, method string, args []any) (any, error)
}

// NewMemo wraps inner with a TTL+LRU memo of the given size
func NewMemo(inner Caller, size int, ttl time.Duration, logger zerolog.Logger) (*Memo, error) {
	cache, err := lru.New[string, memoEntry](size)
	if err != nil {
		return nil, err
	}

	return &Memo{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With().Str("component", "memo").Logger(),
	}, nil
}

// Call implements endpoint.Caller
func (m *Memo) Call(ctx context.Context, model, method string, args []any) (any, error) {
	key := request.New(model, method, args).Fingerprint()

	if entry, ok := m.cache.Get(key); ok {
		if time.Now().Before(entry.expiresAt) {
			m.logger.Debug().Str("key", key).Msg("memo hit")
			return entry.value, nil
		}
		m.cache.Remove(key)
	}

	value, err := m.inner.Call(ctx, model, method, args)
	if err != nil {
		return nil, err
	}

	m.cache.Add(key, memoEntry{
		value:     value,
		expiresAt: time.Now().Add(m.ttl),
	})
	return value, nil
}

// Purge drops every memoized entry
func (m *Memo) Purge() {
	m.cache.Purge()
}
