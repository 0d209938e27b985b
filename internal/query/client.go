// Package query is a small cache-aware request layer: results are cached per
// composite key, concurrent requests for the same key are collapsed into one,
// and entries go stale after a configurable time.
package query

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key identifies a cached request. It is the canonical JSON encoding of the
// composite key parts, e.g. ["jobs",{"limit":50}].
type Key string

// NewKey builds a Key from parts. Map keys are sorted by encoding/json, so
// equal parts always produce the same Key.
func NewKey(parts ...any) Key {
	raw := encodeParts(parts)
	data, _ := json.Marshal(raw)
	return Key(data)
}

func encodeParts(parts []any) []json.RawMessage {
	raw := make([]json.RawMessage, len(parts))
	for i, p := range parts {
		b, err := json.Marshal(p)
		if err != nil {
			b = []byte("null")
		}
		raw[i] = b
	}
	return raw
}

// Options configures a Client.
type Options struct {
	// StaleTime is how long a successful result is served from cache before
	// Load goes back to the network. Zero means always refetch.
	StaleTime time.Duration
	Logger    *slog.Logger
	Now       func() time.Time
}

type entry struct {
	parts     []json.RawMessage
	data      any
	hasData   bool
	err       error
	updatedAt time.Time
	invalid   bool
}

// Client owns the cache shared by every Query built on it.
type Client struct {
	mu        sync.Mutex
	entries   map[Key]*entry
	group     singleflight.Group
	staleTime time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewClient creates an empty cache.
func NewClient(opts Options) *Client {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		entries:   make(map[Key]*entry),
		staleTime: opts.StaleTime,
		logger:    opts.Logger,
		now:       opts.Now,
	}
}

// fresh returns the cached value for key when it is still within StaleTime.
// Caller holds c.mu.
func (c *Client) fresh(key Key) (any, bool) {
	e, ok := c.entries[key]
	if !ok || !e.hasData || e.invalid || e.err != nil {
		return nil, false
	}
	if c.now().Sub(e.updatedAt) >= c.staleTime {
		return nil, false
	}
	return e.data, true
}

// do runs fn for key unless a fresh result is cached (and force is false).
// Concurrent callers for the same key share one invocation.
func (c *Client) do(ctx context.Context, key Key, parts []json.RawMessage, force bool, fn func(context.Context) (any, error)) (any, error) {
	if !force {
		c.mu.Lock()
		v, ok := c.fresh(key)
		c.mu.Unlock()
		if ok {
			return v, nil
		}
	}

	v, err, shared := c.group.Do(string(key), func() (any, error) {
		if !force {
			c.mu.Lock()
			v, ok := c.fresh(key)
			c.mu.Unlock()
			if ok {
				return v, nil
			}
		}

		data, err := fn(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		e, ok := c.entries[key]
		if !ok {
			e = &entry{parts: parts}
			c.entries[key] = e
		}
		e.err = err
		if err == nil {
			e.data = data
			e.hasData = true
			e.updatedAt = c.now()
			e.invalid = false
		}
		return data, err
	})
	if shared {
		c.logger.Debug("query: shared in-flight request", "key", string(key))
	}
	return v, err
}

// Peek returns the last successful value for key, if any, regardless of age.
func (c *Client) Peek(key Key) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.hasData {
		return nil, false
	}
	return e.data, true
}

// Invalidate marks every entry whose key starts with the given parts as
// stale, so the next Load refetches. With no parts every entry is marked.
// It returns the number of entries affected.
func (c *Client) Invalidate(prefix ...any) int {
	want := encodeParts(prefix)

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if hasPrefix(e.parts, want) {
			e.invalid = true
			n++
		}
	}
	return n
}

func hasPrefix(parts, prefix []json.RawMessage) bool {
	if len(prefix) > len(parts) {
		return false
	}
	for i := range prefix {
		if !bytes.Equal(parts[i], prefix[i]) {
			return false
		}
	}
	return true
}
