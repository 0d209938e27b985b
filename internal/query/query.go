package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// State is a snapshot of a query for the view layer.
type State[T any] struct {
	Data T
	// HasData reports whether Data came from at least one successful fetch.
	HasData bool
	// IsLoading is true while the first fetch is in flight and no data exists.
	IsLoading bool
	// IsFetching is true while any fetch is in flight.
	IsFetching bool
	IsError    bool
	Err        error
	UpdatedAt  time.Time
}

// Fetcher performs the raw request for a query.
type Fetcher[R any] func(ctx context.Context) (R, error)

// Query is a typed handle on one cache key. Select converts the raw response
// into the shape handed to callers; it runs on every successful fetch.
type Query[R, T any] struct {
	client *Client
	key    Key
	parts  []json.RawMessage
	fetch  Fetcher[R]
	sel    func(R) T

	mu       sync.Mutex
	state    State[T]
	inflight int
}

// New creates a query bound to client under the key built from parts.
// A nil sel requires R and T to be the same type.
func New[R, T any](client *Client, parts []any, fetch Fetcher[R], sel func(R) T) *Query[R, T] {
	if sel == nil {
		sel = func(r R) T {
			t, _ := any(r).(T)
			return t
		}
	}
	return &Query[R, T]{
		client: client,
		key:    NewKey(parts...),
		parts:  encodeParts(parts),
		fetch:  fetch,
		sel:    sel,
	}
}

// Key returns the cache key of q.
func (q *Query[R, T]) Key() Key { return q.key }

// Load returns cached data when fresh and fetches otherwise.
func (q *Query[R, T]) Load(ctx context.Context) (T, error) {
	return q.run(ctx, false)
}

// Refetch always goes to the network (sharing any request already in flight).
func (q *Query[R, T]) Refetch(ctx context.Context) (T, error) {
	return q.run(ctx, true)
}

// State returns the current snapshot.
func (q *Query[R, T]) State() State[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

func (q *Query[R, T]) run(ctx context.Context, force bool) (T, error) {
	q.mu.Lock()
	q.inflight++
	q.state.IsFetching = true
	q.state.IsLoading = !q.state.HasData
	q.mu.Unlock()

	v, err := q.client.do(ctx, q.key, q.parts, force, func(ctx context.Context) (any, error) {
		return q.fetch(ctx)
	})

	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight--
	q.state.IsFetching = q.inflight > 0
	q.state.IsLoading = q.state.IsFetching && !q.state.HasData

	if err != nil {
		// Last known good data stays in place.
		q.state.IsError = true
		q.state.Err = err
		return q.state.Data, err
	}

	raw, ok := v.(R)
	if !ok {
		err := fmt.Errorf("query %s: cached value has type %T", q.key, v)
		q.state.IsError = true
		q.state.Err = err
		return q.state.Data, err
	}
	q.state.Data = q.sel(raw)
	q.state.HasData = true
	q.state.IsError = false
	q.state.Err = nil
	q.state.UpdatedAt = q.client.now()
	return q.state.Data, nil
}
