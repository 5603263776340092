package endpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"griddata/internal/cache"
	"griddata/internal/request"
)

// SingleEndpoint drives one request at a time through the Caller and
// writes the outcome into the shared cache.
//
// It keeps its own record of issued fingerprints: at most one RPC per
// fingerprint ever leaves through this path. A slot inserted by the batch
// path does not count as issued here, so a Fetch racing a scheduled batch
// flush may send its own RPC for the same fingerprint; the first terminal
// transition wins and the later one is a no-op.
type SingleEndpoint struct {
	caller  Caller
	cache   *cache.RequestCache
	tick    Ticker
	loading LoadNotifier
	logger  zerolog.Logger

	mu     sync.Mutex
	issued map[string]bool
}

// NewSingleEndpoint creates a SingleEndpoint bound to the given cache
func NewSingleEndpoint(caller Caller, c *cache.RequestCache, tick Ticker, loading LoadNotifier, logger zerolog.Logger) *SingleEndpoint {
	if loading == nil {
		loading = NopNotifier()
	}
	return &SingleEndpoint{
		caller:  caller,
		cache:   c,
		tick:    tick,
		loading: loading,
		logger:  logger.With().Str("component", "single-endpoint").Logger(),
		issued:  make(map[string]bool),
	}
}

// Fetch blocks until the request's slot is terminal and returns its
// outcome. Concurrent Fetches for the same fingerprint share one RPC.
func (e *SingleEndpoint) Fetch(ctx context.Context, req request.Request) (any, error) {
	fp := req.Fingerprint()

	e.mu.Lock()
	if out, ok := e.cache.Peek(fp); ok && out.State != cache.StatePending {
		e.mu.Unlock()
		return out.Value, out.Err
	}

	if e.issued[fp] {
		// Our own RPC is in flight; wait for the slot.
		done := make(chan cache.Outcome, 1)
		e.cache.Wait(fp, func(value any, err error) {
			done <- cache.Outcome{Value: value, Err: err}
		})
		e.mu.Unlock()

		select {
		case out := <-done:
			return out.Value, out.Err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.issued[fp] = true
	e.cache.InsertPending(fp)
	e.mu.Unlock()

	// The RPC is detached from ctx's cancellation: it runs to completion
	// and settles the slot even if this caller gives up.
	e.run(context.WithoutCancel(ctx), req)

	out, ok := e.cache.Peek(fp)
	if !ok {
		return nil, fmt.Errorf("no slot for %s after fetch", fp)
	}
	return out.Value, out.Err
}

// Submit schedules a fire-and-forget fetch for the request if its
// fingerprint is not yet known to the cache.
func (e *SingleEndpoint) Submit(req request.Request) {
	fp := req.Fingerprint()

	e.mu.Lock()
	if _, ok := e.cache.Peek(fp); ok {
		e.mu.Unlock()
		return
	}
	e.issued[fp] = true
	e.cache.InsertPending(fp)
	e.mu.Unlock()

	e.tick.NextTick(func() {
		e.run(context.Background(), req)
	})
}

// Get reads the request's slot synchronously. Missing slots are inserted
// pending and a fetch is scheduled; the caller sees ErrLoading until the
// slot settles.
func (e *SingleEndpoint) Get(req request.Request) (any, error) {
	if out, ok := e.cache.Peek(req.Fingerprint()); ok {
		switch out.State {
		case cache.StateResolved:
			return out.Value, nil
		case cache.StateRejected:
			return nil, out.Err
		default:
			return nil, ErrLoading
		}
	}

	e.Submit(req)
	return nil, ErrLoading
}

// run performs the RPC and settles the slot. The first terminal
// transition wins; a slot settled meanwhile by the batch path makes the
// settle below a no-op.
func (e *SingleEndpoint) run(ctx context.Context, req request.Request) {
	fp := req.Fingerprint()

	e.loading.MarkLoading()

	value, err := e.caller.Call(ctx, req.Model(), req.Method(), req.Args())
	if err != nil {
		e.logger.Debug().
			Err(err).
			Str("model", req.Model()).
			Str("method", req.Method()).
			Msg("request failed")
		e.cache.Reject(fp, err)
		return
	}

	e.cache.Resolve(fp, value)
}
