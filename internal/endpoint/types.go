package endpoint

import (
	"context"
	"errors"

	"griddata/internal/request"
)

// ErrLoading is returned by synchronous reads while the value is absent or
// still being fetched. Hosts recognize it with errors.Is and render a
// loading marker instead of an error.
var ErrLoading = errors.New("server data is still loading")

// Caller performs a remote procedure call. Errors are treated opaquely:
// they are stored on the slot and returned verbatim to every later read.
type Caller interface {
	Call(ctx context.Context, model, method string, args []any) (any, error)
}

// Ticker defers a thunk past the current synchronous region. The batch
// flush and fire-and-forget fetches are scheduled through it so that
// requests issued within one tick coalesce.
type Ticker interface {
	NextTick(fn func())
}

// LoadNotifier is signalled by endpoints right before remote work starts.
// The façade turns it into the once-per-episode loading notification.
type LoadNotifier interface {
	MarkLoading()
}

// Endpoint is the capability shared by the single and batched access paths
type Endpoint interface {
	// Submit hands a request to the endpoint; the outcome lands in the cache
	Submit(req request.Request)
	// Get reads synchronously: the cached value, the sticky error, or ErrLoading
	Get(req request.Request) (any, error)
}

// asyncTicker runs thunks on fresh goroutines. It is the production
// Ticker; tests substitute a manual implementation for deterministic
// tick boundaries.
type asyncTicker struct{}

// NewAsyncTicker creates the production Ticker
func NewAsyncTicker() Ticker {
	return asyncTicker{}
}

func (asyncTicker) NextTick(fn func()) {
	go fn()
}

// nopNotifier is used when no loading callback is configured
type nopNotifier struct{}

func (nopNotifier) MarkLoading() {}

// NopNotifier returns a LoadNotifier that does nothing
func NopNotifier() LoadNotifier {
	return nopNotifier{}
}
