package serverdata

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"griddata/internal/cache"
	"griddata/internal/endpoint"
	"griddata/internal/request"
)

// Options configure a ServerData instance. All fields are optional.
type Options struct {
	// OnLoadStart is invoked exactly once per loading episode: when the
	// first remote work of the episode starts. Advisory; its only purpose
	// is to let the host display a spinner.
	OnLoadStart func()

	// OnBatchSuccess and OnBatchFailure observe per-request outcomes of
	// batched calls, including the per-key fallback after a failed batch.
	OnBatchSuccess func(req request.Request)
	OnBatchFailure func(req request.Request)

	// Ticker overrides the scheduling primitive used to coalesce batches
	// and defer fire-and-forget fetches. Defaults to goroutine dispatch;
	// tests substitute a manual ticker.
	Ticker endpoint.Ticker

	Logger zerolog.Logger
}

// ServerData is the façade the evaluation engine talks to. It owns one
// request cache shared by a single-call endpoint and a registry of batch
// endpoints keyed by (model, method).
//
// Synchronous reads never block: they return the cached value, the sticky
// error of a failed fetch, or endpoint.ErrLoading while the value is on
// its way.
type ServerData struct {
	caller  endpoint.Caller
	cache   *cache.RequestCache
	single  *endpoint.SingleEndpoint
	tick    endpoint.Ticker
	loading *loadTracker
	logger  zerolog.Logger

	callbacks endpoint.BatchCallbacks

	mu      sync.Mutex
	batches map[string]*endpoint.BatchEndpoint
}

// New creates a ServerData bound to the given caller
func New(caller endpoint.Caller, opts Options) *ServerData {
	tick := opts.Ticker
	if tick == nil {
		tick = endpoint.NewAsyncTicker()
	}

	s := &ServerData{
		caller:  caller,
		tick:    tick,
		loading: newLoadTracker(opts.OnLoadStart),
		logger:  opts.Logger.With().Str("component", "serverdata").Logger(),
		callbacks: endpoint.BatchCallbacks{
			OnSuccess: opts.OnBatchSuccess,
			OnFailure: opts.OnBatchFailure,
		},
		batches: make(map[string]*endpoint.BatchEndpoint),
	}
	s.cache = cache.New(cache.Hooks{
		OnPending: s.loading.slotPending,
		OnSettled: s.loading.slotSettled,
	})
	s.single = endpoint.NewSingleEndpoint(caller, s.cache, tick, s.loading, opts.Logger)
	return s
}

// Fetch resolves model.method(args) through the single-call path,
// blocking until the value (or error) is available. Concurrent fetches
// for the same triple share one RPC.
func (s *ServerData) Fetch(ctx context.Context, model, method string, args []any) (any, error) {
	return s.single.Fetch(ctx, request.New(model, method, args))
}

// Get reads model.method(args) synchronously through the single-call
// path. A missing value starts loading in the background and Get returns
// endpoint.ErrLoading until it lands.
func (s *ServerData) Get(model, method string, args []any) (any, error) {
	return s.single.Get(request.New(model, method, args))
}

// BatchGet reads model.method([key]) synchronously through the batch
// path. Missing keys are coalesced with other keys submitted within the
// same tick into a single RPC.
func (s *ServerData) BatchGet(model, method string, key any) (any, error) {
	return s.batchEndpoint(model, method).Get(request.New(model, method, []any{key}))
}

// BatchFetch is the blocking variant of BatchGet, for hosts that are not
// tick-driven: it submits the key and waits for its slot to settle.
func (s *ServerData) BatchFetch(ctx context.Context, model, method string, key any) (any, error) {
	req := request.New(model, method, []any{key})
	be := s.batchEndpoint(model, method)

	value, err := be.Get(req)
	if err != endpoint.ErrLoading {
		return value, err
	}

	done := make(chan cache.Outcome, 1)
	s.cache.Wait(req.Fingerprint(), func(value any, err error) {
		done <- cache.Outcome{Value: value, Err: err}
	})

	select {
	case out := <-done:
		return out.Value, out.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// batchEndpoint returns the endpoint for (model, method), creating it on
// first use.
func (s *ServerData) batchEndpoint(model, method string) *endpoint.BatchEndpoint {
	key := model + "." + method

	s.mu.Lock()
	defer s.mu.Unlock()

	be, ok := s.batches[key]
	if !ok {
		be = endpoint.NewBatchEndpoint(model, method, s.caller, s.cache, s.tick, s.loading, s.callbacks, s.logger)
		s.batches[key] = be
	}
	return be
}

// loadTracker counts pending slots and turns endpoint MarkLoading calls
// into the once-per-episode notification. An episode spans from the first
// slot entering pending while none were, to the moment none are; reaching
// zero pending re-arms the notification.
type loadTracker struct {
	mu       sync.Mutex
	pending  int
	notified bool
	onStart  func()
}

func newLoadTracker(onStart func()) *loadTracker {
	return &loadTracker{onStart: onStart}
}

func (t *loadTracker) slotPending() {
	t.mu.Lock()
	t.pending++
	t.mu.Unlock()
}

func (t *loadTracker) slotSettled() {
	t.mu.Lock()
	t.pending--
	if t.pending <= 0 {
		t.pending = 0
		t.notified = false
	}
	t.mu.Unlock()
}

// MarkLoading implements endpoint.LoadNotifier
func (t *loadTracker) MarkLoading() {
	t.mu.Lock()
	fire := t.pending > 0 && !t.notified
	if fire {
		t.notified = true
	}
	onStart := t.onStart
	t.mu.Unlock()

	if fire && onStart != nil {
		onStart()
	}
}
