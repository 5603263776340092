package endpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"griddata/internal/cache"
	"griddata/internal/request"
)

// BatchCallbacks observe per-request batch outcomes
type BatchCallbacks struct {
	OnSuccess func(req request.Request)
	OnFailure func(req request.Request)
}

// BatchEndpoint coalesces requests for one (model, method) pair. Requests
// submitted within the same tick are flushed as a single RPC whose
// argument is the list of batched keys (args[0] of each request, in
// submission order). The result sequence is split back positionally onto
// the individual slots.
//
// When the whole batch RPC fails, each key is retried one by one, in
// order, so that a single poisonous key only rejects its own slot while
// its siblings still resolve. Retries are strictly sequential.
type BatchEndpoint struct {
	model     string
	method    string
	caller    Caller
	cache     *cache.RequestCache
	tick      Ticker
	loading   LoadNotifier
	callbacks BatchCallbacks
	logger    zerolog.Logger

	mu             sync.Mutex
	queue          []request.Request
	flushScheduled bool
}

// NewBatchEndpoint creates a BatchEndpoint for the given model and method
func NewBatchEndpoint(model, method string, caller Caller, c *cache.RequestCache, tick Ticker, loading LoadNotifier, callbacks BatchCallbacks, logger zerolog.Logger) *BatchEndpoint {
	if loading == nil {
		loading = NopNotifier()
	}
	if callbacks.OnSuccess == nil {
		callbacks.OnSuccess = func(request.Request) {}
	}
	if callbacks.OnFailure == nil {
		callbacks.OnFailure = func(request.Request) {}
	}
	return &BatchEndpoint{
		model:     model,
		method:    method,
		caller:    caller,
		cache:     c,
		tick:      tick,
		loading:   loading,
		callbacks: callbacks,
		logger: logger.With().
			Str("component", "batch-endpoint").
			Str("model", model).
			Str("method", method).
			Logger(),
	}
}

// Submit enqueues the request for the next flush. A fingerprint already
// known to the cache, in any state, is left to its existing slot: the
// batch path never duplicates an RPC for a slot it can observe.
func (b *BatchEndpoint) Submit(req request.Request) {
	fp := req.Fingerprint()

	b.mu.Lock()
	if _, ok := b.cache.Peek(fp); ok {
		b.mu.Unlock()
		return
	}
	b.cache.InsertPending(fp)
	b.queue = append(b.queue, req)
	if !b.flushScheduled {
		b.flushScheduled = true
		b.tick.NextTick(b.flush)
	}
	b.mu.Unlock()
}

// Get reads the request's slot synchronously, routing misses through
// Submit. The caller sees ErrLoading until the slot settles.
func (b *BatchEndpoint) Get(req request.Request) (any, error) {
	if out, ok := b.cache.Peek(req.Fingerprint()); ok {
		switch out.State {
		case cache.StateResolved:
			return out.Value, nil
		case cache.StateRejected:
			return nil, out.Err
		default:
			return nil, ErrLoading
		}
	}

	b.Submit(req)
	return nil, ErrLoading
}

// flush sends the accumulated requests as one RPC. Requests submitted
// after the snapshot is taken join the next batch.
func (b *BatchEndpoint) flush() {
	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	b.flushScheduled = false
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	b.loading.MarkLoading()

	keys := make([]any, len(batch))
	for i, req := range batch {
		keys[i] = req.BatchKey()
	}

	b.logger.Debug().Int("keys", len(keys)).Msg("executing batch")

	result, err := b.caller.Call(context.Background(), b.model, b.method, []any{keys})
	if err != nil {
		b.logger.Debug().Err(err).Int("keys", len(keys)).Msg("batch failed, retrying keys one by one")
		b.retryEach(batch)
		return
	}

	values, ok := result.([]any)
	if !ok {
		b.rejectAll(batch, fmt.Errorf("batch result for %s.%s is not a sequence", b.model, b.method))
		return
	}
	if len(values) != len(batch) {
		b.rejectAll(batch, fmt.Errorf("batch result size mismatch for %s.%s: expected %d, got %d",
			b.model, b.method, len(batch), len(values)))
		return
	}

	for i, req := range batch {
		b.cache.Resolve(req.Fingerprint(), values[i])
		b.callbacks.OnSuccess(req)
	}
}

// retryEach re-issues every request of a failed batch individually, in
// submission order. Each outcome settles only its own slot, isolating a
// poisonous key from its siblings.
func (b *BatchEndpoint) retryEach(batch []request.Request) {
	for _, req := range batch {
		fp := req.Fingerprint()

		result, err := b.caller.Call(context.Background(), b.model, b.method, []any{[]any{req.BatchKey()}})
		if err != nil {
			b.cache.Reject(fp, err)
			b.callbacks.OnFailure(req)
			continue
		}

		values, ok := result.([]any)
		if !ok || len(values) != 1 {
			b.cache.Reject(fp, fmt.Errorf("retry result for %s.%s is not a one-element sequence", b.model, b.method))
			b.callbacks.OnFailure(req)
			continue
		}

		b.cache.Resolve(fp, values[0])
		b.callbacks.OnSuccess(req)
	}
}

// rejectAll settles every slot of the batch with the same error
func (b *BatchEndpoint) rejectAll(batch []request.Request, err error) {
	b.logger.Error().Err(err).Int("keys", len(batch)).Msg("batch result rejected")
	for _, req := range batch {
		b.cache.Reject(req.Fingerprint(), err)
		b.callbacks.OnFailure(req)
	}
}
