package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"griddata/internal/jsonrpc"
)

// ErrAllUpstreamsFailed is returned when every upstream failed
var ErrAllUpstreamsFailed = errors.New("all upstreams failed")

// Upstream is one named caller participating in failover
type Upstream struct {
	Name     string
	Caller   Caller
	Fallback bool
}

// FailoverCaller tries upstreams in order, main upstreams before
// fallback ones, until one succeeds. Client errors (bad request shape)
// are returned immediately: a different upstream cannot fix them.
type FailoverCaller struct {
	upstreams []Upstream
	logger    zerolog.Logger
}

// NewFailoverCaller creates a FailoverCaller; main upstreams are ordered
// before fallback ones, preserving relative order within each role.
func NewFailoverCaller(upstreams []Upstream, logger zerolog.Logger) *FailoverCaller {
	ordered := make([]Upstream, 0, len(upstreams))
	for _, u := range upstreams {
		if !u.Fallback {
			ordered = append(ordered, u)
		}
	}
	for _, u := range upstreams {
		if u.Fallback {
			ordered = append(ordered, u)
		}
	}

	return &FailoverCaller{
		upstreams: ordered,
		logger:    logger.With().Str("component", "failover").Logger(),
	}
}

// Call implements endpoint.Caller
func (f *FailoverCaller) Call(ctx context.Context, model, method string, args []any) (any, error) {
	var lastErr error

	for _, u := range f.upstreams {
		value, err := u.Caller.Call(ctx, model, method, args)
		if err == nil {
			return value, nil
		}

		if !isRetryable(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		f.logger.Warn().
			Err(err).
			Str("upstream", u.Name).
			Str("model", model).
			Str("method", method).
			Bool("isFallback", u.Fallback).
			Msg("request failed, trying next upstream")
		lastErr = err
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllUpstreamsFailed, lastErr)
	}
	return nil, ErrAllUpstreamsFailed
}

// isRetryable reports whether another upstream may succeed where this
// one failed. Errors describing the request itself are not retried.
func isRetryable(err error) bool {
	var rpcErr *jsonrpc.Error
	if !errors.As(err, &rpcErr) {
		// Transport-level failure: the next upstream may be healthy.
		return true
	}

	switch rpcErr.Code {
	case jsonrpc.CodeParseError, jsonrpc.CodeInvalidRequest, jsonrpc.CodeInvalidParams:
		return false
	}
	return true
}
