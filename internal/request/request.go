package request

import (
	"encoding/json"
	"fmt"
)

// Request identifies a single (model, method, args) invocation.
// It is immutable after construction; the fingerprint is computed once.
type Request struct {
	model       string
	method      string
	args        []any
	fingerprint string
}

// New creates a Request for the given model, method and positional args.
func New(model, method string, args []any) Request {
	return Request{
		model:       model,
		method:      method,
		args:        args,
		fingerprint: model + ":" + method + ":" + canonicalJSON(args),
	}
}

// Model returns the model identifier
func (r Request) Model() string {
	return r.model
}

// Method returns the method identifier
func (r Request) Method() string {
	return r.method
}

// Args returns the positional arguments
func (r Request) Args() []any {
	return r.args
}

// BatchKey returns the batched key, by convention the first positional arg.
// Returns nil for requests with no args.
func (r Request) BatchKey() any {
	if len(r.args) == 0 {
		return nil
	}
	return r.args[0]
}

// Fingerprint returns the canonical string identity of the
// (model, method, args) triple. Two requests that are JSON-equivalent
// share a fingerprint regardless of how their args were spelled.
func (r Request) Fingerprint() string {
	return r.fingerprint
}

// canonicalJSON serializes args so that JSON-equivalent values produce
// identical output: object keys sorted (the encoder sorts map keys) and
// numeric spellings converged by a round-trip through the decoder.
func canonicalJSON(args []any) string {
	if len(args) == 0 {
		return "[]"
	}

	data, err := json.Marshal(args)
	if err != nil {
		// Non-serializable args cannot be addressed remotely anyway;
		// fall back to a best-effort textual identity.
		return fmt.Sprintf("%v", args)
	}

	var normalized []any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return string(data)
	}

	result, err := json.Marshal(normalized)
	if err != nil {
		return string(data)
	}

	return string(result)
}
