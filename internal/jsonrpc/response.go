package jsonrpc

import (
	"encoding/json"
)

// Response represents a JSON-RPC response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      ID              `json:"id"`
}

// HasError returns true if the response contains an error
func (r *Response) HasError() bool {
	return r.Error != nil
}

// NewResponse creates a successful response
func NewResponse(id ID, result interface{}) (*Response, error) {
	resp := &Response{
		JSONRPC: Version,
		ID:      id,
	}

	if result != nil {
		resultBytes, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		resp.Result = resultBytes
	}

	return resp, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(id ID, err *Error) *Response {
	return &Response{
		JSONRPC: Version,
		Error:   err,
		ID:      id,
	}
}

// ParseResponse parses a JSON-RPC response from bytes
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DecodeResult unmarshals the result into a generic value
func (r *Response) DecodeResult() (any, error) {
	if r.Result == nil {
		return nil, nil
	}
	var value any
	if err := json.Unmarshal(r.Result, &value); err != nil {
		return nil, err
	}
	return value, nil
}

// Bytes returns the response as JSON bytes
func (r *Response) Bytes() ([]byte, error) {
	return json.Marshal(r)
}
