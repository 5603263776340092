package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"griddata/internal/jsonrpc"
)

// HTTPCaller performs server-data calls over JSON-RPC HTTP POST
type HTTPCaller struct {
	url        string
	httpClient *http.Client
	logger     zerolog.Logger
	reqID      int64
}

// NewHTTPCaller creates an HTTPCaller for the given endpoint URL
func NewHTTPCaller(url string, timeout time.Duration, logger zerolog.Logger) *HTTPCaller {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	return &HTTPCaller{
		url: url,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		logger: logger.With().Str("component", "http-caller").Logger(),
	}
}

// Call implements endpoint.Caller. A JSON-RPC error response is returned
// as the *jsonrpc.Error itself so callers can inspect the code.
func (c *HTTPCaller) Call(ctx context.Context, model, method string, args []any) (any, error) {
	id := atomic.AddInt64(&c.reqID, 1)
	req, err := jsonrpc.NewCallRequest(model, method, args, jsonrpc.NewIDInt(id))
	if err != nil {
		return nil, err
	}

	reqBytes, err := req.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	rpcResp, err := jsonrpc.ParseResponse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if rpcResp.HasError() {
		c.logger.Debug().
			Str("model", model).
			Str("method", method).
			Int("errorCode", rpcResp.Error.Code).
			Str("errorMessage", rpcResp.Error.Message).
			Msg("RPC error response")
		return nil, rpcResp.Error
	}

	return rpcResp.DecodeResult()
}
