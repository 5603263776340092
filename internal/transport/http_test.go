package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"griddata/internal/jsonrpc"
)

func TestHTTPCaller_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, err := jsonrpc.ParseRequest(readBody(t, r))
		if err != nil {
			t.Errorf("ParseRequest: %v", err)
		}
		if req.Method != "partner.get_something" {
			t.Errorf("wire method = %q, want partner.get_something", req.Method)
		}

		resp, _ := jsonrpc.NewResponse(req.ID, []any{5})
		data, _ := resp.Bytes()
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}))
	defer srv.Close()

	caller := NewHTTPCaller(srv.URL, time.Second, zerolog.Nop())
	value, err := caller.Call(context.Background(), "partner", "get_something", []any{5})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}

	values, ok := value.([]any)
	if !ok || len(values) != 1 || values[0] != float64(5) {
		t.Errorf("value = %v, want [5]", value)
	}
}

func TestHTTPCaller_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req, _ := jsonrpc.ParseRequest(readBody(t, r))
		resp := jsonrpc.NewErrorResponse(req.ID, jsonrpc.NewError(jsonrpc.CodeInternalError, "boom"))
		data, _ := resp.Bytes()
		w.Write(data)
	}))
	defer srv.Close()

	caller := NewHTTPCaller(srv.URL, time.Second, zerolog.Nop())
	_, err := caller.Call(context.Background(), "partner", "get_something", []any{5})
	if err == nil {
		t.Fatal("expected an error")
	}

	rpcErr, ok := err.(*jsonrpc.Error)
	if !ok {
		t.Fatalf("err is %T, want *jsonrpc.Error", err)
	}
	if rpcErr.Code != jsonrpc.CodeInternalError || rpcErr.Message != "boom" {
		t.Errorf("err = %+v", rpcErr)
	}
}

func TestHTTPCaller_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	caller := NewHTTPCaller(srv.URL, time.Second, zerolog.Nop())
	if _, err := caller.Call(context.Background(), "partner", "get_something", []any{5}); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

func readBody(t *testing.T, r *http.Request) []byte {
	t.Helper()
	var buf json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&buf); err != nil {
		t.Fatalf("failed to read request body: %v", err)
	}
	return buf
}
