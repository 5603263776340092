package jsonrpc

import (
	"testing"
)

func TestNewCallRequest(t *testing.T) {
	req, err := NewCallRequest("partner", "get_something", []any{5, "en"}, NewIDInt(7))
	if err != nil {
		t.Fatal(err)
	}
	if req.Method != "partner.get_something" {
		t.Errorf("Method = %q, want partner.get_something", req.Method)
	}
	if string(req.Params) != `[5,"en"]` {
		t.Errorf("Params = %s", req.Params)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestRequest_RoundTrip(t *testing.T) {
	req, _ := NewCallRequest("partner", "get_something", []any{5}, NewIDInt(1))
	data, err := req.Bytes()
	if err != nil {
		t.Fatal(err)
	}

	parsed, err := ParseRequest(data)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Method != req.Method {
		t.Errorf("Method = %q, want %q", parsed.Method, req.Method)
	}
	id, ok := parsed.ID.Int64()
	if !ok || id != 1 {
		t.Errorf("ID = %v, %v", id, ok)
	}
}

func TestResponse_DecodeResult(t *testing.T) {
	resp, err := NewResponse(NewIDInt(1), []any{4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}

	value, err := resp.DecodeResult()
	if err != nil {
		t.Fatal(err)
	}
	values, ok := value.([]any)
	if !ok || len(values) != 3 {
		t.Fatalf("value = %v", value)
	}
	if values[0] != float64(4) {
		t.Errorf("values[0] = %v", values[0])
	}
}

func TestResponse_Error(t *testing.T) {
	resp := NewErrorResponse(NewIDInt(1), NewError(CodeInternalError, "boom"))
	if !resp.HasError() {
		t.Fatal("HasError should be true")
	}

	data, _ := resp.Bytes()
	parsed, err := ParseResponse(data)
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.HasError() || parsed.Error.Code != CodeInternalError {
		t.Errorf("parsed error = %+v", parsed.Error)
	}
	if parsed.Error.Error() != "boom" {
		t.Errorf("Error() = %q", parsed.Error.Error())
	}
}

func TestID_Int64(t *testing.T) {
	id := NewIDInt(42)
	if v, ok := id.Int64(); !ok || v != 42 {
		t.Errorf("Int64() = %v, %v", v, ok)
	}

	str := NewIDString("abc")
	if _, ok := str.Int64(); ok {
		t.Error("string ID should not convert to int64")
	}
}

func TestValidate(t *testing.T) {
	bad := &Request{JSONRPC: "1.0", Method: "m"}
	if err := bad.Validate(); err == nil {
		t.Error("wrong version should fail validation")
	}

	noMethod := &Request{JSONRPC: Version}
	if err := noMethod.Validate(); err == nil {
		t.Error("missing method should fail validation")
	}
}
