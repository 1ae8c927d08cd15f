package transport

import (
	"encoding/json"
	"testing"
)

func TestParseMessage_Kinds(t *testing.T) {
	tests := []struct {
		name  string
		input string
		kind  string
	}{
		{"request", `{"jsonrpc":"2.0","id":"a1","method":"doTask","params":{"taskId":"t"}}`, "request"},
		{"numeric id request", `{"jsonrpc":"2.0","id":7,"method":"requestTask"}`, "request"},
		{"notification", `{"jsonrpc":"2.0","method":"taskFinished","params":{"aborted":false}}`, "notification"},
		{"null id notification", `{"jsonrpc":"2.0","id":null,"method":"taskComplete"}`, "notification"},
		{"result", `{"jsonrpc":"2.0","id":"a1","result":{"started":true}}`, "response"},
		{"error", `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`, "response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if err != nil {
				t.Fatalf("ParseMessage error: %v", err)
			}
			got := ""
			switch {
			case msg.Request != nil:
				got = "request"
			case msg.Notification != nil:
				got = "notification"
			case msg.Response != nil:
				got = "response"
			}
			if got != tt.kind {
				t.Errorf("kind = %s, want %s", got, tt.kind)
			}
		})
	}
}

func TestParseMessage_Errors(t *testing.T) {
	tests := []struct {
		input string
		code  int
	}{
		{`{invalid`, ParseError},
		{`{"jsonrpc":"1.0","method":"x","id":1}`, InvalidRequest},
		{`{"jsonrpc":"2.0"}`, InvalidRequest},
	}
	for _, tt := range tests {
		_, err := ParseMessage([]byte(tt.input))
		rpcErr, ok := err.(*Error)
		if !ok {
			t.Fatalf("ParseMessage(%s) err = %v, want *Error", tt.input, err)
		}
		if rpcErr.Code != tt.code {
			t.Errorf("ParseMessage(%s) code = %d, want %d", tt.input, rpcErr.Code, tt.code)
		}
	}
}

func TestBuilders(t *testing.T) {
	req, err := NewRequest(StringID("r1"), "doTask", map[string]string{"taskId": "wires"})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	data, _ := MarshalMessage(req)
	back, err := ParseMessage(data)
	if err != nil || back.Request == nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if string(back.Request.ID) != `"r1"` {
		t.Errorf("id = %s", back.Request.ID)
	}

	res, _ := NewResult(StringID("r1"), nil)
	if string(res.Response.Result) != "null" {
		t.Errorf("nil result should encode as null, got %s", res.Response.Result)
	}

	note, _ := NewNotification("updateTaskBar", json.RawMessage(`{"taskBar":0.5}`))
	if string(note.Notification.Params) != `{"taskBar":0.5}` {
		t.Errorf("raw params should pass through, got %s", note.Notification.Params)
	}

	if _, err := MarshalMessage(&Message{}); err == nil {
		t.Error("expected error for empty message")
	}
}
