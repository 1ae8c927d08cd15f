package transport

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version is the only JSON-RPC version spoken.
const Version = "2.0"

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification represents a JSON-RPC 2.0 notification (no ID).
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Standard error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	// ApplicationError carries a structured game error in Data.
	ApplicationError = -32000
)

// Message is one JSON-RPC message in either direction.
// Exactly one of Request, Response and Notification is set.
type Message struct {
	Request      *Request
	Response     *Response
	Notification *Notification

	// Raw contains the original bytes for inbound messages.
	Raw json.RawMessage
}

// StringID encodes a string as a JSON-RPC id.
func StringID(id string) json.RawMessage {
	b, _ := json.Marshal(id)
	return b
}

// encodeParams marshals a payload, mapping nil to no params.
func encodeParams(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// NewRequest builds a request message.
func NewRequest(id json.RawMessage, method string, params interface{}) (*Message, error) {
	p, err := encodeParams(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	return &Message{Request: &Request{JSONRPC: Version, ID: id, Method: method, Params: p}}, nil
}

// NewNotification builds a notification message.
func NewNotification(method string, params interface{}) (*Message, error) {
	p, err := encodeParams(params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", method, err)
	}
	return &Message{Notification: &Notification{JSONRPC: Version, Method: method, Params: p}}, nil
}

// NewResult builds a successful response.
func NewResult(id json.RawMessage, result interface{}) (*Message, error) {
	r, err := encodeParams(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	if r == nil {
		r = json.RawMessage("null")
	}
	return &Message{Response: &Response{JSONRPC: Version, ID: id, Result: r}}, nil
}

// NewErrorResponse builds an error response.
func NewErrorResponse(id json.RawMessage, rpcErr *Error) *Message {
	return &Message{Response: &Response{JSONRPC: Version, ID: id, Error: rpcErr}}
}

// ParseMessage parses raw JSON into a Message.
func ParseMessage(data []byte) (*Message, error) {
	var raw struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params"`
		Result  json.RawMessage `json:"result"`
		Error   *Error          `json:"error"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Code: ParseError, Message: "Parse error", Data: quote(err.Error())}
	}

	if raw.JSONRPC != Version {
		return nil, &Error{Code: InvalidRequest, Message: "Invalid Request", Data: quote("jsonrpc must be 2.0")}
	}

	msg := &Message{Raw: data}
	hasID := len(raw.ID) > 0 && string(raw.ID) != "null"

	switch {
	case raw.Method != "" && hasID:
		msg.Request = &Request{JSONRPC: raw.JSONRPC, ID: raw.ID, Method: raw.Method, Params: raw.Params}
	case raw.Method != "":
		msg.Notification = &Notification{JSONRPC: raw.JSONRPC, Method: raw.Method, Params: raw.Params}
	case hasID || raw.Error != nil:
		msg.Response = &Response{JSONRPC: raw.JSONRPC, ID: raw.ID, Result: raw.Result, Error: raw.Error}
	default:
		return nil, &Error{Code: InvalidRequest, Message: "Invalid Request", Data: quote("missing method and id")}
	}

	return msg, nil
}

// MarshalMessage serializes a Message to JSON.
func MarshalMessage(msg *Message) ([]byte, error) {
	switch {
	case msg.Request != nil:
		return json.Marshal(msg.Request)
	case msg.Response != nil:
		return json.Marshal(msg.Response)
	case msg.Notification != nil:
		return json.Marshal(msg.Notification)
	}
	return nil, errors.New("empty message")
}

func quote(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
