// File: internal/protocol/protocol.go
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MessageType classifies an inbound command or an outbound notice.
type MessageType string

const (
	TypeTask       MessageType = "task"
	TypeAction     MessageType = "action"
	TypeGetUIState MessageType = "get_ui_state"

	TypeReady MessageType = "ready"
	TypeLog   MessageType = "log"
)

// Command is one inbound JSON object. Only Type is decoded eagerly; the other
// fields stay raw until the handler for Type asks for them, so a field of the
// wrong type fails that command instead of hiding it.
type Command struct {
	Type   MessageType
	fields map[string]json.RawMessage
}

// Field decodes the named field into v. A missing or null field leaves v
// unchanged.
func (c Command) Field(name string, v interface{}) error {
	raw, ok := c.fields[name]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := wire.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid %s field: %v", name, err)
	}
	return nil
}

// Raw returns the undecoded field, or nil when it is absent.
func (c Command) Raw(name string) json.RawMessage {
	return c.fields[name]
}

// Response is the single reply to a task or action command. A successful
// reply always carries "result" (possibly null) and never "error"; a failed
// reply carries only "success" and "error".
type Response struct {
	Success      bool        `json:"success"`
	Result       interface{} `json:"result"`
	Conversation interface{} `json:"conversation,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// MarshalJSON enforces the success/failure field sets.
func (r Response) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return wire.Marshal(struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}{false, r.Error})
	}
	return wire.Marshal(struct {
		Success      bool        `json:"success"`
		Result       interface{} `json:"result"`
		Conversation interface{} `json:"conversation,omitempty"`
	}{true, r.Result, r.Conversation})
}

// UIStateResponse is the reply to get_ui_state. ui_state is always present and
// may be null.
type UIStateResponse struct {
	Success bool        `json:"success"`
	UIState interface{} `json:"ui_state"`
}

// Notice is an out-of-band message that is not a reply to any command.
type Notice struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message,omitempty"`
}

// OK wraps a successful result.
func OK(result interface{}) Response {
	return Response{Success: true, Result: result}
}

// Failure converts err into the standard failed envelope.
func Failure(err error) Response {
	if err == nil {
		return Response{Success: false, Error: "unknown error"}
	}
	return Response{Success: false, Error: err.Error()}
}

// Failuref is Failure with formatting.
func Failuref(format string, args ...interface{}) Response {
	return Response{Success: false, Error: fmt.Sprintf(format, args...)}
}
