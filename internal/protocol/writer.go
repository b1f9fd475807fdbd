// File: internal/protocol/writer.go
package protocol

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// wire is the codec for every line written to the response channel. HTML
// escaping is off so scripts and UI text reach the parent byte for byte.
var wire = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// Writer emits one JSON value per line. Writes are serialised so two
// envelopes can never interleave, even when notices are sent from a
// goroutine other than the dispatch loop.
type Writer struct {
	mu  sync.Mutex
	out *bufio.Writer
}

// NewWriter wraps the response channel, normally os.Stdout.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: bufio.NewWriter(w)}
}

// Encode writes v followed by a newline and flushes.
func (w *Writer) Encode(v interface{}) error {
	line, err := wire.Marshal(v)
	if err != nil {
		// The value could not be encoded; the parent still gets a reply.
		line, _ = wire.Marshal(Failure(fmt.Errorf("failed to encode response: %w", err)))
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(line); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	if err := w.out.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return w.out.Flush()
}

// Respond writes a command reply.
func (w *Writer) Respond(r interface{}) error { return w.Encode(r) }

// Ready announces that the loop is accepting commands.
func (w *Writer) Ready() error { return w.Encode(Notice{Type: TypeReady}) }

// Log sends a diagnostic notice the parent may surface to its user.
func (w *Writer) Log(message string) error {
	return w.Encode(Notice{Type: TypeLog, Message: message})
}

// Decode parses one inbound line. Only a line that is not a JSON object is an
// error. A non-string type is kept verbatim so it is reported as unknown.
func Decode(line []byte) (Command, error) {
	var fields map[string]json.RawMessage
	if err := wire.Unmarshal(line, &fields); err != nil {
		return Command{}, fmt.Errorf("malformed command: %w", err)
	}
	if fields == nil {
		return Command{}, fmt.Errorf("malformed command: not a JSON object")
	}

	cmd := Command{fields: fields}
	if raw, ok := fields["type"]; ok {
		var name string
		if err := wire.Unmarshal(raw, &name); err != nil {
			name = string(bytes.TrimSpace(raw))
		}
		cmd.Type = MessageType(name)
	}
	return cmd, nil
}

// Unmarshal decodes data into v with the wire codec.
func Unmarshal(data []byte, v interface{}) error { return wire.Unmarshal(data, v) }

// Marshal encodes v with the wire codec.
func Marshal(v interface{}) ([]byte, error) { return wire.Marshal(v) }
