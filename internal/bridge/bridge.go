// File: internal/bridge/bridge.go
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/macbridge/api/schemas"
	"github.com/xkilldash9x/macbridge/internal/protocol"
	"github.com/xkilldash9x/macbridge/internal/router"
	"github.com/xkilldash9x/macbridge/internal/uitree"
)

const (
	// DefaultMaxLineBytes caps a single inbound command.
	DefaultMaxLineBytes = 4 << 20
	// logged prefix of a malformed line
	maxLoggedLine = 512
)

// TaskRunner runs natural-language tasks. *agent.Executor satisfies it.
type TaskRunner interface {
	Run(ctx context.Context, task string, taskContext map[string]interface{}) protocol.Response
}

// ActionRunner executes one decoded action. *router.Router satisfies it.
type ActionRunner interface {
	Execute(ctx context.Context, req router.Request) (interface{}, error)
}

// Deps are the collaborators of a Server.
type Deps struct {
	Logger   *zap.Logger
	Writer   *protocol.Writer
	Actions  ActionRunner
	Tasks    TaskRunner
	Tree     schemas.TreeBuilder
	Settings Settings
}

// Settings tunes the dispatch loop.
type Settings struct {
	MaxLineBytes int
	MaxTreeDepth int
	// RequestTimeout bounds one handler. Zero means unbounded.
	RequestTimeout time.Duration
}

type handlerFunc func(ctx context.Context, cmd protocol.Command) interface{}

// Server reads commands line by line and writes exactly one reply per
// well-formed command. Commands are handled strictly in order.
type Server struct {
	logger   *zap.Logger
	writer   *protocol.Writer
	actions  ActionRunner
	tasks    TaskRunner
	tree     schemas.TreeBuilder
	settings Settings
	handlers map[protocol.MessageType]handlerFunc
}

// New creates a server. Tree may be nil, in which case get_ui_state fails.
func New(deps Deps) (*Server, error) {
	if deps.Writer == nil {
		return nil, fmt.Errorf("bridge requires a response writer")
	}
	if deps.Actions == nil {
		return nil, fmt.Errorf("bridge requires an action runner")
	}
	if deps.Tasks == nil {
		return nil, fmt.Errorf("bridge requires a task runner")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := deps.Settings
	if settings.MaxLineBytes <= 0 {
		settings.MaxLineBytes = DefaultMaxLineBytes
	}
	if settings.MaxTreeDepth <= 0 {
		settings.MaxTreeDepth = uitree.DefaultMaxDepth
	}

	s := &Server{
		logger:   logger.Named("bridge"),
		writer:   deps.Writer,
		actions:  deps.Actions,
		tasks:    deps.Tasks,
		tree:     deps.Tree,
		settings: settings,
	}
	s.handlers = map[protocol.MessageType]handlerFunc{
		protocol.TypeTask:       s.handleTask,
		protocol.TypeAction:     s.handleAction,
		protocol.TypeGetUIState: s.handleGetUIState,
	}
	return s, nil
}

// inbound is one line from the reader goroutine. Dropped is non-zero when the
// line exceeded the size limit and its content was discarded.
type inbound struct {
	line    []byte
	dropped int
}

// Run announces readiness and serves commands from in until end of input or
// ctx cancellation, both of which return nil. A read failure on in is logged
// and treated as end of input.
//
// Lines are read on a separate goroutine so cancellation is observed between
// commands even while the reader is blocked. That goroutine exits once in is
// closed or reports an error.
func (s *Server) Run(ctx context.Context, in io.Reader) error {
	if err := s.writer.Ready(); err != nil {
		return fmt.Errorf("failed to announce readiness: %w", err)
	}
	s.logger.Info("Bridge ready", zap.Int("max_line_bytes", s.settings.MaxLineBytes))

	done := make(chan struct{})
	defer close(done)
	lines := make(chan inbound)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		reader := bufio.NewReaderSize(in, min(64*1024, s.settings.MaxLineBytes))
		for {
			line, dropped, err := readLine(reader, s.settings.MaxLineBytes)
			if len(line) > 0 || dropped > 0 {
				select {
				case lines <- inbound{line: line, dropped: dropped}:
				case <-done:
					return
				}
			}
			if err != nil {
				if err == io.EOF {
					err = nil
				}
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Bridge stopping", zap.Error(ctx.Err()))
			return nil
		case msg, ok := <-lines:
			if !ok {
				if err := <-readErr; err != nil {
					s.logger.Error("Failed to read input, bridge exiting", zap.Error(err))
					return nil
				}
				s.logger.Info("Input closed, bridge exiting")
				return nil
			}
			if msg.dropped > 0 {
				s.logger.Error("Discarding oversized command",
					zap.Int("bytes", msg.dropped),
					zap.Int("max_line_bytes", s.settings.MaxLineBytes))
				continue
			}
			s.handleLine(ctx, msg.line)
		}
	}
}

// readLine returns the next line without its terminator. A line longer than
// limit is still consumed to its end, but its content is dropped and its size
// returned instead. The error is that of the underlying read, io.EOF included.
func readLine(r *bufio.Reader, limit int) ([]byte, int, error) {
	var line []byte
	size, overflow := 0, false
	for {
		chunk, err := r.ReadSlice('\n')
		size += len(chunk)
		if !overflow {
			// one byte of slack for the newline
			if len(line)+len(chunk) > limit+1 {
				overflow, line = true, nil
			} else {
				line = append(line, chunk...)
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}

		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		if !overflow && len(line) > limit {
			overflow = true
		}
		if overflow {
			return nil, size, err
		}
		return line, 0, err
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	cmd, err := protocol.Decode(line)
	if err != nil {
		logged := line
		if len(logged) > maxLoggedLine {
			logged = logged[:maxLoggedLine]
		}
		s.logger.Error("Discarding malformed command", zap.Error(err), zap.ByteString("line", logged))
		return
	}

	resp := s.dispatch(ctx, cmd)
	if err := s.writer.Respond(resp); err != nil {
		s.logger.Error("Failed to write response", zap.String("type", string(cmd.Type)), zap.Error(err))
	}
}

// dispatch always yields exactly one reply, converting panics into failures.
func (s *Server) dispatch(ctx context.Context, cmd protocol.Command) (resp interface{}) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while handling command",
				zap.String("type", string(cmd.Type)),
				zap.Any("panic_value", r),
				zap.Stack("stack"))
			resp = protocol.Failuref("%v", r)
		}
		s.logger.Debug("Handled command", zap.String("type", string(cmd.Type)), zap.Duration("duration", time.Since(start)))
	}()

	h, ok := s.handlers[cmd.Type]
	if !ok {
		s.logger.Warn("Unknown message type", zap.String("type", string(cmd.Type)))
		return protocol.Failuref("Unknown message type: %s", cmd.Type)
	}

	if s.settings.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.settings.RequestTimeout)
		defer cancel()
	}
	return h(ctx, cmd)
}

// -- Handlers --

func (s *Server) handleTask(ctx context.Context, cmd protocol.Command) interface{} {
	var task string
	if err := cmd.Field("task", &task); err != nil {
		return protocol.Failure(err)
	}
	var taskContext map[string]interface{}
	if err := cmd.Field("context", &taskContext); err != nil {
		return protocol.Failure(err)
	}
	s.logger.Info("Running task", zap.Int("task_length", len(task)))
	return s.tasks.Run(ctx, task, taskContext)
}

func (s *Server) handleAction(ctx context.Context, cmd protocol.Command) interface{} {
	req, err := router.ParseRequest(cmd.Raw("action"))
	if err != nil {
		return protocol.Failure(err)
	}
	result, err := s.actions.Execute(ctx, req)
	if err != nil {
		return protocol.Failure(err)
	}
	return protocol.OK(result)
}

func (s *Server) handleGetUIState(ctx context.Context, cmd protocol.Command) interface{} {
	if s.tree == nil {
		return protocol.Failuref("UI tree builder not available")
	}
	var appName string
	if err := cmd.Field("app_name", &appName); err != nil {
		return protocol.Failure(err)
	}
	root, err := s.tree.BuildTree(ctx, appName)
	if err != nil {
		return protocol.Failure(err)
	}

	node, stats := uitree.SerializeWithStats(root, uitree.WithMaxDepth(s.settings.MaxTreeDepth))
	if stats.Truncated > 0 || stats.Cycles > 0 {
		s.logger.Warn("UI tree pruned",
			zap.Int("nodes", stats.Nodes),
			zap.Int("truncated", stats.Truncated),
			zap.Int("cycles", stats.Cycles))
	}
	if node == nil {
		return protocol.UIStateResponse{Success: true, UIState: nil}
	}
	return protocol.UIStateResponse{Success: true, UIState: node}
}
