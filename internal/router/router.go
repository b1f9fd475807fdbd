// File: internal/router/router.go
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/xkilldash9x/macbridge/api/schemas"
	"github.com/xkilldash9x/macbridge/internal/normalize"
	"github.com/xkilldash9x/macbridge/internal/protocol"
)

// ActionType tags one automation primitive.
type ActionType string

const (
	ActionClick       ActionType = "click"
	ActionTypeText    ActionType = "type"
	ActionOpenApp     ActionType = "open_app"
	ActionAppleScript ActionType = "apple_script"
	ActionScroll      ActionType = "scroll"
)

// RequiredActions is the full action vocabulary. The router refuses to start
// unless each of these has a handler.
var RequiredActions = []ActionType{ActionClick, ActionTypeText, ActionOpenApp, ActionAppleScript, ActionScroll}

// Backend action names understood by the controller.
const (
	BackendClick       = "click_element"
	BackendInputText   = "input_text"
	BackendOpenApp     = "open_app"
	BackendAppleScript = "run_apple_script"
	BackendScroll      = "scroll_element"
)

const (
	defaultDirection = "down"
	scrollStep       = 5
)

var (
	// ErrUnknownAction is returned for an action type with no handler.
	ErrUnknownAction = errors.New("Unknown action type")
	// ErrInvalidParams is returned when a required field is missing or malformed.
	ErrInvalidParams = errors.New("invalid action parameters")
)

// Request is one decoded action object.
type Request struct {
	Type         ActionType `json:"type"`
	ElementIndex *int       `json:"element_index,omitempty"`
	Text         *string    `json:"text,omitempty"`
	AppName      string     `json:"app_name,omitempty"`
	Script       string     `json:"script,omitempty"`
	Direction    string     `json:"direction,omitempty"`
}

// ParseRequest decodes a raw action object.
func ParseRequest(raw []byte) (Request, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Request{}, fmt.Errorf("%w: action is required", ErrInvalidParams)
	}
	var req Request
	if err := protocol.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return req, nil
}

// Invocation is a fully assembled backend call.
type Invocation struct {
	Action string
	Params map[string]interface{}
	// Targeted actions address a UI element and receive the tree builder.
	Targeted bool
}

// Handler validates a request and assembles its backend call.
type Handler func(req Request) (Invocation, error)

// Router maps action types to handlers and runs the resulting backend calls.
type Router struct {
	logger     *zap.Logger
	controller schemas.Controller
	tree       schemas.TreeBuilder
	handlers   map[ActionType]Handler
}

// New creates a router with every built-in handler registered and checks that
// the vocabulary is complete.
func New(controller schemas.Controller, tree schemas.TreeBuilder, logger *zap.Logger) (*Router, error) {
	if controller == nil {
		return nil, fmt.Errorf("router requires a controller")
	}
	r := &Router{
		logger:     logger.Named("action_router"),
		controller: controller,
		tree:       tree,
		handlers:   make(map[ActionType]Handler),
	}
	r.registerHandlers()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// registerHandlers installs the built-in action handlers.
func (r *Router) registerHandlers() {
	r.Register(ActionClick, handleClick)
	r.Register(ActionTypeText, handleType)
	r.Register(ActionOpenApp, handleOpenApp)
	r.Register(ActionAppleScript, handleAppleScript)
	r.Register(ActionScroll, handleScroll)
}

// Register associates a handler with an action type, replacing any existing one.
func (r *Router) Register(t ActionType, h Handler) {
	r.handlers[t] = h
}

// Validate reports any required action type without a handler.
func (r *Router) Validate() error {
	var missing []string
	for _, t := range RequiredActions {
		if _, ok := r.handlers[t]; !ok {
			missing = append(missing, string(t))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("action registry incomplete, missing handlers for: %v", missing)
	}
	return nil
}

// Actions lists the registered action types in sorted order.
func (r *Router) Actions() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, string(t))
	}
	sort.Strings(out)
	return out
}

// Resolve finds the handler for req and assembles the backend call without running it.
func (r *Router) Resolve(req Request) (Invocation, error) {
	h, ok := r.handlers[req.Type]
	if !ok {
		return Invocation{}, fmt.Errorf("%w: %s", ErrUnknownAction, req.Type)
	}
	return h(req)
}

// Execute runs req against the controller and returns the normalized result.
func (r *Router) Execute(ctx context.Context, req Request) (interface{}, error) {
	inv, err := r.Resolve(req)
	if err != nil {
		return nil, err
	}

	var tree schemas.TreeBuilder
	if inv.Targeted {
		tree = r.tree
	}

	r.logger.Debug("Executing action",
		zap.String("type", string(req.Type)),
		zap.String("backend_action", inv.Action),
		zap.Any("params", inv.Params))

	raw, err := r.controller.ExecuteAction(ctx, inv.Action, inv.Params, tree)
	if err != nil {
		r.logger.Warn("Action execution failed", zap.String("type", string(req.Type)), zap.Error(err))
		return nil, fmt.Errorf("%s failed: %w", inv.Action, err)
	}
	return normalize.Value(raw), nil
}

// -- Action Handlers --

func elementIndex(req Request) int {
	if req.ElementIndex == nil {
		return 0
	}
	return *req.ElementIndex
}

func handleClick(req Request) (Invocation, error) {
	return Invocation{
		Action:   BackendClick,
		Params:   map[string]interface{}{"index": elementIndex(req)},
		Targeted: true,
	}, nil
}

func handleType(req Request) (Invocation, error) {
	if req.Text == nil {
		return Invocation{}, fmt.Errorf("%w: type requires 'text'", ErrInvalidParams)
	}
	return Invocation{
		Action: BackendInputText,
		Params: map[string]interface{}{
			"index":  elementIndex(req),
			"text":   *req.Text,
			"submit": false,
		},
		Targeted: true,
	}, nil
}

func handleOpenApp(req Request) (Invocation, error) {
	if req.AppName == "" {
		return Invocation{}, fmt.Errorf("%w: open_app requires 'app_name'", ErrInvalidParams)
	}
	return Invocation{
		Action: BackendOpenApp,
		Params: map[string]interface{}{"app_name": req.AppName},
	}, nil
}

func handleAppleScript(req Request) (Invocation, error) {
	if req.Script == "" {
		return Invocation{}, fmt.Errorf("%w: apple_script requires 'script'", ErrInvalidParams)
	}
	return Invocation{
		Action: BackendAppleScript,
		Params: map[string]interface{}{"script": req.Script},
	}, nil
}

func handleScroll(req Request) (Invocation, error) {
	direction := req.Direction
	if direction == "" {
		direction = defaultDirection
	}
	amount, err := ScrollAmount(direction)
	if err != nil {
		return Invocation{}, err
	}
	return Invocation{
		Action: BackendScroll,
		Params: map[string]interface{}{
			"index":     elementIndex(req),
			"direction": direction,
			"amount":    amount,
		},
		Targeted: true,
	}, nil
}

// ScrollAmount converts a direction into signed scroll units: positive moves
// down or right, negative moves up or left.
func ScrollAmount(direction string) (int, error) {
	switch direction {
	case "down", "right":
		return scrollStep, nil
	case "up", "left":
		return -scrollStep, nil
	default:
		return 0, fmt.Errorf("%w: unknown scroll direction %q", ErrInvalidParams, direction)
	}
}
