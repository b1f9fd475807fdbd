// File: internal/macos/controller.go
package macos

import (
	"context"
	_ "embed"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/macbridge/api/schemas"
)

var (
	//go:embed scripts/act.js
	actScript string
	//go:embed scripts/open.js
	openScript string
)

// Backend action names.
const (
	ActionClickElement  = "click_element"
	ActionInputText     = "input_text"
	ActionScrollElement = "scroll_element"
	ActionOpenApp       = "open_app"
	ActionRunScript     = "run_apple_script"
)

// Resolver maps an element index to an action target. *TreeBuilder satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, index int) (ElementRef, error)
}

// ActionResult is the outcome of one backend action.
type ActionResult struct {
	ExtractedContent string
	Error            string
	IsDone           bool
	IncludeInMemory  bool
}

// Export presents the result as a plain mapping.
func (r ActionResult) Export() map[string]interface{} {
	out := map[string]interface{}{
		"is_done":           r.IsDone,
		"success":           r.Error == "",
		"extracted_content": nil,
		"error":             nil,
		"include_in_memory": r.IncludeInMemory,
	}
	if r.ExtractedContent != "" {
		out["extracted_content"] = r.ExtractedContent
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	return out
}

// Controller executes backend actions through osascript.
type Controller struct {
	runner Runner
	logger *zap.Logger
}

// NewController creates a controller.
func NewController(runner Runner, logger *zap.Logger) *Controller {
	return &Controller{runner: runner, logger: logger.Named("controller")}
}

// ExecuteAction runs the named action. Element-targeted actions require tree
// to implement Resolver.
func (c *Controller) ExecuteAction(ctx context.Context, action string, params map[string]interface{}, tree schemas.TreeBuilder) (interface{}, error) {
	switch action {
	case ActionClickElement:
		return c.targeted(ctx, tree, params, map[string]interface{}{"op": "click"})
	case ActionInputText:
		text, err := stringParam(params, "text")
		if err != nil {
			return nil, err
		}
		submit, _ := params["submit"].(bool)
		return c.targeted(ctx, tree, params, map[string]interface{}{"op": "input", "text": text, "submit": submit})
	case ActionScrollElement:
		direction, err := stringParam(params, "direction")
		if err != nil {
			return nil, err
		}
		amount, err := intParam(params, "amount")
		if err != nil {
			return nil, err
		}
		return c.targeted(ctx, tree, params, map[string]interface{}{"op": "scroll", "direction": direction, "amount": amount})
	case ActionOpenApp:
		name, err := stringParam(params, "app_name")
		if err != nil {
			return nil, err
		}
		out, err := c.runner.Run(ctx, JavaScript, openScript, name)
		if err != nil {
			return nil, fmt.Errorf("failed to open %q: %w", name, err)
		}
		return ActionResult{ExtractedContent: message(out), IncludeInMemory: true}, nil
	case ActionRunScript:
		script, err := stringParam(params, "script")
		if err != nil {
			return nil, err
		}
		out, err := c.runner.Run(ctx, AppleScript, script)
		if err != nil {
			return nil, err
		}
		return ActionResult{ExtractedContent: out, IncludeInMemory: true}, nil
	default:
		return nil, fmt.Errorf("unsupported backend action %q", action)
	}
}

func (c *Controller) targeted(ctx context.Context, tree schemas.TreeBuilder, params, req map[string]interface{}) (interface{}, error) {
	resolver, ok := tree.(Resolver)
	if !ok {
		return nil, fmt.Errorf("%s requires an element tree", req["op"])
	}
	index, err := intParam(params, "index")
	if err != nil {
		return nil, err
	}
	ref, err := resolver.Resolve(ctx, index)
	if err != nil {
		return nil, err
	}

	req["app"] = ref.App
	req["path"] = ref.Path
	if ref.Path == nil {
		req["path"] = []int{}
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode action request: %w", err)
	}

	c.logger.Debug("Performing element action",
		zap.Any("op", req["op"]),
		zap.Int("index", index),
		zap.String("role", ref.Role),
		zap.String("app", ref.App))

	out, err := c.runner.Run(ctx, JavaScript, actScript, string(payload))
	if err != nil {
		return nil, err
	}
	return ActionResult{ExtractedContent: message(out), IncludeInMemory: true}, nil
}

// message pulls the "message" field from a script's JSON reply, falling back
// to the raw output.
func message(out string) string {
	var reply struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(out), &reply); err != nil || reply.Message == "" {
		return out
	}
	return reply.Message
}

func stringParam(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key].(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string", key)
	}
	return v, nil
}

func intParam(params map[string]interface{}, key string) (int, error) {
	switch v := params[key].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("parameter %q must be an integer", key)
	}
}
