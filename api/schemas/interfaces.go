package schemas

import (
	"context"
)

// -- Automation Backend Interfaces --

// TreeBuilder produces the accessibility tree of a running application. It is
// also the automation context handed to element-targeted actions, which resolve
// an element index against the most recently built tree.
type TreeBuilder interface {
	// BuildTree returns the root node for appName, or for the frontmost
	// application when appName is empty. A nil node with a nil error means the
	// application exposes no accessible UI.
	BuildTree(ctx context.Context, appName string) (UINode, error)
}

// Controller executes named automation primitives. Params are already validated
// and defaulted by the caller. The tree builder is non-nil only for actions that
// address a UI element.
type Controller interface {
	ExecuteAction(ctx context.Context, action string, params map[string]interface{}, tree TreeBuilder) (interface{}, error)
}

// UINode is one element of a backend-owned accessibility tree. Implementations
// are read-only views; callers never mutate or retain them past a single pass.
type UINode interface {
	Role() string
	Title() *string
	Value() interface{}
	Description() *string
	Position() []float64 // x, y
	Size() []float64     // width, height
	Index() *int         // interactive elements only
	Children() []UINode
}

// Exportable is implemented by backend result types that know how to present
// themselves as a plain, wire-safe mapping.
type Exportable interface {
	Export() map[string]interface{}
}

// -- LLM Client Schemas & Interface --

// GenerationOptions provides detailed parameters to control the text generation
// process of the LLM, such as creativity (temperature) and output format.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, asks the model to output valid JSON.
	MaxTokens       int     `json:"max_tokens"`        // Zero means provider default.
}

// GenerationRequest encapsulates a complete request to the LLM, including the
// system and user prompts and generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"` // Instructions for the model's persona and task.
	UserPrompt   string            `json:"user_prompt"`   // The specific query or input from the user.
	Options      GenerationOptions `json:"options"`       // Advanced generation parameters.
}

// LLMClient defines a standard interface for interacting with a Large Language
// Model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
