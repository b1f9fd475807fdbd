// File: internal/agent/models.go
package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xkilldash9x/macbridge/internal/config"
	"github.com/xkilldash9x/macbridge/internal/router"
)

// ActionRunner executes one decoded action. *router.Router satisfies it.
type ActionRunner interface {
	Execute(ctx context.Context, req router.Request) (interface{}, error)
	Actions() []string
}

// Notifier emits out-of-band progress messages. *protocol.Writer satisfies it.
type Notifier interface {
	Log(message string) error
}

// Settings tunes a session.
type Settings struct {
	MaxSteps           int
	StepsPerSecond     float64
	PromptTreeMaxBytes int
	MaxTreeDepth       int
	Temperature        float64
	MaxTokens          int
}

// SettingsFromConfig derives session settings from the loaded configuration.
func SettingsFromConfig(cfg config.Interface) Settings {
	return Settings{
		MaxSteps:           cfg.Agent().MaxSteps,
		StepsPerSecond:     cfg.Agent().StepsPerSecond,
		PromptTreeMaxBytes: cfg.Agent().PromptTreeMaxBytes,
		MaxTreeDepth:       cfg.Bridge().MaxTreeDepth,
		Temperature:        cfg.LLM().Temperature,
		MaxTokens:          cfg.LLM().MaxTokens,
	}
}

// Decision is the model's answer for one step.
type Decision struct {
	Thought string          `json:"thought"`
	Action  json.RawMessage `json:"action,omitempty"`
	Done    bool            `json:"done"`
	Result  string          `json:"result,omitempty"`
}

// HistoryEntry records one step of a session. It is returned to the parent as
// the "conversation" of a task reply.
type HistoryEntry struct {
	Step      int             `json:"step"`
	Thought   string          `json:"thought,omitempty"`
	Action    json.RawMessage `json:"action,omitempty"`
	Result    interface{}     `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Outcome is what a finished session reports.
type Outcome struct {
	SessionID string         `json:"session_id"`
	Output    string         `json:"output"`
	Completed bool           `json:"completed"`
	History   []HistoryEntry `json:"-"`
}
