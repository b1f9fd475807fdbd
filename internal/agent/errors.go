// File: internal/agent/errors.go
package agent

import "errors"

var (
	// ErrLLMNotInitialized is returned for task commands when no model
	// credential was configured at startup.
	ErrLLMNotInitialized = errors.New("LLM not initialized")
	// ErrTaskRequired is returned when a task command carries no task text.
	ErrTaskRequired = errors.New("task is required")
)
