// File: internal/agent/executor.go
package agent

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/macbridge/api/schemas"
	"github.com/xkilldash9x/macbridge/internal/protocol"
)

// Executor runs natural-language tasks. Each Run builds a fresh Session.
type Executor struct {
	settings Settings
	llm      schemas.LLMClient
	runner   ActionRunner
	tree     schemas.TreeBuilder
	notifier Notifier
	logger   *zap.Logger
}

// NewExecutor creates an executor. llm may be nil, in which case every task
// is rejected with ErrLLMNotInitialized.
func NewExecutor(settings Settings, llm schemas.LLMClient, runner ActionRunner, tree schemas.TreeBuilder, notifier Notifier, logger *zap.Logger) *Executor {
	return &Executor{
		settings: settings,
		llm:      llm,
		runner:   runner,
		tree:     tree,
		notifier: notifier,
		logger:   logger.Named("task_executor"),
	}
}

// Ready reports whether a model client is configured.
func (e *Executor) Ready() bool { return e.llm != nil }

// Run executes one task and always returns exactly one envelope.
func (e *Executor) Run(ctx context.Context, task string, taskContext map[string]interface{}) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Panic during task execution", zap.Any("panic_value", r), zap.Stack("stack"))
			resp = protocol.Failuref("%v", r)
		}
	}()

	if e.llm == nil {
		return protocol.Failure(ErrLLMNotInitialized)
	}
	if task == "" {
		return protocol.Failure(ErrTaskRequired)
	}
	if e.runner == nil {
		return protocol.Failure(fmt.Errorf("no action runner configured"))
	}

	session := NewSession(task, taskContext, e.llm, e.runner, e.tree, e.notifier, e.settings, e.logger)
	outcome, err := session.Run(ctx)
	if err != nil {
		e.logger.Warn("Task failed", zap.String("session_id", session.ID()), zap.Error(err))
		return protocol.Failure(err)
	}

	return protocol.Response{
		Success:      true,
		Result:       outcome,
		Conversation: outcome.History,
	}
}
