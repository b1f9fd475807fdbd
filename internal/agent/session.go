// File: internal/agent/session.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/macbridge/api/schemas"
	"github.com/xkilldash9x/macbridge/internal/llmutil"
	"github.com/xkilldash9x/macbridge/internal/protocol"
	"github.com/xkilldash9x/macbridge/internal/router"
	"github.com/xkilldash9x/macbridge/internal/uitree"
)

var uuidNewString = uuid.NewString

// Session is one task run: a fresh history driven to completion by the model.
type Session struct {
	id       string
	task     string
	context  map[string]interface{}
	llm      schemas.LLMClient
	runner   ActionRunner
	tree     schemas.TreeBuilder
	notifier Notifier
	limiter  *rate.Limiter
	settings Settings
	logger   *zap.Logger
	history  []HistoryEntry
}

// NewSession prepares a session. tree and notifier may be nil.
func NewSession(task string, taskContext map[string]interface{}, llm schemas.LLMClient, runner ActionRunner, tree schemas.TreeBuilder, notifier Notifier, settings Settings, logger *zap.Logger) *Session {
	id := uuidNewString()
	return &Session{
		id:       id,
		task:     task,
		context:  taskContext,
		llm:      llm,
		runner:   runner,
		tree:     tree,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Limit(settings.StepsPerSecond), 1),
		settings: settings,
		logger:   logger.With(zap.String("session_id", id)),
		history:  make([]HistoryEntry, 0, settings.MaxSteps),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// History returns the steps taken so far.
func (s *Session) History() []HistoryEntry { return s.history }

// Run drives the model until it reports done or the step budget is spent.
// Only model failures and context cancellation end the run with an error;
// a failed action is recorded and shown to the model on the next step.
func (s *Session) Run(ctx context.Context) (Outcome, error) {
	s.logger.Info("Session started", zap.String("task", s.task), zap.Int("max_steps", s.settings.MaxSteps))
	s.notify(fmt.Sprintf("Starting task: %s", s.task))

	systemPrompt := s.systemPrompt()

	for step := 1; step <= s.settings.MaxSteps; step++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return s.outcome("", false), fmt.Errorf("session interrupted: %w", err)
		}

		decision, err := s.decide(ctx, systemPrompt, step)
		if err != nil {
			return s.outcome("", false), err
		}

		entry := HistoryEntry{
			Step:      step,
			Thought:   decision.Thought,
			Action:    decision.Action,
			Timestamp: time.Now().UTC(),
		}

		if decision.Done {
			entry.Result = decision.Result
			s.history = append(s.history, entry)
			s.notify(fmt.Sprintf("Step %d: done", step))
			s.logger.Info("Session completed", zap.Int("steps", step))
			return s.outcome(decision.Result, true), nil
		}

		s.execute(ctx, decision, &entry)
		s.history = append(s.history, entry)
		s.notify(stepMessage(entry))
	}

	s.logger.Warn("Session hit step limit", zap.Int("max_steps", s.settings.MaxSteps))
	s.notify(fmt.Sprintf("Stopped after %d steps", s.settings.MaxSteps))
	return s.outcome(fmt.Sprintf("Task not completed within %d steps", s.settings.MaxSteps), false), nil
}

func (s *Session) outcome(output string, completed bool) Outcome {
	return Outcome{SessionID: s.id, Output: output, Completed: completed, History: s.history}
}

func (s *Session) decide(ctx context.Context, systemPrompt string, step int) (Decision, error) {
	userPrompt, err := s.userPrompt(ctx, step)
	if err != nil {
		return Decision{}, err
	}

	response, err := s.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Options: schemas.GenerationOptions{
			Temperature:     s.settings.Temperature,
			ForceJSONFormat: true,
			MaxTokens:       s.settings.MaxTokens,
		},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("llm generation failed: %w", err)
	}

	decision, err := parseDecision(response)
	if err != nil {
		s.logger.Warn("Failed to parse model response", zap.String("raw_response", response), zap.Error(err))
		// A malformed reply costs a step rather than the task.
		return Decision{Thought: "unparseable model response"}, nil
	}
	return decision, nil
}

func (s *Session) execute(ctx context.Context, d Decision, entry *HistoryEntry) {
	if len(d.Action) == 0 {
		entry.Error = "no action given"
		return
	}
	req, err := router.ParseRequest(d.Action)
	if err != nil {
		entry.Error = err.Error()
		return
	}
	result, err := s.runner.Execute(ctx, req)
	if err != nil {
		entry.Error = err.Error()
		return
	}
	entry.Result = result
}

func (s *Session) notify(msg string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Log(msg); err != nil {
		s.logger.Debug("Failed to emit progress notice", zap.Error(err))
	}
}

func stepMessage(e HistoryEntry) string {
	msg := fmt.Sprintf("Step %d", e.Step)
	if e.Thought != "" {
		msg += ": " + e.Thought
	}
	if e.Error != "" {
		msg += " (error: " + e.Error + ")"
	}
	return msg
}

// -- Prompts --

func (s *Session) systemPrompt() string {
	var b strings.Builder
	b.WriteString(`You control a macOS desktop through its accessibility tree.
Each turn you receive the task, the steps taken so far, and the current UI tree.
Interactive elements carry an "index"; use it as element_index.

Available actions:
`)
	for _, a := range s.runner.Actions() {
		b.WriteString("  - ")
		b.WriteString(actionHelp(a))
		b.WriteString("\n")
	}
	b.WriteString(`
Respond with a single JSON object:
{"thought": "<reasoning>", "action": {"type": "<action>", ...}, "done": false}
When the task is complete respond with:
{"thought": "<reasoning>", "done": true, "result": "<answer for the user>"}`)
	return b.String()
}

func actionHelp(action string) string {
	switch router.ActionType(action) {
	case router.ActionClick:
		return `click: {"type":"click","element_index":N}`
	case router.ActionTypeText:
		return `type: {"type":"type","element_index":N,"text":"..."}`
	case router.ActionOpenApp:
		return `open_app: {"type":"open_app","app_name":"..."}`
	case router.ActionAppleScript:
		return `apple_script: {"type":"apple_script","script":"..."}`
	case router.ActionScroll:
		return `scroll: {"type":"scroll","element_index":N,"direction":"up|down|left|right"}`
	default:
		return action
	}
}

func (s *Session) userPrompt(ctx context.Context, step int) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s\nStep: %d of %d\n", s.task, step, s.settings.MaxSteps)

	if len(s.context) > 0 {
		raw, err := protocol.Marshal(s.context)
		if err != nil {
			return "", fmt.Errorf("failed to marshal task context: %w", err)
		}
		fmt.Fprintf(&b, "Context: %s\n", raw)
	}

	if len(s.history) > 0 {
		raw, err := protocol.Marshal(s.history)
		if err != nil {
			return "", fmt.Errorf("failed to marshal history: %w", err)
		}
		fmt.Fprintf(&b, "History: %s\n", raw)
	}

	fmt.Fprintf(&b, "UI tree: %s\n", s.treeSnapshot(ctx))
	return b.String(), nil
}

// treeSnapshot renders the target app's tree for the prompt, cut to the
// configured byte budget. Failures are reported inline so the model can react.
func (s *Session) treeSnapshot(ctx context.Context) string {
	if s.tree == nil {
		return "unavailable"
	}
	root, err := s.tree.BuildTree(ctx, s.appName())
	if err != nil {
		s.logger.Debug("Tree snapshot failed", zap.Error(err))
		return "unavailable: " + err.Error()
	}
	node, stats := uitree.SerializeWithStats(root, uitree.WithMaxDepth(s.settings.MaxTreeDepth))
	if stats.Truncated > 0 || stats.Cycles > 0 {
		s.logger.Debug("Tree snapshot pruned", zap.Int("truncated", stats.Truncated), zap.Int("cycles", stats.Cycles))
	}
	raw, err := protocol.Marshal(node)
	if err != nil {
		return "unavailable: " + err.Error()
	}
	if limit := s.settings.PromptTreeMaxBytes; limit > 0 && len(raw) > limit {
		return llmutil.CutUTF8(string(raw), limit) + "...(truncated)"
	}
	return string(raw)
}

func (s *Session) appName() string {
	if name, ok := s.context["app_name"].(string); ok {
		return name
	}
	return ""
}

// -- Response parsing --

// parseDecision extracts the decision object from the model's reply.
func parseDecision(response string) (Decision, error) {
	d, err := llmutil.ParseJSONObject[Decision](response)
	if err != nil {
		return Decision{}, err
	}
	if !d.Done && len(d.Action) == 0 {
		return Decision{}, fmt.Errorf("LLM response has neither an action nor done=true")
	}
	return *d, nil
}
