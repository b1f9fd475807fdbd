// File: internal/macos/runner.go
package macos

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapio"
)

// Language selects the osascript interpreter.
type Language string

const (
	AppleScript Language = "AppleScript"
	JavaScript  Language = "JavaScript"
)

// Runner executes OSA scripts. Extra args are handed to the script's run handler.
type Runner interface {
	Run(ctx context.Context, lang Language, script string, args ...string) (string, error)
}

// ScriptError is a failed osascript invocation with its error output.
type ScriptError struct {
	Stderr string
	Err    error
}

func (e *ScriptError) Error() string {
	if e.Stderr != "" {
		return e.Stderr
	}
	return e.Err.Error()
}

func (e *ScriptError) Unwrap() error { return e.Err }

// OsascriptRunner runs scripts through the osascript binary. The script is
// passed on stdin so it never needs shell quoting.
type OsascriptRunner struct {
	path   string
	logger *zap.Logger
}

// NewOsascriptRunner creates a runner for the binary at path.
func NewOsascriptRunner(path string, logger *zap.Logger) *OsascriptRunner {
	return &OsascriptRunner{path: path, logger: logger.Named("osascript")}
}

// Run executes script and returns its trimmed stdout.
func (r *OsascriptRunner) Run(ctx context.Context, lang Language, script string, args ...string) (string, error) {
	argv := append([]string{"-l", string(lang), "-"}, args...)
	cmd := exec.CommandContext(ctx, r.path, argv...)
	cmd.Stdin = strings.NewReader(script)

	var stdout, stderr bytes.Buffer
	diag := &zapio.Writer{Log: r.logger, Level: zap.DebugLevel}
	defer diag.Close()
	cmd.Stdout = &stdout
	cmd.Stderr = io.MultiWriter(&stderr, diag)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("osascript interrupted: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", &ScriptError{Stderr: strings.TrimSpace(stderr.String()), Err: err}
		}
		return "", fmt.Errorf("failed to run %s: %w", r.path, err)
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}
