// File: internal/macos/macos_test.go
package macos

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/macbridge/internal/uitree"
)

// fakeRunner returns canned output keyed by script and records every call.
type fakeRunner struct {
	outputs map[string]string
	err     error
	calls   []fakeCall
}

type fakeCall struct {
	lang   Language
	script string
	args   []string
}

func (f *fakeRunner) Run(_ context.Context, lang Language, script string, args ...string) (string, error) {
	f.calls = append(f.calls, fakeCall{lang: lang, script: script, args: args})
	if f.err != nil {
		return "", f.err
	}
	return f.outputs[script], nil
}

const sampleTree = `{
  "role": "AXApplication", "title": "Notes", "value": null, "description": null,
  "position": null, "size": null, "path": [],
  "children": [
    {"role": "AXWindow", "title": "Notes", "value": null, "description": null,
     "position": [0, 0], "size": [800, 600], "path": [0],
     "children": [
       {"role": "AXButton", "title": "New Note", "value": null, "description": "create",
        "position": [10, 10], "size": [40, 20], "path": [0, 0], "children": []},
       {"role": "AXGroup", "title": null, "value": null, "description": null,
        "position": [0, 40], "size": [800, 560], "path": [0, 1],
        "children": [
          {"role": "AXTextArea", "title": null, "value": "hello", "description": null,
           "position": [0, 40], "size": [800, 560], "path": [0, 1, 0], "children": []}
        ]},
       {"role": "AXScrollArea", "title": null, "value": null, "description": null,
        "position": [0, 40], "size": [200, 560], "path": [0, 2], "children": []}
     ]}
  ]
}`

func TestBuildTree_IndexesInteractiveElementsDepthFirst(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{walkScript: sampleTree}}
	b := NewTreeBuilder(runner, 32, zaptest.NewLogger(t))

	root, err := b.BuildTree(context.Background(), "Notes")
	require.NoError(t, err)
	require.NotNil(t, root)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, JavaScript, runner.calls[0].lang)
	assert.Equal(t, []string{"Notes", "32"}, runner.calls[0].args)

	node := uitree.Serialize(root)
	require.NotNil(t, node)
	assert.Equal(t, "AXApplication", node.Role)
	window := node.Children[0]
	assert.Nil(t, window.Index)

	button := window.Children[0]
	require.NotNil(t, button.Index)
	assert.Equal(t, 0, *button.Index)
	assert.Equal(t, "create", *button.Description)

	textArea := window.Children[1].Children[0]
	require.NotNil(t, textArea.Index)
	assert.Equal(t, 1, *textArea.Index)
	assert.Equal(t, "hello", textArea.Value)

	scroll := window.Children[2]
	require.NotNil(t, scroll.Index)
	assert.Equal(t, 2, *scroll.Index)

	ref, err := b.Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, ElementRef{App: "Notes", Path: []int{0, 1, 0}, Role: "AXTextArea"}, ref)

	_, err = b.Resolve(context.Background(), 9)
	assert.Error(t, err)
}

func TestBuildTree_MissingProcess(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{walkScript: "null"}}
	b := NewTreeBuilder(runner, 32, zaptest.NewLogger(t))

	root, err := b.BuildTree(context.Background(), "Ghost")
	require.NoError(t, err)
	assert.Nil(t, root)
}

func TestBuildTree_Errors(t *testing.T) {
	b := NewTreeBuilder(&fakeRunner{err: errors.New("not authorized")}, 32, zaptest.NewLogger(t))
	_, err := b.BuildTree(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not authorized")

	b = NewTreeBuilder(&fakeRunner{outputs: map[string]string{walkScript: "{not json"}}, 32, zaptest.NewLogger(t))
	_, err = b.BuildTree(context.Background(), "")
	assert.Error(t, err)
}

func TestResolve_BuildsFrontmostTreeWhenEmpty(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{walkScript: sampleTree}}
	b := NewTreeBuilder(runner, 8, zaptest.NewLogger(t))

	ref, err := b.Resolve(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, ref.Path)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "", runner.calls[0].args[0])
}

func TestController_TargetedActions(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		walkScript: sampleTree,
		actScript:  `{"message":"clicked AXButton"}`,
	}}
	tree := NewTreeBuilder(runner, 32, zaptest.NewLogger(t))
	c := NewController(runner, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := tree.BuildTree(ctx, "Notes")
	require.NoError(t, err)

	out, err := c.ExecuteAction(ctx, ActionClickElement, map[string]interface{}{"index": 0}, tree)
	require.NoError(t, err)
	res, ok := out.(ActionResult)
	require.True(t, ok)
	assert.Equal(t, "clicked AXButton", res.ExtractedContent)

	last := runner.calls[len(runner.calls)-1]
	require.Len(t, last.args, 1)
	assert.JSONEq(t, `{"op":"click","app":"Notes","path":[0,0]}`, last.args[0])

	_, err = c.ExecuteAction(ctx, ActionInputText, map[string]interface{}{"index": 1, "text": "hi", "submit": false}, tree)
	require.NoError(t, err)
	last = runner.calls[len(runner.calls)-1]
	assert.JSONEq(t, `{"op":"input","app":"Notes","path":[0,1,0],"text":"hi","submit":false}`, last.args[0])

	_, err = c.ExecuteAction(ctx, ActionScrollElement, map[string]interface{}{"index": 2, "direction": "up", "amount": -5}, tree)
	require.NoError(t, err)
	last = runner.calls[len(runner.calls)-1]
	assert.JSONEq(t, `{"op":"scroll","app":"Notes","path":[0,2],"direction":"up","amount":-5}`, last.args[0])
}

func TestController_TargetedActionWithoutTree(t *testing.T) {
	c := NewController(&fakeRunner{}, zaptest.NewLogger(t))
	_, err := c.ExecuteAction(context.Background(), ActionClickElement, map[string]interface{}{"index": 0}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires an element tree")
}

func TestController_UntargetedActions(t *testing.T) {
	runner := &fakeRunner{outputs: map[string]string{
		openScript:                          `{"message":"opened Safari"}`,
		`tell application "Finder" to name`: "Finder",
	}}
	c := NewController(runner, zaptest.NewLogger(t))
	ctx := context.Background()

	out, err := c.ExecuteAction(ctx, ActionOpenApp, map[string]interface{}{"app_name": "Safari"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "opened Safari", out.(ActionResult).ExtractedContent)
	assert.Equal(t, []string{"Safari"}, runner.calls[0].args)

	out, err = c.ExecuteAction(ctx, ActionRunScript, map[string]interface{}{"script": `tell application "Finder" to name`}, nil)
	require.NoError(t, err)
	assert.Equal(t, AppleScript, runner.calls[1].lang)
	assert.Equal(t, map[string]interface{}{
		"is_done":           false,
		"success":           true,
		"extracted_content": "Finder",
		"error":             nil,
		"include_in_memory": true,
	}, out.(ActionResult).Export())

	_, err = c.ExecuteAction(ctx, "teleport", nil, nil)
	assert.Error(t, err)
	_, err = c.ExecuteAction(ctx, ActionOpenApp, map[string]interface{}{}, nil)
	assert.Error(t, err)
}

func writeFakeOsascript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "osascript")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestOsascriptRunner_PassesScriptOnStdin(t *testing.T) {
	path := writeFakeOsascript(t, `cat; echo; echo "$@"`)
	r := NewOsascriptRunner(path, zaptest.NewLogger(t))

	out, err := r.Run(context.Background(), JavaScript, "run()", "Notes", "8")
	require.NoError(t, err)
	assert.Equal(t, "run()\n-l JavaScript - Notes 8", out)
}

func TestOsascriptRunner_ScriptError(t *testing.T) {
	path := writeFakeOsascript(t, `echo "execution error: nope (-1728)" >&2; exit 1`)
	r := NewOsascriptRunner(path, zaptest.NewLogger(t))

	_, err := r.Run(context.Background(), AppleScript, "bad")
	require.Error(t, err)
	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.Equal(t, "execution error: nope (-1728)", scriptErr.Error())
}

func TestOsascriptRunner_MissingBinary(t *testing.T) {
	r := NewOsascriptRunner(filepath.Join(t.TempDir(), "absent"), zaptest.NewLogger(t))
	_, err := r.Run(context.Background(), AppleScript, "x")
	assert.Error(t, err)
}
