// File: internal/agent/mocks_test.go
package agent

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/macbridge/api/schemas"
	"github.com/xkilldash9x/macbridge/internal/router"
)

// MockLLMClient mocks schemas.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockLLMClient) Close() error { return nil }

// MockRunner mocks ActionRunner.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Execute(ctx context.Context, req router.Request) (interface{}, error) {
	args := m.Called(ctx, req)
	return args.Get(0), args.Error(1)
}

func (m *MockRunner) Actions() []string {
	return []string{"apple_script", "click", "open_app", "scroll", "type"}
}

// recordingNotifier collects progress notices.
type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Log(msg string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// staticTree returns the same root on every build.
type staticTree struct {
	root schemas.UINode
	err  error
	apps []string
}

func (s *staticTree) BuildTree(_ context.Context, appName string) (schemas.UINode, error) {
	s.apps = append(s.apps, appName)
	return s.root, s.err
}

// leaf is a minimal UINode.
type leaf struct {
	role  string
	title string
}

func (l *leaf) Role() string               { return l.role }
func (l *leaf) Title() *string             { return &l.title }
func (l *leaf) Value() interface{}         { return nil }
func (l *leaf) Description() *string       { return nil }
func (l *leaf) Position() []float64        { return []float64{0, 0} }
func (l *leaf) Size() []float64            { return []float64{10, 10} }
func (l *leaf) Index() *int                { i := 0; return &i }
func (l *leaf) Children() []schemas.UINode { return nil }
