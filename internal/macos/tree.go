// File: internal/macos/tree.go
package macos

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/macbridge/api/schemas"
)

//go:embed scripts/walk.js
var walkScript string

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// interactiveRoles are the roles that receive an element index.
var interactiveRoles = map[string]bool{
	"AXButton":             true,
	"AXCheckBox":           true,
	"AXRadioButton":        true,
	"AXPopUpButton":        true,
	"AXMenuButton":         true,
	"AXMenuItem":           true,
	"AXMenuBarItem":        true,
	"AXComboBox":           true,
	"AXTextField":          true,
	"AXTextArea":           true,
	"AXSearchField":        true,
	"AXSlider":             true,
	"AXIncrementor":        true,
	"AXDisclosureTriangle": true,
	"AXLink":               true,
	"AXTab":                true,
	"AXCell":               true,
	"AXRow":                true,
	"AXScrollArea":         true,
}

// Element is one node of a System Events accessibility tree.
type Element struct {
	role        string
	title       *string
	value       interface{}
	description *string
	position    []float64
	size        []float64
	index       *int
	path        []int
	children    []*Element
}

func (e *Element) Role() string         { return e.role }
func (e *Element) Title() *string       { return e.title }
func (e *Element) Value() interface{}   { return e.value }
func (e *Element) Description() *string { return e.description }
func (e *Element) Position() []float64  { return e.position }
func (e *Element) Size() []float64      { return e.size }
func (e *Element) Index() *int          { return e.index }

// Path is the child-index route from the process to this element.
func (e *Element) Path() []int { return e.path }

func (e *Element) Children() []schemas.UINode {
	out := make([]schemas.UINode, len(e.children))
	for i, c := range e.children {
		out[i] = c
	}
	return out
}

// rawElement is the walker's output shape.
type rawElement struct {
	Role        string        `json:"role"`
	Title       *string       `json:"title"`
	Value       interface{}   `json:"value"`
	Description *string       `json:"description"`
	Position    []float64     `json:"position"`
	Size        []float64     `json:"size"`
	Path        []int         `json:"path"`
	Children    []*rawElement `json:"children"`
}

// ElementRef addresses an element for an action script.
type ElementRef struct {
	App  string
	Path []int
	Role string
}

// TreeBuilder walks applications through System Events and remembers the
// last tree so element indexes can be resolved by later actions.
type TreeBuilder struct {
	runner   Runner
	logger   *zap.Logger
	maxDepth int

	mu      sync.Mutex
	lastApp string
	byIndex map[int]*Element
}

// NewTreeBuilder creates a tree builder. maxDepth bounds the walker itself.
func NewTreeBuilder(runner Runner, maxDepth int, logger *zap.Logger) *TreeBuilder {
	return &TreeBuilder{
		runner:   runner,
		maxDepth: maxDepth,
		logger:   logger.Named("tree_builder"),
		byIndex:  make(map[int]*Element),
	}
}

// BuildTree returns the tree for appName, or for the frontmost application
// when appName is empty. A process that does not exist yields a nil node.
func (b *TreeBuilder) BuildTree(ctx context.Context, appName string) (schemas.UINode, error) {
	out, err := b.runner.Run(ctx, JavaScript, walkScript, appName, strconv.Itoa(b.maxDepth))
	if err != nil {
		return nil, fmt.Errorf("failed to read accessibility tree: %w", err)
	}

	root, byIndex, err := decodeTree([]byte(out))
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if root == nil {
		b.lastApp = ""
		b.byIndex = make(map[int]*Element)
		return nil, nil
	}
	b.lastApp = appName
	if root.title != nil {
		b.lastApp = *root.title
	}
	b.byIndex = byIndex

	b.logger.Debug("Built accessibility tree",
		zap.String("app", b.lastApp),
		zap.Int("interactive_elements", len(byIndex)))
	return root, nil
}

// Resolve maps an element index from the last built tree to an action target.
// When no tree has been built yet the frontmost application is walked first.
func (b *TreeBuilder) Resolve(ctx context.Context, index int) (ElementRef, error) {
	b.mu.Lock()
	empty := len(b.byIndex) == 0
	b.mu.Unlock()

	if empty {
		if _, err := b.BuildTree(ctx, ""); err != nil {
			return ElementRef{}, err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	el, ok := b.byIndex[index]
	if !ok {
		return ElementRef{}, fmt.Errorf("element index %d not found in the current UI tree", index)
	}
	return ElementRef{App: b.lastApp, Path: el.path, Role: el.role}, nil
}

// decodeTree converts walker output into Elements, numbering interactive
// elements in depth-first order.
func decodeTree(data []byte) (*Element, map[int]*Element, error) {
	var raw *rawElement
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("failed to decode accessibility tree: %w", err)
	}
	byIndex := make(map[int]*Element)
	if raw == nil {
		return nil, byIndex, nil
	}
	next := 0
	var convert func(r *rawElement) *Element
	convert = func(r *rawElement) *Element {
		if r == nil {
			return nil
		}
		el := &Element{
			role:        r.Role,
			title:       r.Title,
			value:       r.Value,
			description: r.Description,
			position:    r.Position,
			size:        r.Size,
			path:        r.Path,
			children:    make([]*Element, 0, len(r.Children)),
		}
		if interactiveRoles[r.Role] {
			idx := next
			next++
			el.index = &idx
			byIndex[idx] = el
		}
		for _, c := range r.Children {
			if child := convert(c); child != nil {
				el.children = append(el.children, child)
			}
		}
		return el
	}
	return convert(raw), byIndex, nil
}
