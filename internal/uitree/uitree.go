// Package uitree converts a backend accessibility tree into plain nested values.
package uitree

import (
	"reflect"

	"github.com/xkilldash9x/macbridge/api/schemas"
)

// DefaultMaxDepth bounds recursion when the caller does not choose a limit.
const DefaultMaxDepth = 256

// Node is the wire form of one UI element. Every attribute is always encoded;
// absent values become null and a leaf has an empty children list.
type Node struct {
	Role        string      `json:"role"`
	Title       *string     `json:"title"`
	Value       interface{} `json:"value"`
	Description *string     `json:"description"`
	Position    []float64   `json:"position"`
	Size        []float64   `json:"size"`
	Index       *int        `json:"index"`
	Children    []*Node     `json:"children"`
}

// Stats reports what the guards cut off during one pass.
type Stats struct {
	Nodes     int // nodes emitted
	Truncated int // nodes whose children were dropped by the depth limit
	Cycles    int // nodes whose children were dropped because the node was already on the path
}

// Option tunes a serialization pass.
type Option func(*serializer)

// WithMaxDepth sets the depth limit. The root is depth 0.
func WithMaxDepth(depth int) Option {
	return func(s *serializer) {
		if depth > 0 {
			s.maxDepth = depth
		}
	}
}

type serializer struct {
	maxDepth int
	onPath   map[uintptr]struct{}
	stats    Stats
}

// Serialize returns the plain form of root, or nil when root is nil.
func Serialize(root schemas.UINode, opts ...Option) *Node {
	n, _ := SerializeWithStats(root, opts...)
	return n
}

// SerializeWithStats is Serialize plus guard statistics.
//
// Children are visited depth first in the order the node reports them. The
// tree belongs to the backend and may be cyclic, so a node that reappears on
// its own ancestor path, or that sits at the depth limit, is emitted with its
// attributes and no children.
func SerializeWithStats(root schemas.UINode, opts ...Option) (*Node, Stats) {
	s := &serializer{maxDepth: DefaultMaxDepth, onPath: make(map[uintptr]struct{})}
	for _, opt := range opts {
		opt(s)
	}
	if isNil(root) {
		return nil, s.stats
	}
	return s.walk(root, 0), s.stats
}

func (s *serializer) walk(n schemas.UINode, depth int) *Node {
	s.stats.Nodes++
	out := &Node{
		Role:        n.Role(),
		Title:       n.Title(),
		Value:       n.Value(),
		Description: n.Description(),
		Position:    n.Position(),
		Size:        n.Size(),
		Index:       n.Index(),
		Children:    []*Node{},
	}

	children := n.Children()
	if len(children) == 0 {
		return out
	}
	if depth+1 >= s.maxDepth {
		s.stats.Truncated++
		return out
	}

	key, tracked := identity(n)
	if tracked {
		if _, seen := s.onPath[key]; seen {
			s.stats.Cycles++
			return out
		}
		s.onPath[key] = struct{}{}
		defer delete(s.onPath, key)
	}

	for _, child := range children {
		if isNil(child) {
			// Kept as null so positions still line up with the backend's list.
			out.Children = append(out.Children, nil)
			continue
		}
		out.Children = append(out.Children, s.walk(child, depth+1))
	}
	return out
}

// identity returns a stable key for pointer-backed nodes. Value-typed nodes
// cannot form cycles and are not tracked.
func identity(n schemas.UINode) (uintptr, bool) {
	rv := reflect.ValueOf(n)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		return rv.Pointer(), true
	}
	return 0, false
}

func isNil(n schemas.UINode) bool {
	if n == nil {
		return true
	}
	rv := reflect.ValueOf(n)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
