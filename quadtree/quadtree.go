package quadtree

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// Quadrant identifies one of the four children of a split node.
type Quadrant int

const (
	NW Quadrant = iota
	NE
	SW
	SE
)

func (q Quadrant) String() string {
	switch q {
	case NW:
		return "nw"
	case NE:
		return "ne"
	case SW:
		return "sw"
	case SE:
		return "se"
	default:
		return "unknown"
	}
}

// NodeID addresses a node in the tree arena.
type NodeID int32

const (
	// Root is the id of the node the tree was constructed with.
	Root NodeID = 0

	// NoNode marks the absence of children.
	NoNode NodeID = -1
)

type entry[T any] struct {
	payload T
	x       float64
	y       float64
}

type node[T any] struct {
	bounds     Rect
	level      int
	firstChild NodeID // children are stored contiguously in NW, NE, SW, SE order
	entries    []entry[T]
}

// Tree is a point quad-tree holding payloads of type T.
//
// Nodes live in a flat arena. A node splits into four quadrants once it
// holds more than maxObjects entries and its level is below maxLevel.
// Children are never removed; Clear only drops entries so the same topology
// can be repopulated on the next cycle.
//
// A Tree is not safe for concurrent use. Wrap it with NewLocked when readers
// and writers run on different goroutines.
type Tree[T any] struct {
	maxLevel   int
	maxObjects int
	options    options
	nodes      []node[T]
}

// New creates a tree whose root covers bounds at level 0.
func New[T any](bounds Rect, maxLevel, maxObjects int, opts ...Option) (*Tree[T], error) {
	return NewNode[T](bounds, 0, maxLevel, maxObjects, opts...)
}

// NewNode creates a tree whose root covers bounds at the given level. The
// root splits only while its level, and later its children's levels, stay
// below maxLevel.
func NewNode[T any](bounds Rect, level, maxLevel, maxObjects int, opts ...Option) (*Tree[T], error) {
	if err := bounds.Validate(); err != nil {
		return nil, errors.New("invalid quadtree bounds").
			WithType(ErrTypeInvalidConfig).
			WithTag("bounds", bounds).
			Wrap(err)
	}

	if maxLevel < 0 {
		return nil, errors.New("max level must not be negative").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_level", maxLevel)
	}

	if level < 0 || level > maxLevel {
		return nil, errors.New("level must be between zero and max level").
			WithType(ErrTypeInvalidConfig).
			WithTag("level", level).
			WithTag("max_level", maxLevel)
	}

	if maxObjects <= 0 {
		return nil, errors.New("max objects must be positive").
			WithType(ErrTypeInvalidConfig).
			WithTag("max_objects", maxObjects)
	}

	t := &Tree[T]{
		maxLevel:   maxLevel,
		maxObjects: maxObjects,
		nodes: []node[T]{{
			bounds:     bounds,
			level:      level,
			firstChild: NoNode,
		}},
	}

	for _, opt := range opts {
		opt(&t.options)
	}

	return t, nil
}

// MaxLevel returns the deepest level a node can reach. Nodes at that level
// never split.
func (t *Tree[T]) MaxLevel() int {
	return t.maxLevel
}

// MaxObjects returns the number of entries a node holds before it splits.
func (t *Tree[T]) MaxObjects() int {
	return t.maxObjects
}

// Insert adds payload located at (x, y).
//
// By default the payload is stored only at the node where the descent stops
// and a split routes each stored entry by its own point. See
// WithPathEntries and WithTriggerPointRedistribution for the alternatives.
func (t *Tree[T]) Insert(payload T, x, y float64) {
	t.insertFrom(Root, entry[T]{payload: payload, x: x, y: y}, x, y)
}

func (t *Tree[T]) insertFrom(id NodeID, e entry[T], x, y float64) {
	if t.options.pathEntries {
		t.insertAlongPath(id, e, x, y)
		return
	}

	for t.nodes[id].firstChild != NoNode {
		child, ok := t.childContaining(id, x, y)
		if !ok {
			break
		}
		id = child
	}

	t.store(id, e, x, y)
}

func (t *Tree[T]) insertAlongPath(id NodeID, e entry[T], x, y float64) {
	if t.nodes[id].firstChild != NoNode {
		if child, ok := t.childContaining(id, x, y); ok {
			t.insertAlongPath(child, e, x, y)
		}
	}

	t.store(id, e, x, y)
}

func (t *Tree[T]) store(id NodeID, e entry[T], x, y float64) {
	n := &t.nodes[id]
	n.entries = append(n.entries, e)

	if len(n.entries) <= t.maxObjects || n.level >= t.maxLevel {
		return
	}

	if n.firstChild == NoNode {
		t.split(id)
	}
	t.redistribute(id, x, y)
}

func (t *Tree[T]) split(id NodeID) {
	first := NodeID(len(t.nodes))
	level := t.nodes[id].level + 1

	for _, quadrant := range t.nodes[id].bounds.Quadrants() {
		t.nodes = append(t.nodes, node[T]{
			bounds:     quadrant,
			level:      level,
			firstChild: NoNode,
		})
	}

	t.nodes[id].firstChild = first
}

// redistribute moves every entry of a split node into the child containing
// its routing point. x and y are the point of the triggering insertion.
func (t *Tree[T]) redistribute(id NodeID, x, y float64) {
	moving := t.nodes[id].entries
	t.nodes[id].entries = nil

	for _, e := range moving {
		routeX, routeY := e.x, e.y
		if t.options.triggerPointRedistribution {
			routeX, routeY = x, y
		}

		child, ok := t.childContaining(id, routeX, routeY)
		if !ok {
			if !t.options.triggerPointRedistribution {
				t.nodes[id].entries = append(t.nodes[id].entries, e)
			}
			continue
		}

		t.insertFrom(child, e, routeX, routeY)
	}
}

// childContaining returns the first child, in NW, NE, SW, SE order, whose
// bounds contain the point. Points on a shared edge resolve to the earlier
// quadrant.
func (t *Tree[T]) childContaining(id NodeID, x, y float64) (NodeID, bool) {
	first := t.nodes[id].firstChild
	if first == NoNode {
		return NoNode, false
	}

	for q := NW; q <= SE; q++ {
		child := first + NodeID(q)
		if t.nodes[child].bounds.Contains(x, y) {
			return child, true
		}
	}
	return NoNode, false
}

// Query returns the payloads stored in the terminal node for (x, y), in
// insertion order. A node is terminal when it is a leaf or sits at the
// maximum level. Inner nodes never contribute their own entries. Points
// outside the root bounds, or on an outer edge of an inner node, yield an
// empty result.
func (t *Tree[T]) Query(x, y float64) []T {
	if !t.nodes[Root].bounds.Contains(x, y) {
		return nil
	}

	id := Root
	for {
		n := &t.nodes[id]
		if n.level >= t.maxLevel || n.firstChild == NoNode {
			return payloads(n.entries)
		}

		q, ok := n.bounds.route(x, y)
		if !ok {
			return nil
		}
		id = n.firstChild + NodeID(q)
	}
}

// Clear drops every stored entry and keeps the node topology.
func (t *Tree[T]) Clear() {
	t.clearSubtree(Root)
}

// clearSubtree drops the entries of id and all of its descendants.
func (t *Tree[T]) clearSubtree(id NodeID) {
	if !t.valid(id) {
		return
	}

	t.walk(id, func(id NodeID) bool {
		n := &t.nodes[id]
		clear(n.entries)
		n.entries = n.entries[:0]
		return true
	})
}

// Walk visits every node depth-first, children in NW, NE, SW, SE order.
// Returning false from fn skips the node's descendants.
func (t *Tree[T]) Walk(fn func(id NodeID) bool) {
	t.walk(Root, fn)
}

func (t *Tree[T]) walk(from NodeID, fn func(id NodeID) bool) {
	stack := []NodeID{from}
	for len(stack) != 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if !fn(id) {
			continue
		}

		if first := t.nodes[id].firstChild; first != NoNode {
			for q := SE; q >= NW; q-- {
				stack = append(stack, first+NodeID(q))
			}
		}
	}
}

func (t *Tree[T]) valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

// Bounds returns the rectangle covered by a node.
func (t *Tree[T]) Bounds(id NodeID) Rect {
	return t.nodes[id].bounds
}

// Level returns the depth of a node.
func (t *Tree[T]) Level(id NodeID) int {
	return t.nodes[id].level
}

// IsLeaf reports whether a node has no children.
func (t *Tree[T]) IsLeaf(id NodeID) bool {
	return t.nodes[id].firstChild == NoNode
}

// Children returns the ids of a node's children in NW, NE, SW, SE order. ok
// is false for leaves.
func (t *Tree[T]) Children(id NodeID) (children [4]NodeID, ok bool) {
	first := t.nodes[id].firstChild
	if first == NoNode {
		return [4]NodeID{NoNode, NoNode, NoNode, NoNode}, false
	}

	for q := NW; q <= SE; q++ {
		children[q] = first + NodeID(q)
	}
	return children, true
}

// Entries returns a copy of the payloads stored at a node.
func (t *Tree[T]) Entries(id NodeID) []T {
	return payloads(t.nodes[id].entries)
}

// Len returns the number of entries stored across all nodes.
func (t *Tree[T]) Len() int {
	var count int
	for i := range t.nodes {
		count += len(t.nodes[i].entries)
	}
	return count
}

// NodeCount returns the number of nodes, the root included.
func (t *Tree[T]) NodeCount() int {
	return len(t.nodes)
}

func payloads[T any](entries []entry[T]) []T {
	if len(entries) == 0 {
		return nil
	}

	res := make([]T, len(entries))
	for i, e := range entries {
		res[i] = e.payload
	}
	return res
}
