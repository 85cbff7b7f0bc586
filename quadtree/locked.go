package quadtree

import "sync"

// Locked guards a Tree with a reader/writer lock. Writers are serialized and
// readers only observe complete insertion cycles when Rebuild is used.
type Locked[T any] struct {
	mutex sync.RWMutex
	tree  *Tree[T]
}

func NewLocked[T any](tree *Tree[T]) *Locked[T] {
	return &Locked[T]{tree: tree}
}

func (l *Locked[T]) Insert(payload T, x, y float64) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.tree.Insert(payload, x, y)
}

func (l *Locked[T]) Query(x, y float64) []T {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.tree.Query(x, y)
}

func (l *Locked[T]) Clear() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.tree.Clear()
}

func (l *Locked[T]) DebugInfo() DebugInfo {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.tree.DebugInfo()
}

func (l *Locked[T]) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return l.tree.Len()
}

// Rebuild clears the tree and runs fill under a single write lock. fill
// receives an insert function that must not be retained after it returns.
func (l *Locked[T]) Rebuild(fill func(insert func(payload T, x, y float64))) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.tree.Clear()
	fill(l.tree.Insert)
}

// View runs fn with read access to the underlying tree.
func (l *Locked[T]) View(fn func(t *Tree[T])) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	fn(l.tree)
}
