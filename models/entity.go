package models

import (
	"sort"
	"sync"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Entity is an object placed in a world.
type Entity struct {
	ID uint32

	mutex    sync.RWMutex
	kind     string
	position Position
}

func NewEntity(id uint32, kind string, p Position) *Entity {
	return &Entity{
		ID:       id,
		kind:     kind,
		position: p,
	}
}

func (e *Entity) SetKind(v string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.kind = v
}

func (e *Entity) Kind() string {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.kind
}

func (e *Entity) SetPosition(v Position) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.position = v
}

func (e *Entity) Position() Position {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return e.position
}

// EntityView is the serializable snapshot of an entity.
type EntityView struct {
	ID   uint32  `json:"id"`
	Kind string  `json:"kind,omitempty"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func (e *Entity) View() EntityView {
	e.mutex.RLock()
	defer e.mutex.RUnlock()

	return EntityView{
		ID:   e.ID,
		Kind: e.kind,
		X:    e.position.X,
		Y:    e.position.Y,
	}
}

func EntitiesToViews(entities []*Entity) []EntityView {
	views := make([]EntityView, len(entities))
	for i, e := range entities {
		views[i] = e.View()
	}
	return views
}

func sortEntities(entities []*Entity) {
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].ID < entities[j].ID
	})
}
