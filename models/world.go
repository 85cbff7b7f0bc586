package models

import (
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/quadrant/quadtree"
	"github.com/google/uuid"
)

// WorldConfig describes the extent of a world and how its index subdivides.
type WorldConfig struct {
	Bounds     quadtree.Rect
	MaxLevel   int
	MaxObjects int

	// Record entries at every node visited during insertion.
	LegacyPathEntries bool

	// Route split redistribution by the triggering insertion point.
	LegacySplitRedistribution bool

	// Skip the index rebuild on each frame. The index is then only rebuilt
	// on RebuildIndex calls.
	DisableFrameRebuild bool
}

func (c WorldConfig) indexOptions() []quadtree.Option {
	var opts []quadtree.Option
	if c.LegacyPathEntries {
		opts = append(opts, quadtree.WithPathEntries())
	}
	if c.LegacySplitRedistribution {
		opts = append(opts, quadtree.WithTriggerPointRedistribution())
	}
	return opts
}

// World is a rectangle populated by entities. Its spatial index is cleared
// and repopulated from the entities' current positions once per frame.
type World struct {
	ID     uint32
	UUID   string
	Config WorldConfig

	entityMutex sync.RWMutex
	entities    map[uint32]*Entity

	index      *quadtree.Locked[*Entity]
	frameCount atomic.Uint64

	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameHandlerIDs SequentialIDGenerator
	frameHandlers   map[uint32]func()
	frameMutex      sync.RWMutex

	closeOnce    sync.Once
	metricsMutex sync.Mutex
	closed       bool
}

func NewWorld(id uint32, config WorldConfig, frameDuration time.Duration) (*World, error) {
	tree, err := quadtree.New[*Entity](
		config.Bounds,
		config.MaxLevel,
		config.MaxObjects,
		config.indexOptions()...,
	)
	if err != nil {
		return nil, errors.New("creating world index failed").
			WithType(quadtree.ErrTypeInvalidConfig).
			WithTag("world_id", id).
			Wrap(err)
	}

	if frameDuration <= 0 {
		return nil, errors.New("frame duration must be positive").
			WithType(quadtree.ErrTypeInvalidConfig).
			WithTag("frame_duration", frameDuration)
	}

	return &World{
		ID:             id,
		UUID:           uuid.New().String(),
		Config:         config,
		entities:       make(map[uint32]*Entity),
		index:          quadtree.NewLocked(tree),
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    time.NewTicker(frameDuration),
		frameHandlers:  make(map[uint32]func()),
	}, nil
}

func (w *World) Close() {
	w.closeOnce.Do(func() {
		w.frameTicker.Stop()
		w.closeFrameChan <- struct{}{}

		w.metricsMutex.Lock()
		w.closed = true
		deleteIndexMetrics(w.label())
		w.metricsMutex.Unlock()
	})
}

func (w *World) Bounds() quadtree.Rect {
	return w.Config.Bounds
}

// UpsertEntity places the entity with the given id at p, creating it when it
// does not exist yet. The index picks the change up on the next rebuild.
func (w *World) UpsertEntity(id uint32, kind string, p Position) (e *Entity, created bool, err error) {
	if !w.Config.Bounds.Contains(p.X, p.Y) {
		return nil, false, errors.New("entity position is outside the world").
			WithType(ErrTypeOutOfBounds).
			WithTag("world_id", w.ID).
			WithTag("entity_id", id).
			WithTag("position", p)
	}

	w.entityMutex.Lock()
	defer w.entityMutex.Unlock()

	if e, ok := w.entities[id]; ok {
		e.SetPosition(p)
		if kind != "" {
			e.SetKind(kind)
		}
		return e, false, nil
	}

	e = NewEntity(id, kind, p)
	w.entities[id] = e
	return e, true, nil
}

func (w *World) RemoveEntity(id uint32) error {
	w.entityMutex.Lock()
	defer w.entityMutex.Unlock()

	if _, ok := w.entities[id]; !ok {
		return errors.New("entity not found").
			WithType(ErrTypeEntityNotFound).
			WithTag("world_id", w.ID).
			WithTag("entity_id", id)
	}

	delete(w.entities, id)
	return nil
}

func (w *World) EntityByID(id uint32) (*Entity, bool) {
	w.entityMutex.RLock()
	defer w.entityMutex.RUnlock()

	e, ok := w.entities[id]
	return e, ok
}

// Entities returns the world entities sorted by id.
func (w *World) Entities() []*Entity {
	w.entityMutex.RLock()
	entities := make([]*Entity, 0, len(w.entities))
	for _, e := range w.entities {
		entities = append(entities, e)
	}
	w.entityMutex.RUnlock()

	sortEntities(entities)
	return entities
}

func (w *World) EntityCount() int {
	w.entityMutex.RLock()
	defer w.entityMutex.RUnlock()

	return len(w.entities)
}

// RebuildIndex clears the index and inserts every entity at its current
// position, in id order. Queries running concurrently see either the
// previous or the new population, never a partial one.
func (w *World) RebuildIndex() quadtree.DebugInfo {
	start := time.Now()
	entities := w.Entities()

	w.index.Rebuild(func(insert func(*Entity, float64, float64)) {
		for _, e := range entities {
			p := e.Position()
			insert(e, p.X, p.Y)
		}
	})

	info := w.index.DebugInfo()
	w.instrumentIndexRebuild(start, info)
	return info
}

// Rebuilds finishing after Close must not recreate the deleted series.
func (w *World) instrumentIndexRebuild(start time.Time, info quadtree.DebugInfo) {
	w.metricsMutex.Lock()
	defer w.metricsMutex.Unlock()

	if !w.closed {
		instrumentIndexRebuild(w.label(), start, info)
	}
}

// Nearby returns the entities sharing the index cell of (x, y) as of the
// last rebuild.
func (w *World) Nearby(x, y float64) []*Entity {
	return w.index.Query(x, y)
}

// IndexNode describes a node of a world index as of the last rebuild.
type IndexNode struct {
	Bounds    quadtree.Rect `json:"bounds"`
	Level     int           `json:"level"`
	Leaf      bool          `json:"leaf"`
	EntityIDs []uint32      `json:"entity_ids"`
}

// IndexNodes returns the nodes of the world index depth-first, children in
// NW, NE, SW, SE order.
func (w *World) IndexNodes() []IndexNode {
	var nodes []IndexNode

	w.index.View(func(t *quadtree.Tree[*Entity]) {
		nodes = make([]IndexNode, 0, t.NodeCount())

		t.Walk(func(id quadtree.NodeID) bool {
			entries := t.Entries(id)
			ids := make([]uint32, len(entries))
			for i, e := range entries {
				ids[i] = e.ID
			}

			nodes = append(nodes, IndexNode{
				Bounds:    t.Bounds(id),
				Level:     t.Level(id),
				Leaf:      t.IsLeaf(id),
				EntityIDs: ids,
			})
			return true
		})
	})

	return nodes
}

func (w *World) IndexDebugInfo() quadtree.DebugInfo {
	return w.index.DebugInfo()
}

func (w *World) FrameCount() uint64 {
	return w.frameCount.Load()
}

// HandleFrame registers a function called after each frame's index rebuild.
func (w *World) HandleFrame(h func()) (cancel func()) {
	w.frameMutex.Lock()
	defer w.frameMutex.Unlock()

	id := w.frameHandlerIDs.New()
	w.frameHandlers[id] = h

	return func() {
		w.frameMutex.Lock()
		defer w.frameMutex.Unlock()

		delete(w.frameHandlers, id)
		w.frameHandlerIDs.Reuse(id)
	}
}

// StartDispatchFrames runs the frame loop until the world is closed. Calls
// after the first one return immediately.
func (w *World) StartDispatchFrames() {
	w.startFrameOnce.Do(func() {
		for {
			select {
			case <-w.closeFrameChan:
				return

			case <-w.frameTicker.C:
				w.dispatchFrame()
			}
		}
	})
}

func (w *World) dispatchFrame() {
	if !w.Config.DisableFrameRebuild {
		w.RebuildIndex()
	}
	w.frameCount.Add(1)

	w.frameMutex.RLock()
	defer w.frameMutex.RUnlock()

	for _, h := range w.frameHandlers {
		h()
	}
}

func sortWorlds(worlds []*World) {
	sort.Slice(worlds, func(i, j int) bool {
		return worlds[i].ID < worlds[j].ID
	})
}

func (w *World) label() string {
	return strconv.FormatUint(uint64(w.ID), 10)
}

// WorldStore holds the worlds hosted by the server.
type WorldStore struct {
	initOnce sync.Once
	mutex    sync.RWMutex
	worlds   map[uint32]*World
	ids      SequentialIDGenerator
}

func (s *WorldStore) init() {
	s.worlds = map[uint32]*World{}
}

func (s *WorldStore) NewID() uint32 {
	return s.ids.New()
}

// Create builds a world with a fresh id, adds it to the store and starts its
// frame loop.
func (s *WorldStore) Create(config WorldConfig, frameDuration time.Duration) (*World, error) {
	id := s.NewID()

	w, err := NewWorld(id, config, frameDuration)
	if err != nil {
		s.ids.Reuse(id)
		return nil, err
	}

	s.Add(w)
	go w.StartDispatchFrames()
	return w, nil
}

func (s *WorldStore) Add(w *World) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.worlds[w.ID] = w

	instrumentIncreaseWorldGauge()
	instrumentCountWorld()
}

// Remove closes the world and releases its id.
func (s *WorldStore) Remove(w *World) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.worlds[w.ID]; !ok {
		return
	}

	delete(s.worlds, w.ID)
	w.Close()
	s.ids.Reuse(w.ID)

	instrumentDecreaseWorldGauge()
}

func (s *WorldStore) Get(id uint32) (*World, error) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	w, ok := s.worlds[id]
	if !ok {
		return nil, errors.New("world not found").
			WithType(ErrTypeWorldNotFound).
			WithTag("world_id", id)
	}
	return w, nil
}

// List returns the worlds sorted by id.
func (s *WorldStore) List() []*World {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	worlds := make([]*World, 0, len(s.worlds))
	for _, w := range s.worlds {
		worlds = append(worlds, w)
	}
	s.mutex.RUnlock()

	sortWorlds(worlds)
	return worlds
}

// Close removes and closes every world.
func (s *WorldStore) Close() {
	for _, w := range s.List() {
		s.Remove(w)
	}
}
