package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/quadrant/featureflag"
	"github.com/aukilabs/quadrant/models"
	"github.com/aukilabs/quadrant/quadtree"
)

// WorldAPI serves the JSON API used to manage worlds, their entities and
// point queries.
type WorldAPI struct {
	Worlds        *models.WorldStore
	FrameDuration time.Duration

	// The index depth and capacity used when a create request omits them.
	DefaultMaxLevel   int
	DefaultMaxObjects int

	FeatureFlags featureflag.FeatureFlag
}

// Register adds the API routes to mux.
func (a *WorldAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /worlds", a.handleCreateWorld)
	mux.HandleFunc("GET /worlds", a.handleListWorlds)
	mux.HandleFunc("GET /worlds/{id}", a.handleGetWorld)
	mux.HandleFunc("DELETE /worlds/{id}", a.handleDeleteWorld)
	mux.HandleFunc("PUT /worlds/{id}/entities/{eid}", a.handleUpsertEntity)
	mux.HandleFunc("DELETE /worlds/{id}/entities/{eid}", a.handleDeleteEntity)
	mux.HandleFunc("POST /worlds/{id}/rebuild", a.handleRebuild)
	mux.HandleFunc("GET /worlds/{id}/query", a.handleQuery)
	mux.HandleFunc("GET /worlds/{id}/index", a.handleIndex)
}

type createWorldRequest struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	MaxLevel   *int    `json:"max_level"`
	MaxObjects *int    `json:"max_objects"`

	LegacyPathEntries         *bool `json:"legacy_path_entries"`
	LegacySplitRedistribution *bool `json:"legacy_split_redistribution"`
	DisableFrameRebuild       *bool `json:"disable_frame_rebuild"`
}

// worldConfig fills the fields a request omits from the API defaults and
// feature flags.
func (a *WorldAPI) worldConfig(req createWorldRequest) models.WorldConfig {
	config := models.WorldConfig{
		Bounds: quadtree.Rect{
			X:      req.X,
			Y:      req.Y,
			Width:  req.Width,
			Height: req.Height,
		},
		MaxLevel:                  a.DefaultMaxLevel,
		MaxObjects:                a.DefaultMaxObjects,
		LegacyPathEntries:         a.FeatureFlags.IsSet(featureflag.FlagLegacyPathEntries),
		LegacySplitRedistribution: a.FeatureFlags.IsSet(featureflag.FlagLegacySplitRedistribution),
		DisableFrameRebuild:       a.FeatureFlags.IsSet(featureflag.FlagDisableFrameRebuild),
	}

	if req.MaxLevel != nil {
		config.MaxLevel = *req.MaxLevel
	}
	if req.MaxObjects != nil {
		config.MaxObjects = *req.MaxObjects
	}
	if req.LegacyPathEntries != nil {
		config.LegacyPathEntries = *req.LegacyPathEntries
	}
	if req.LegacySplitRedistribution != nil {
		config.LegacySplitRedistribution = *req.LegacySplitRedistribution
	}
	if req.DisableFrameRebuild != nil {
		config.DisableFrameRebuild = *req.DisableFrameRebuild
	}
	return config
}

type worldResponse struct {
	ID                        uint32             `json:"id"`
	UUID                      string             `json:"uuid"`
	Bounds                    quadtree.Rect      `json:"bounds"`
	MaxLevel                  int                `json:"max_level"`
	MaxObjects                int                `json:"max_objects"`
	LegacyPathEntries         bool               `json:"legacy_path_entries"`
	LegacySplitRedistribution bool               `json:"legacy_split_redistribution"`
	DisableFrameRebuild       bool               `json:"disable_frame_rebuild"`
	EntityCount               int                `json:"entity_count"`
	FrameCount                uint64             `json:"frame_count"`
	Index                     quadtree.DebugInfo `json:"index"`
}

func newWorldResponse(w *models.World) worldResponse {
	return worldResponse{
		ID:                        w.ID,
		UUID:                      w.UUID,
		Bounds:                    w.Config.Bounds,
		MaxLevel:                  w.Config.MaxLevel,
		MaxObjects:                w.Config.MaxObjects,
		LegacyPathEntries:         w.Config.LegacyPathEntries,
		LegacySplitRedistribution: w.Config.LegacySplitRedistribution,
		DisableFrameRebuild:       w.Config.DisableFrameRebuild,
		EntityCount:               w.EntityCount(),
		FrameCount:                w.FrameCount(),
		Index:                     w.IndexDebugInfo(),
	}
}

func (a *WorldAPI) handleCreateWorld(w http.ResponseWriter, r *http.Request) {
	var req createWorldRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	world, err := a.Worlds.Create(a.worldConfig(req), a.FrameDuration)
	if err != nil {
		writeError(w, err)
		return
	}

	logs.WithTag("world_id", world.ID).
		WithTag("world_uuid", world.UUID).
		WithTag("bounds", world.Config.Bounds).
		Info("world created")

	writeJSON(w, http.StatusCreated, newWorldResponse(world))
}

func (a *WorldAPI) handleListWorlds(w http.ResponseWriter, r *http.Request) {
	worlds := a.Worlds.List()

	res := make([]worldResponse, len(worlds))
	for i, world := range worlds {
		res[i] = newWorldResponse(world)
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *WorldAPI) handleGetWorld(w http.ResponseWriter, r *http.Request) {
	world, err := a.world(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newWorldResponse(world))
}

func (a *WorldAPI) handleDeleteWorld(w http.ResponseWriter, r *http.Request) {
	world, err := a.world(r)
	if err != nil {
		writeError(w, err)
		return
	}

	a.Worlds.Remove(world)
	logs.WithTag("world_id", world.ID).Info("world removed")
	w.WriteHeader(http.StatusNoContent)
}

type upsertEntityRequest struct {
	Kind string  `json:"kind"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

func (a *WorldAPI) handleUpsertEntity(w http.ResponseWriter, r *http.Request) {
	world, err := a.world(r)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := pathID(r, "eid")
	if err != nil {
		writeError(w, err)
		return
	}

	var req upsertEntityRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	e, created, err := world.UpsertEntity(id, req.Kind, models.Position{X: req.X, Y: req.Y})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, e.View())
}

func (a *WorldAPI) handleDeleteEntity(w http.ResponseWriter, r *http.Request) {
	world, err := a.world(r)
	if err != nil {
		writeError(w, err)
		return
	}

	id, err := pathID(r, "eid")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := world.RemoveEntity(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *WorldAPI) handleRebuild(w http.ResponseWriter, r *http.Request) {
	world, err := a.world(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, world.RebuildIndex())
}

func (a *WorldAPI) handleIndex(w http.ResponseWriter, r *http.Request) {
	world, err := a.world(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, world.IndexNodes())
}

type queryResponse struct {
	X        float64             `json:"x"`
	Y        float64             `json:"y"`
	Frame    uint64              `json:"frame"`
	Entities []models.EntityView `json:"entities"`
}

func (a *WorldAPI) handleQuery(w http.ResponseWriter, r *http.Request) {
	world, err := a.world(r)
	if err != nil {
		writeError(w, err)
		return
	}

	x, err := queryFloat(r, "x")
	if err != nil {
		writeError(w, err)
		return
	}

	y, err := queryFloat(r, "y")
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		X:        x,
		Y:        y,
		Frame:    world.FrameCount(),
		Entities: models.EntitiesToViews(world.Nearby(x, y)),
	})
}

func (a *WorldAPI) world(r *http.Request) (*models.World, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	return a.Worlds.Get(id)
}

func pathID(r *http.Request, name string) (uint32, error) {
	v := r.PathValue(name)

	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errors.New("invalid path id").
			WithType(ErrTypeBadRequest).
			WithTag(name, v).
			Wrap(err)
	}
	return uint32(id), nil
}

func queryFloat(r *http.Request, name string) (float64, error) {
	v := r.URL.Query().Get(name)

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.New("invalid query coordinate").
			WithType(ErrTypeBadRequest).
			WithTag(name, v).
			Wrap(err)
	}
	return f, nil
}
