package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEntityPosition(t *testing.T) {
	e := NewEntity(1, "player", Position{X: 1, Y: 2})
	require.Equal(t, Position{X: 1, Y: 2}, e.Position())

	e.SetPosition(Position{X: 3, Y: 4})
	require.Equal(t, Position{X: 3, Y: 4}, e.Position())
}

func TestEntityKind(t *testing.T) {
	e := NewEntity(1, "player", Position{})
	require.Equal(t, "player", e.Kind())

	e.SetKind("npc")
	require.Equal(t, "npc", e.Kind())
}

func TestEntityView(t *testing.T) {
	e := NewEntity(7, "npc", Position{X: 5, Y: 6})
	require.Equal(t, EntityView{ID: 7, Kind: "npc", X: 5, Y: 6}, e.View())
}

func TestEntitiesToViews(t *testing.T) {
	entities := []*Entity{
		NewEntity(2, "", Position{X: 1}),
		NewEntity(1, "", Position{Y: 1}),
	}
	sortEntities(entities)

	require.Equal(t, []EntityView{
		{ID: 1, Y: 1},
		{ID: 2, X: 1},
	}, EntitiesToViews(entities))

	require.Empty(t, EntitiesToViews(nil))
	require.NotNil(t, EntitiesToViews(nil))
}
