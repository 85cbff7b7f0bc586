package quadtree

import (
	"fmt"
	"math"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/stretchr/testify/require"
)

var world = Rect{X: 0, Y: 0, Width: 100, Height: 100}

func newTestTree(t *testing.T, maxLevel, maxObjects int, opts ...Option) *Tree[string] {
	tree, err := New[string](world, maxLevel, maxObjects, opts...)
	require.NoError(t, err)
	return tree
}

func TestNew(t *testing.T) {
	t.Run("returns an empty leaf", func(t *testing.T) {
		tree := newTestTree(t, 4, 8)

		require.True(t, tree.IsLeaf(Root))
		require.Empty(t, tree.Entries(Root))
		require.Equal(t, 0, tree.Level(Root))
		require.Equal(t, world, tree.Bounds(Root))
		require.Equal(t, 1, tree.NodeCount())
		require.Equal(t, 0, tree.Len())
		require.Equal(t, 4, tree.MaxLevel())
		require.Equal(t, 8, tree.MaxObjects())
	})

	tests := []struct {
		name       string
		bounds     Rect
		level      int
		maxLevel   int
		maxObjects int
	}{
		{name: "zero width", bounds: Rect{Width: 0, Height: 10}, maxLevel: 1, maxObjects: 1},
		{name: "negative height", bounds: Rect{Width: 10, Height: -1}, maxLevel: 1, maxObjects: 1},
		{name: "nan width", bounds: Rect{Width: math.NaN(), Height: 10}, maxLevel: 1, maxObjects: 1},
		{name: "infinite height", bounds: Rect{Width: 10, Height: math.Inf(1)}, maxLevel: 1, maxObjects: 1},
		{name: "infinite origin", bounds: Rect{X: math.Inf(-1), Width: 10, Height: 10}, maxLevel: 1, maxObjects: 1},
		{name: "zero max objects", bounds: world, maxLevel: 1, maxObjects: 0},
		{name: "negative max level", bounds: world, maxLevel: -1, maxObjects: 1},
		{name: "level above max level", bounds: world, level: 3, maxLevel: 2, maxObjects: 1},
		{name: "negative level", bounds: world, level: -1, maxLevel: 2, maxObjects: 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tree, err := NewNode[int](test.bounds, test.level, test.maxLevel, test.maxObjects)
			require.Error(t, err)
			require.Nil(t, tree)
			require.True(t, errors.IsType(err, ErrTypeInvalidConfig))
		})
	}
}

func TestInsertBelowThreshold(t *testing.T) {
	tree := newTestTree(t, 3, 3)

	tree.Insert("a", 10, 10)
	tree.Insert("b", 90, 10)
	tree.Insert("c", 50, 90)

	require.True(t, tree.IsLeaf(Root))
	require.Equal(t, 1, tree.NodeCount())

	for _, p := range [][2]float64{{1, 1}, {50, 50}, {99, 99}, {0, 0}, {100, 100}} {
		require.Equal(t, []string{"a", "b", "c"}, tree.Query(p[0], p[1]))
	}
}

func TestInsertMaxLevelZero(t *testing.T) {
	tree := newTestTree(t, 0, 1)

	var want []string
	for i := 0; i < 50; i++ {
		payload := fmt.Sprint(i)
		tree.Insert(payload, float64(i*2), float64(100-i*2))
		want = append(want, payload)
	}

	require.True(t, tree.IsLeaf(Root))
	require.Equal(t, 1, tree.NodeCount())
	require.Equal(t, want, tree.Query(25, 75))
	require.Equal(t, want, tree.Query(99, 1))
}

func TestInsertSplit(t *testing.T) {
	tree := newTestTree(t, 3, 1)
	tree.Insert("a", 10, 10)
	require.True(t, tree.IsLeaf(Root))

	tree.Insert("b", 80, 80)
	require.False(t, tree.IsLeaf(Root))
	require.Empty(t, tree.Entries(Root))

	children, ok := tree.Children(Root)
	require.True(t, ok)

	expected := [4]Rect{
		{X: 0, Y: 0, Width: 50, Height: 50},
		{X: 50, Y: 0, Width: 50, Height: 50},
		{X: 0, Y: 50, Width: 50, Height: 50},
		{X: 50, Y: 50, Width: 50, Height: 50},
	}

	var area float64
	for q, child := range children {
		require.Equal(t, expected[q], tree.Bounds(child))
		require.Equal(t, 1, tree.Level(child))
		require.True(t, tree.IsLeaf(child))

		b := tree.Bounds(child)
		area += b.Width * b.Height
	}
	require.Equal(t, world.Width*world.Height, area)

	require.Equal(t, []string{"a"}, tree.Entries(children[NW]))
	require.Equal(t, []string{"b"}, tree.Entries(children[SE]))
	require.Equal(t, []string{"a"}, tree.Query(10, 10))
	require.Equal(t, []string{"b"}, tree.Query(80, 80))
	require.Empty(t, tree.Query(80, 10))
}

func TestInsertTwoEntriesScenario(t *testing.T) {
	modes := map[string][]Option{
		"default": nil,
		"legacy":  {Legacy()},
	}

	for name, opts := range modes {
		t.Run(name, func(t *testing.T) {
			tree := newTestTree(t, 1, 1, opts...)

			tree.Insert("a", 10, 10)
			require.True(t, tree.IsLeaf(Root))
			require.Equal(t, []string{"a"}, tree.Entries(Root))

			tree.Insert("b", 20, 20)
			require.False(t, tree.IsLeaf(Root))
			require.Equal(t, 5, tree.NodeCount())

			children, _ := tree.Children(Root)
			require.Equal(t, Rect{X: 0, Y: 0, Width: 50, Height: 50}, tree.Bounds(children[NW]))
			require.Equal(t, Rect{X: 50, Y: 0, Width: 50, Height: 50}, tree.Bounds(children[NE]))
			require.Equal(t, Rect{X: 0, Y: 50, Width: 50, Height: 50}, tree.Bounds(children[SW]))
			require.Equal(t, Rect{X: 50, Y: 50, Width: 50, Height: 50}, tree.Bounds(children[SE]))

			require.Equal(t, []string{"a", "b"}, tree.Query(10, 10))
			require.Empty(t, tree.Query(60, 60))
		})
	}
}

func TestRedistributionCoordinates(t *testing.T) {
	t.Run("entries are routed by their own point", func(t *testing.T) {
		tree := newTestTree(t, 2, 1)
		tree.Insert("a", 10, 10)
		tree.Insert("b", 90, 90)

		require.Equal(t, []string{"a"}, tree.Query(10, 10))
		require.Equal(t, []string{"b"}, tree.Query(90, 90))
		require.Equal(t, 5, tree.NodeCount())
	})

	t.Run("entries are routed by the triggering point", func(t *testing.T) {
		tree := newTestTree(t, 2, 1, WithTriggerPointRedistribution())
		tree.Insert("a", 10, 10)
		tree.Insert("b", 90, 90)

		require.Empty(t, tree.Query(10, 10))
		require.Equal(t, []string{"a", "b"}, tree.Query(90, 90))

		children, _ := tree.Children(Root)
		require.False(t, tree.IsLeaf(children[SE]))
		require.Equal(t, 9, tree.NodeCount())
	})
}

func TestInsertPathEntries(t *testing.T) {
	tree := newTestTree(t, 2, 2, WithPathEntries())

	tree.Insert("a", 10, 10)
	tree.Insert("b", 20, 20)
	tree.Insert("c", 30, 30)

	children, _ := tree.Children(Root)
	nw := children[NW]
	require.False(t, tree.IsLeaf(nw))
	require.Empty(t, tree.Entries(Root))
	require.Empty(t, tree.Entries(nw))

	tree.Insert("d", 40, 40)
	require.Equal(t, []string{"d"}, tree.Entries(Root))
	require.Equal(t, []string{"d"}, tree.Entries(nw))
	require.Equal(t, []string{"c", "d"}, tree.Query(40, 40))
	require.Equal(t, []string{"a", "b"}, tree.Query(10, 10))
	require.Equal(t, 6, tree.Len())
}

func TestInsertAtMaxLevelGrowsUnbounded(t *testing.T) {
	tree := newTestTree(t, 1, 1)

	for i := 0; i < 10; i++ {
		tree.Insert(fmt.Sprint(i), 10+float64(i), 10)
	}

	require.Equal(t, 5, tree.NodeCount())
	require.Len(t, tree.Query(10, 10), 10)

	info := tree.DebugInfo()
	require.Equal(t, 1, info.Depth)
	require.Equal(t, []int{0, 10}, info.LevelOccupancy)
}

func TestInsertDuplicates(t *testing.T) {
	tree := newTestTree(t, 2, 4)
	tree.Insert("a", 10, 10)
	tree.Insert("a", 10, 10)

	require.Equal(t, []string{"a", "a"}, tree.Query(10, 10))
}

func TestInsertOutsideBounds(t *testing.T) {
	tree, err := New[string](Rect{Width: 10, Height: 10}, 1, 1)
	require.NoError(t, err)

	tree.Insert("outside", 20, 20)
	tree.Insert("inside", 5, 5)

	require.False(t, tree.IsLeaf(Root))
	require.Equal(t, []string{"outside"}, tree.Entries(Root))
	require.Equal(t, []string{"inside"}, tree.Query(5, 5))
	require.Empty(t, tree.Query(20, 20))
	require.Equal(t, 2, tree.Len())
}

func TestQuery(t *testing.T) {
	tree := newTestTree(t, 1, 1)
	tree.Insert("p", 25, 25)
	tree.Insert("q", 75, 25)
	tree.Insert("r", 25, 75)
	tree.Insert("s", 75, 75)

	t.Run("routes each quadrant", func(t *testing.T) {
		require.Equal(t, []string{"p"}, tree.Query(25, 25))
		require.Equal(t, []string{"q"}, tree.Query(75, 25))
		require.Equal(t, []string{"r"}, tree.Query(25, 75))
		require.Equal(t, []string{"s"}, tree.Query(75, 75))
	})

	t.Run("shared edges resolve to exactly one quadrant", func(t *testing.T) {
		tests := []struct {
			x, y float64
			want string
		}{
			{x: 50, y: 25, want: "p"},
			{x: 50, y: 75, want: "r"},
			{x: 25, y: 50, want: "p"},
			{x: 75, y: 50, want: "q"},
			{x: 50, y: 50, want: "p"},
		}

		for _, test := range tests {
			require.Equal(t, []string{test.want}, tree.Query(test.x, test.y),
				"point (%v, %v)", test.x, test.y)
		}
	})

	t.Run("shared edges agree with insertion", func(t *testing.T) {
		other := newTestTree(t, 1, 1)
		other.Insert("p", 25, 25)
		other.Insert("q", 75, 75)
		other.Insert("edge", 50, 50)

		require.Equal(t, []string{"p", "edge"}, other.Query(50, 50))
		require.Equal(t, []string{"p", "edge"}, other.Query(1, 1))
	})

	t.Run("outer edges of an inner node are empty", func(t *testing.T) {
		require.Empty(t, tree.Query(0, 25))
		require.Empty(t, tree.Query(100, 25))
		require.Empty(t, tree.Query(25, 0))
		require.Empty(t, tree.Query(25, 100))
	})

	t.Run("points outside the root are empty", func(t *testing.T) {
		require.Empty(t, tree.Query(-1, 50))
		require.Empty(t, tree.Query(150, 150))
	})

	t.Run("points outside a leaf root are empty", func(t *testing.T) {
		leaf := newTestTree(t, 1, 10)
		leaf.Insert("a", 10, 10)

		require.Empty(t, leaf.Query(101, 50))
		require.Equal(t, []string{"a"}, leaf.Query(100, 100))
	})

	t.Run("results are copies", func(t *testing.T) {
		res := tree.Query(25, 25)
		res[0] = "mutated"
		require.Equal(t, []string{"p"}, tree.Query(25, 25))
	})
}

func TestQueryIgnoresInnerEntries(t *testing.T) {
	tree := newTestTree(t, 2, 4, WithPathEntries())
	for i := 0; i < 5; i++ {
		tree.Insert(fmt.Sprint(i), 10, 10)
	}
	tree.Insert("late", 90, 90)

	require.Equal(t, []string{"late"}, tree.Entries(Root))
	require.Equal(t, []string{"late"}, tree.Query(90, 90))
	require.NotContains(t, tree.Query(10, 10), "late")
}

func TestClear(t *testing.T) {
	tree := newTestTree(t, 3, 1)
	for i := 0; i < 20; i++ {
		tree.Insert(fmt.Sprint(i), float64(i*5), float64(i*3))
	}

	nodeCount := tree.NodeCount()
	var leaves []bool
	tree.Walk(func(id NodeID) bool {
		leaves = append(leaves, tree.IsLeaf(id))
		return true
	})

	for i := 0; i < 2; i++ {
		tree.Clear()

		require.Equal(t, nodeCount, tree.NodeCount())
		require.Equal(t, 0, tree.Len())

		var after []bool
		tree.Walk(func(id NodeID) bool {
			require.Empty(t, tree.Entries(id))
			after = append(after, tree.IsLeaf(id))
			return true
		})
		require.Equal(t, leaves, after)
	}

	t.Run("repopulates the kept topology", func(t *testing.T) {
		tree.Insert("a", 10, 10)
		require.Equal(t, nodeCount, tree.NodeCount())
		require.Equal(t, []string{"a"}, tree.Query(10, 10))
		require.Empty(t, tree.Entries(Root))
	})
}

func TestClearSubtree(t *testing.T) {
	tree := newTestTree(t, 1, 1)
	tree.Insert("a", 10, 10)
	tree.Insert("b", 90, 90)

	children, _ := tree.Children(Root)
	tree.clearSubtree(children[NW])

	require.Empty(t, tree.Query(10, 10))
	require.Equal(t, []string{"b"}, tree.Query(90, 90))

	tree.clearSubtree(NodeID(42))
	require.Equal(t, 1, tree.Len())
}

func TestNewNode(t *testing.T) {
	tree, err := NewNode[string](world, 2, 2, 1)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		tree.Insert(fmt.Sprint(i), 10, 10)
	}

	require.True(t, tree.IsLeaf(Root))
	require.Equal(t, 2, tree.Level(Root))
	require.Len(t, tree.Query(60, 60), 5)
}

func TestWalk(t *testing.T) {
	tree := newTestTree(t, 2, 1)
	tree.Insert("a", 10, 10)
	tree.Insert("b", 20, 20)

	var visited []NodeID
	tree.Walk(func(id NodeID) bool {
		visited = append(visited, id)
		return true
	})
	require.Len(t, visited, 9)
	require.Equal(t, Root, visited[0])
	require.Equal(t, NodeID(1), visited[1])
	require.Equal(t, NodeID(5), visited[2])

	visited = nil
	tree.Walk(func(id NodeID) bool {
		visited = append(visited, id)
		return id == Root
	})
	require.Equal(t, []NodeID{0, 1, 2, 3, 4}, visited)
}

func TestDebugInfo(t *testing.T) {
	tree := newTestTree(t, 1, 1)
	require.Equal(t, DebugInfo{
		NodeCount:      1,
		LeafCount:      1,
		LevelOccupancy: []int{0},
	}, tree.DebugInfo())

	tree.Insert("a", 10, 10)
	tree.Insert("b", 20, 20)
	require.Equal(t, DebugInfo{
		NodeCount:      5,
		LeafCount:      4,
		Depth:          1,
		EntryCount:     2,
		LevelOccupancy: []int{0, 2},
	}, tree.DebugInfo())
}

func TestQuadrantString(t *testing.T) {
	require.Equal(t, "nw", NW.String())
	require.Equal(t, "ne", NE.String())
	require.Equal(t, "sw", SW.String())
	require.Equal(t, "se", SE.String())
	require.Equal(t, "unknown", Quadrant(7).String())
}

func BenchmarkInsertQuery(b *testing.B) {
	tree, err := New[int](Rect{Width: 1024, Height: 1024}, 6, 8)
	require.NoError(b, err)

	for i := 0; i < b.N; i++ {
		tree.Clear()
		for j := 0; j < 1000; j++ {
			tree.Insert(j, float64((j*37)%1024), float64((j*91)%1024))
		}
		tree.Query(512, 512)
	}
}
