package quadtree

// DebugInfo summarizes the shape and population of an index.
type DebugInfo struct {
	NodeCount  int `json:"node_count"`
	LeafCount  int `json:"leaf_count"`
	Depth      int `json:"depth"`
	EntryCount int `json:"entry_count"`

	// Number of entries stored at each level, root first.
	LevelOccupancy []int `json:"level_occupancy"`
}

// SpatialIndex is the interface implemented by point indexes.
type SpatialIndex[T any] interface {
	Insert(payload T, x, y float64)
	Query(x, y float64) []T
	Clear()

	// debug stuff:
	DebugInfo() DebugInfo
}

var (
	_ SpatialIndex[int] = (*Tree[int])(nil)
	_ SpatialIndex[int] = (*Locked[int])(nil)
)
