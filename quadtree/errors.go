package quadtree

const (
	// ErrTypeInvalidConfig is the error type returned when a tree is
	// constructed with degenerate bounds or thresholds.
	ErrTypeInvalidConfig = "invalid_config"
)
