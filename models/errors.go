package models

const (
	ErrTypeWorldNotFound  = "world_not_found"
	ErrTypeEntityNotFound = "entity_not_found"
	ErrTypeOutOfBounds    = "out_of_bounds"
)
