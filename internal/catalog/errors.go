package catalog

import "errors"

var (
	// ErrTopicNotFound is returned when a topic does not exist.
	ErrTopicNotFound = errors.New("catalog: topic not found")

	// ErrInvalidPath is returned when a topic path is empty or blank.
	ErrInvalidPath = errors.New("catalog: invalid topic path")
)
