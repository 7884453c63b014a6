package logger

import "errors"

var (
	// ErrInvalidLevel is returned when an unknown logging level is requested.
	ErrInvalidLevel = errors.New("invalid logging level")
	// ErrInvalidEncoding is returned when an unknown encoding is requested.
	ErrInvalidEncoding = errors.New("invalid log encoding format")
)
