package config

import "errors"

var (
	// ErrInvalidConfig is wrapped by every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrParsingConfig is returned when the YAML file or environment cannot be parsed.
	ErrParsingConfig = errors.New("failed to parse configuration")
)
