package core

import "errors"

var (
	// ErrInvalidRequest indicates missing or malformed request input.
	ErrInvalidRequest = errors.New("invalid llm request")
	// ErrInvalidToolSchema marks a tool input schema that is not a usable object schema.
	// It is always reported together with ErrInvalidRequest.
	ErrInvalidToolSchema = errors.New("invalid tool input schema")
	// ErrMissingAPIKey indicates missing provider API key.
	ErrMissingAPIKey = errors.New("missing api key")
)
