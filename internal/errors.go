package internal

import (
	"errors"
)

var (
	ErrNotIngested             = errors.New("index or metadata not found")
	ErrNoDocuments             = errors.New("no documents found")
	ErrCollaboratorUnavailable = errors.New("required collaborator unavailable")
	ErrGenerationFailed        = errors.New("generation failed")
	ErrArtifactsBusy           = errors.New("artifacts are locked by another process")
	ErrIndexNotBuilt           = errors.New("index not built")
	ErrDimensionMismatch       = errors.New("dimension mismatch")
	ErrInvalidTopK             = errors.New("top-k must be positive")
)
