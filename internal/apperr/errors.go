package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	ErrTabNotFound       = fmt.Errorf("tab %w", ErrNotFound)
	ErrTabNotClosable    = fmt.Errorf("tab not closable: %w", ErrNotFound)
	ErrInvalidReorder    = errors.New("invalid reorder")
	ErrInvalidTransition = errors.New("invalid transition")
)
