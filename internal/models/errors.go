package models

import "errors"

// Sentinel errors shared across repositories and services.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate indicates a uniqueness constraint rejected the write.
	ErrDuplicate = errors.New("duplicate record")

	// ErrTaskRunning indicates the scheduler slot is occupied.
	ErrTaskRunning = errors.New("task already running")
)
