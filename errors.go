package upscaler

import "errors"

var (
	// Repository errors.
	ErrNoRepository     = errors.New("upscaler: no repository configured")
	ErrRepositoryClosed = errors.New("upscaler: repository closed")

	// Not found errors.
	ErrJobNotFound = errors.New("upscaler: job not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("upscaler: job already exists")

	// State errors.
	ErrInvalidTransition = errors.New("upscaler: invalid state transition")
	ErrJobRunning        = errors.New("upscaler: job is running; cancel it before deleting")

	// Input errors.
	ErrValidation = errors.New("upscaler: invalid job submission")

	// Plugin errors.
	ErrKindNotRegistered = errors.New("upscaler: no plugin registered for processing kind")
)
