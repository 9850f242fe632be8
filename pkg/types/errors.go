package types

import "errors"

// Validation error types shared across components.
var (
	ErrInvalidMode     = errors.New("mode must be 'talk', 'lesson' or 'play'")
	ErrMissingLevel    = errors.New("a level (1-6) is required")
	ErrMissingTopic    = errors.New("a topic must be selected")
	ErrMissingGameType = errors.New("a game type must be selected")
	ErrMissingContent  = errors.New("no words or sentences selected for practice")
	ErrInvalidGameType = errors.New("game type must be 'guess', 'reverse' or 'sentence-maker'")
)
