package controller

import (
	"errors"
	"fmt"
)

// Controller-specific error types.
var (
	ErrConfigIncomplete = errors.New("session settings are incomplete")
	ErrAlreadyActive    = errors.New("a session is already active")
	ErrControllerClosed = errors.New("controller has been shut down")
	ErrSessionStopped   = errors.New("session stopped during negotiation")
)

// Connection stage names, reported when start() fails partway.
const (
	StageToken      = "token"
	StageTransport  = "transport"
	StageAudio      = "audio"
	StageMicrophone = "microphone"
	StageChannel    = "channel"
	StageOffer      = "offer"
	StageNegotiate  = "negotiate"
	StageAnswer     = "answer"
)

// ConnectionError reports which negotiation stage failed. The session is
// already torn down by the time the caller sees it; retry is manual.
type ConnectionError struct {
	Stage string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed at %s: %v", e.Stage, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
