package webrtc

import "errors"

var (
	ErrChannelNotOpen = errors.New("data channel not open")
	ErrChannelExists  = errors.New("transport already has a data channel")
	ErrNoLocalSDP     = errors.New("no local description after gathering")
	ErrNotMicTrack    = errors.New("local audio track is not a microphone track")
)
