package interfaces

import (
	"context"

	"xiaoqiu/pkg/types"
)

// PeerTransport abstracts the real-time transport so the controller can be
// exercised against a stub. Implementations: internal/webrtc (pion peer
// connection) and internal/websocket (ordered data channel only, no media).
type PeerTransport interface {
	// CreateDataChannel opens the ordered control channel. Must be called
	// before the offer so the channel is part of the negotiation.
	CreateDataChannel(label string) (DataChannel, error)

	// AddLocalAudio attaches the microphone track to the transport.
	AddLocalAudio(track LocalAudioTrack) error

	// CreateOffer returns the local SDP offer. Transports that need no
	// signaling exchange return the empty string.
	CreateOffer(ctx context.Context) (string, error)

	// ApplyAnswer applies the remote SDP answer.
	ApplyAnswer(sdp string) error

	// OnConnectionState registers the single connection-state observer.
	// Peer-connection and ICE state changes both arrive here.
	OnConnectionState(fn func(types.ConnState))

	// OnRemoteAudio fires once when the remote audio stream arrives.
	OnRemoteAudio(fn func(RemoteAudioSource))

	// Close releases the transport. Safe to call more than once.
	Close() error
}

// TransportDialer creates transports. The ephemeral credential is passed so
// transports that authenticate at dial time (websocket) can use it; the
// webrtc transport authenticates through the negotiation endpoint instead.
type TransportDialer interface {
	NewTransport(ctx context.Context, token string) (PeerTransport, error)
}

// DataChannel is the ordered, reliable control-message channel. Handlers
// must be registered before the channel opens; registration and release
// happen in the same operation that creates or destroys the channel.
type DataChannel interface {
	OnOpen(fn func())
	OnClose(fn func())
	OnError(fn func(error))
	OnMessage(fn func(data []byte))

	// Send transmits one text frame. Fails when the channel is not open.
	Send(data []byte) error

	IsOpen() bool
	Close() error
}

// LocalAudioTrack is the microphone track. It is created disabled and
// toggled by push-to-talk; it is never recreated mid-session.
type LocalAudioTrack interface {
	SetEnabled(enabled bool)
	Enabled() bool

	// Close stops capture and releases the device.
	Close() error
}

// MicDevice acquires the local microphone capture track.
type MicDevice interface {
	Capture(ctx context.Context) (LocalAudioTrack, error)
}

// RemoteAudioSource exposes the remote audio stream as decoded mono PCM
// frames in [-1,1]. The source is observed, never owned: subscribers stop
// reading and unsubscribe, the transport closes the underlying stream.
type RemoteAudioSource interface {
	Subscribe() <-chan []float32
	Unsubscribe(ch <-chan []float32)
}

// AudioSink plays the remote stream (the audio-element equivalent).
type AudioSink interface {
	Play(src RemoteAudioSource)
	Close() error
}
