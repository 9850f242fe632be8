// Package webrtc is the primary transport: a pion peer connection
// carrying the ordered event channel, the microphone uplink, and the
// remote audio downlink.
package webrtc

import (
	"context"
	"log"
	"sync"

	"github.com/pion/webrtc/v4"

	"xiaoqiu/pkg/interfaces"
	"xiaoqiu/pkg/types"
)

// Dialer creates peer transports. The ephemeral credential is not used
// at dial time; the SDP negotiation endpoint authenticates instead.
type Dialer struct {
	stunURL string
}

func NewDialer(stunURL string) *Dialer {
	return &Dialer{stunURL: stunURL}
}

func (d *Dialer) NewTransport(ctx context.Context, token string) (interfaces.PeerTransport, error) {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{d.stunURL}}},
	}

	pc, err := webrtc.NewPeerConnection(config)
	if err != nil {
		return nil, err
	}

	t := &Transport{pc: pc}

	// Peer and ICE state changes funnel into the single observer. ICE
	// failures can arrive without a matching peer-state transition, so
	// both feed the same callback.
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Printf("Peer connection state changed state=%s", state)
		t.emitState(mapPeerState(state))
	})
	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Printf("ICE connection state changed state=%s", state)
		if mapped, ok := mapICEState(state); ok {
			t.emitState(mapped)
		}
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if remote.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		log.Printf("Remote audio track arrived codec=%s", remote.Codec().MimeType)
		source := newRemoteSource(remote)
		go source.run()
		t.emitRemote(source)
	})

	return t, nil
}

// Transport wraps one pion peer connection.
type Transport struct {
	pc *webrtc.PeerConnection

	mu       sync.Mutex
	channel  *Channel
	stateFn  func(types.ConnState)
	remoteFn func(interfaces.RemoteAudioSource)

	closeOnce sync.Once
}

func (t *Transport) emitState(state types.ConnState) {
	t.mu.Lock()
	fn := t.stateFn
	t.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (t *Transport) emitRemote(source interfaces.RemoteAudioSource) {
	t.mu.Lock()
	fn := t.remoteFn
	t.mu.Unlock()
	if fn != nil {
		fn(source)
	}
}

func (t *Transport) CreateDataChannel(label string) (interfaces.DataChannel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.channel != nil {
		return nil, ErrChannelExists
	}

	ordered := true
	dc, err := t.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}

	t.channel = newDataChannel(dc)
	return t.channel, nil
}

func (t *Transport) AddLocalAudio(track interfaces.LocalAudioTrack) error {
	mic, ok := track.(*MicTrack)
	if !ok {
		return ErrNotMicTrack
	}

	_, err := t.pc.AddTrack(mic.track)
	return err
}

// CreateOffer produces the local SDP after ICE gathering completes, so
// the offer carries all candidates and no trickle exchange is needed.
func (t *Transport) CreateOffer(ctx context.Context) (string, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}

	gathered := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := t.pc.LocalDescription()
	if local == nil {
		return "", ErrNoLocalSDP
	}
	return local.SDP, nil
}

func (t *Transport) ApplyAnswer(sdp string) error {
	return t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	})
}

func (t *Transport) OnConnectionState(fn func(types.ConnState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateFn = fn
}

func (t *Transport) OnRemoteAudio(fn func(interfaces.RemoteAudioSource)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remoteFn = fn
}

func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.pc.Close()
	})
	return err
}

func mapPeerState(state webrtc.PeerConnectionState) types.ConnState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return types.ConnNew
	case webrtc.PeerConnectionStateConnecting:
		return types.ConnConnecting
	case webrtc.PeerConnectionStateConnected:
		return types.ConnConnected
	case webrtc.PeerConnectionStateDisconnected:
		return types.ConnDisconnected
	case webrtc.PeerConnectionStateFailed:
		return types.ConnFailed
	default:
		return types.ConnClosed
	}
}

// mapICEState translates ICE transitions that matter to session health.
// Benign intermediate states report false.
func mapICEState(state webrtc.ICEConnectionState) (types.ConnState, bool) {
	switch state {
	case webrtc.ICEConnectionStateDisconnected:
		return types.ConnDisconnected, true
	case webrtc.ICEConnectionStateFailed:
		return types.ConnFailed, true
	case webrtc.ICEConnectionStateClosed:
		return types.ConnClosed, true
	default:
		return types.ConnNew, false
	}
}
