// Package websocket provides the fallback transport: the same ordered
// event channel as the peer transport, carried over a single websocket.
// It moves no media; sessions on this transport are text-driven.
package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"xiaoqiu/pkg/interfaces"
	"xiaoqiu/pkg/types"
)

// Dialer creates websocket transports.
type Dialer struct {
	url         string
	dialTimeout time.Duration
}

func NewDialer(url string, dialTimeout time.Duration) *Dialer {
	return &Dialer{url: url, dialTimeout: dialTimeout}
}

// NewTransport dials the endpoint using the ephemeral credential as a
// bearer token.
func (d *Dialer) NewTransport(ctx context.Context, token string) (interfaces.PeerTransport, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.dialTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, d.url, header)
	if err != nil {
		return nil, err
	}

	return newTransport(conn), nil
}

// Transport adapts one websocket connection to the peer-transport shape.
// There is no SDP exchange: CreateOffer returns the empty string, which
// tells the caller to skip negotiation, and activates the channel.
type Transport struct {
	conn *websocket.Conn

	mu       sync.Mutex
	channel  *Channel
	stateFn  func(types.ConnState)
	closed   bool
	closeOne sync.Once
}

func newTransport(conn *websocket.Conn) *Transport {
	return &Transport{conn: conn}
}

func (t *Transport) CreateDataChannel(label string) (interfaces.DataChannel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.channel != nil {
		return nil, ErrChannelExists
	}

	t.channel = newChannel(t.conn, label)
	return t.channel, nil
}

// AddLocalAudio is accepted but inert: this transport carries no media.
func (t *Transport) AddLocalAudio(track interfaces.LocalAudioTrack) error {
	log.Printf("Websocket transport carries no media, microphone track will stay silent")
	return nil
}

// CreateOffer activates the channel and returns the empty string since
// no negotiation exchange is needed.
func (t *Transport) CreateOffer(ctx context.Context) (string, error) {
	t.mu.Lock()
	channel := t.channel
	stateFn := t.stateFn
	t.mu.Unlock()

	if channel == nil {
		return "", ErrChannelNotOpen
	}

	if stateFn != nil {
		stateFn(types.ConnConnected)
	}
	channel.open(func(err error) {
		t.mu.Lock()
		fn := t.stateFn
		closed := t.closed
		t.mu.Unlock()
		if fn != nil && !closed {
			if err != nil {
				fn(types.ConnDisconnected)
			} else {
				fn(types.ConnClosed)
			}
		}
	})

	return "", nil
}

// ApplyAnswer is never reached on this transport; callers skip it when
// the offer is empty.
func (t *Transport) ApplyAnswer(sdp string) error {
	return nil
}

func (t *Transport) OnConnectionState(fn func(types.ConnState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateFn = fn
}

// OnRemoteAudio never fires: there is no media path.
func (t *Transport) OnRemoteAudio(fn func(interfaces.RemoteAudioSource)) {}

func (t *Transport) Close() error {
	var err error
	t.closeOne.Do(func() {
		t.mu.Lock()
		t.closed = true
		channel := t.channel
		t.mu.Unlock()

		if channel != nil {
			channel.Close()
		}
		err = t.conn.Close()
	})
	return err
}
