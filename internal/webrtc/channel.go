package webrtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// Channel adapts a pion data channel to the transport-neutral shape.
// pion already serializes sends and delivers messages in order on an
// ordered channel.
type Channel struct {
	dc *webrtc.DataChannel

	closeOnce sync.Once
}

func newDataChannel(dc *webrtc.DataChannel) *Channel {
	return &Channel{dc: dc}
}

func (c *Channel) OnOpen(fn func()) {
	c.dc.OnOpen(fn)
}

func (c *Channel) OnClose(fn func()) {
	c.dc.OnClose(fn)
}

func (c *Channel) OnError(fn func(error)) {
	c.dc.OnError(fn)
}

func (c *Channel) OnMessage(fn func(data []byte)) {
	c.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (c *Channel) Send(data []byte) error {
	if c.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrChannelNotOpen
	}
	return c.dc.SendText(string(data))
}

func (c *Channel) IsOpen() bool {
	return c.dc.ReadyState() == webrtc.DataChannelStateOpen
}

func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.dc.Close()
	})
	return err
}
