package websocket

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeBufferSize = 100
	writeTimeout    = 5 * time.Second
)

// Channel is the ordered event channel over one websocket. Writes are
// serialized through a single writer goroutine; reads run on their own
// loop once the channel is opened.
type Channel struct {
	conn  *websocket.Conn
	label string

	writeCh chan []byte
	ctx     context.Context
	cancel  context.CancelFunc

	mu        sync.Mutex
	isOpen    bool
	onOpen    func()
	onClose   func()
	onError   func(error)
	onMessage func(data []byte)

	closeOnce sync.Once
}

func newChannel(conn *websocket.Conn, label string) *Channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		conn:    conn,
		label:   label,
		writeCh: make(chan []byte, writeBufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Channel) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

func (c *Channel) OnClose(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

func (c *Channel) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

func (c *Channel) OnMessage(fn func(data []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
}

// open starts the read and write loops and fires the open handler. The
// terminated callback reports how the read loop ended: nil for a clean
// close, an error for transport failure.
func (c *Channel) open(terminated func(err error)) {
	c.mu.Lock()
	c.isOpen = true
	onOpen := c.onOpen
	c.mu.Unlock()

	go c.writeLoop()
	go c.readLoop(terminated)

	if onOpen != nil {
		onOpen()
	}
}

func (c *Channel) writeLoop() {
	for {
		select {
		case data, ok := <-c.writeCh:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				c.failWrites()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("Channel write failed label=%s error=%v", c.label, err)
				c.failWrites()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// failWrites marks the channel dead after a write failure so queued and
// later sends fail immediately instead of waiting out the write timeout.
// The read loop observes the cancelled context and reports the close.
func (c *Channel) failWrites() {
	c.mu.Lock()
	c.isOpen = false
	c.mu.Unlock()
	c.cancel()
}

func (c *Channel) readLoop(terminated func(err error)) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.isOpen = false
			onClose := c.onClose
			onError := c.onError
			c.mu.Unlock()

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || c.ctx.Err() != nil {
				if onClose != nil {
					onClose()
				}
				if terminated != nil {
					terminated(nil)
				}
			} else {
				if onError != nil {
					onError(err)
				}
				if terminated != nil {
					terminated(err)
				}
			}
			return
		}

		c.mu.Lock()
		onMessage := c.onMessage
		c.mu.Unlock()
		if onMessage != nil {
			onMessage(data)
		}
	}
}

// Send queues one text frame for the writer goroutine.
func (c *Channel) Send(data []byte) error {
	if !c.IsOpen() {
		return ErrChannelNotOpen
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpen
}

func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.isOpen = false
		c.mu.Unlock()
		c.cancel()
	})
	return nil
}
