package websocket

import "errors"

var (
	ErrConnectionClosed = errors.New("websocket connection closed")
	ErrChannelNotOpen   = errors.New("websocket channel not open")
	ErrWriteTimeout     = errors.New("websocket write timed out")
	ErrChannelExists    = errors.New("websocket transport already has a channel")
)
