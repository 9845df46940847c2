package transport

import (
	"context"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"
)

// maxWebSocketMessage bounds a single binary message read from a peer.
const maxWebSocketMessage = 16 << 20

// NewWebSocketStream exposes an accepted or dialed WebSocket connection as
// a Stream. Binary messages carry the byte stream. ctx bounds the lifetime
// of the connection.
func NewWebSocketStream(ctx context.Context, c *websocket.Conn) *Stream {
	return &Stream{
		network: "websocket",
		conn:    websocket.NetConn(ctx, c, websocket.MessageBinary),
	}
}

// AcceptWebSocket upgrades an HTTP request and returns the connection as
// a Stream.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request, opts *websocket.AcceptOptions) (*Stream, error) {
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, fmt.Errorf("websocket accept: %w", err)
	}
	c.SetReadLimit(maxWebSocketMessage)
	return NewWebSocketStream(context.Background(), c), nil
}

// DialWebSocket connects to a WebSocket URL and returns the connection as
// a Stream.
func DialWebSocket(ctx context.Context, url string) (*Stream, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	c.SetReadLimit(maxWebSocketMessage)
	return NewWebSocketStream(context.Background(), c), nil
}
