package ws

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the frame-level connection a session drives.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// DialFunc opens one connection to rawURL. ctx bounds the handshake.
type DialFunc func(ctx context.Context, rawURL string) (Conn, error)

// GorillaDial dials with a gorilla websocket dialer.
func GorillaDial(dialer *websocket.Dialer) DialFunc {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return func(ctx context.Context, rawURL string) (Conn, error) {
		conn, resp, err := dialer.DialContext(ctx, rawURL, nil)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("dial %s: %w (status %d)", rawURL, err, resp.StatusCode)
			}
			return nil, fmt.Errorf("dial %s: %w", rawURL, err)
		}
		return conn, nil
	}
}

// SessionURL appends the identity and room query parameters to base.
func SessionURL(base, identity, roomID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	q := u.Query()
	q.Set("username", identity)
	q.Set("roomId", roomID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
