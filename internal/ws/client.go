package ws

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Client owns at most one live session. Opening a session for another room
// tears the current one down first.
type Client struct {
	opts    Options
	handler Handler
	epoch   atomic.Uint64

	mu      sync.Mutex
	current *Session
}

// NewClient builds a client that reports to handler.
func NewClient(opts Options, handler Handler) *Client {
	return &Client{opts: opts.withDefaults(), handler: handler}
}

// Open starts a session for identity in roomID and returns its handle.
// An already live session for the same pair is returned as is.
func (c *Client) Open(identity, roomID string) (*Session, error) {
	identity = strings.TrimSpace(identity)
	roomID = strings.TrimSpace(roomID)
	if identity == "" || roomID == "" {
		return nil, ErrInvalidTarget
	}
	rawURL, err := SessionURL(c.opts.URL, identity, roomID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	prev := c.current
	if prev != nil && !prev.State().Terminal() && prev.identity == identity && prev.roomID == roomID {
		c.mu.Unlock()
		return prev, nil
	}
	c.current = nil
	c.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	s := newSession(identity, roomID, rawURL, c.opts, c.handler, c.nextEpoch)
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
	go s.run()
	return s, nil
}

// Close closes the given handle.
func (c *Client) Close(s *Session) error {
	if s == nil {
		return ErrSessionClosed
	}
	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()
	return s.Close()
}

// Current returns the live session, if any.
func (c *Client) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Client) nextEpoch() uint64 {
	return c.epoch.Add(1)
}
