package typing

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"chat-sync/internal/models"
)

const DefaultIdle = 1000 * time.Millisecond

// Config wires a Coordinator to its host.
type Config struct {
	// Idle is the inactivity window after which typing ends.
	Idle time.Duration
	// Throttle is the minimum spacing between outbound typing intents.
	// Zero disables throttling.
	Throttle time.Duration
	// Post runs timer callbacks. The engine routes them into its loop;
	// nil runs them on the timer goroutine.
	Post func(func())
	// Emit sends an outbound typing intent (models.IntentTyping or
	// models.IntentStopTyping).
	Emit func(intent string)
	// OnChange is called after the remote typing set changed.
	OnChange func()
}

type entry struct {
	gen   uint64
	timer *time.Timer
}

// Coordinator tracks who is typing. Remote entries expire after Idle unless
// refreshed, and a late stop for an expired entry is a no-op.
type Coordinator struct {
	cfg     Config
	limiter *rate.Limiter

	mu    sync.Mutex
	gen   uint64
	users map[string]*entry
	order []string

	localTyping bool
	localGen    uint64
	localTimer  *time.Timer
}

// NewCoordinator builds a coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Idle <= 0 {
		cfg.Idle = DefaultIdle
	}
	if cfg.Post == nil {
		cfg.Post = func(fn func()) { fn() }
	}
	c := &Coordinator{cfg: cfg, users: make(map[string]*entry)}
	if cfg.Throttle > 0 {
		c.limiter = rate.NewLimiter(rate.Every(cfg.Throttle), 1)
	}
	return c
}

// LocalKeystroke records a keystroke of the local user: it announces typing
// and rearms the idle timer that later announces the stop.
func (c *Coordinator) LocalKeystroke() {
	c.mu.Lock()
	announce := true
	if c.limiter != nil {
		// the first keystroke of a burst always goes out
		announce = c.limiter.Allow() || !c.localTyping
	}
	c.localTyping = true
	c.localGen++
	gen := c.localGen
	if c.localTimer != nil {
		c.localTimer.Stop()
	}
	c.localTimer = time.AfterFunc(c.cfg.Idle, func() {
		c.cfg.Post(func() { c.localExpire(gen) })
	})
	c.mu.Unlock()

	if announce {
		c.emit(models.IntentTyping)
	}
}

// LocalStop ends local typing now, for example when the message is sent.
func (c *Coordinator) LocalStop() {
	c.mu.Lock()
	wasTyping := c.localTyping
	c.localTyping = false
	c.localGen++
	if c.localTimer != nil {
		c.localTimer.Stop()
		c.localTimer = nil
	}
	c.mu.Unlock()

	if wasTyping {
		c.emit(models.IntentStopTyping)
	}
}

// LocalTyping reports whether the local user is considered typing.
func (c *Coordinator) LocalTyping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localTyping
}

// RemoteStart adds username to the typing set and rearms its expiry.
func (c *Coordinator) RemoteStart(username string) {
	if username == "" {
		return
	}
	c.mu.Lock()
	e, ok := c.users[username]
	if !ok {
		e = &entry{}
		c.users[username] = e
		c.order = append(c.order, username)
	} else if e.timer != nil {
		e.timer.Stop()
	}
	c.gen++
	e.gen = c.gen
	gen := e.gen
	e.timer = time.AfterFunc(c.cfg.Idle, func() {
		c.cfg.Post(func() { c.expire(username, gen) })
	})
	c.mu.Unlock()

	if !ok {
		c.changed()
	}
}

// RemoteStop removes username from the typing set.
func (c *Coordinator) RemoteStop(username string) {
	c.mu.Lock()
	removed := c.removeLocked(username)
	c.mu.Unlock()

	if removed {
		c.changed()
	}
}

// Users returns the typing set in arrival order.
func (c *Coordinator) Users() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// IsTyping reports whether username is in the typing set.
func (c *Coordinator) IsTyping(username string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.users[username]
	return ok
}

// Reset stops every timer and clears the typing set.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.users {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	c.users = make(map[string]*entry)
	c.order = nil
	c.localTyping = false
	c.localGen++
	if c.localTimer != nil {
		c.localTimer.Stop()
		c.localTimer = nil
	}
}

func (c *Coordinator) expire(username string, gen uint64) {
	c.mu.Lock()
	e, ok := c.users[username]
	if !ok || e.gen != gen {
		c.mu.Unlock()
		return
	}
	c.removeLocked(username)
	c.mu.Unlock()
	c.changed()
}

func (c *Coordinator) localExpire(gen uint64) {
	c.mu.Lock()
	if !c.localTyping || c.localGen != gen {
		c.mu.Unlock()
		return
	}
	c.localTyping = false
	c.localTimer = nil
	c.mu.Unlock()
	c.emit(models.IntentStopTyping)
}

func (c *Coordinator) removeLocked(username string) bool {
	e, ok := c.users[username]
	if !ok {
		return false
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(c.users, username)
	for i, name := range c.order {
		if name == username {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *Coordinator) emit(intent string) {
	if c.cfg.Emit != nil {
		c.cfg.Emit(intent)
	}
}

func (c *Coordinator) changed() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange()
	}
}
