package store

import (
	"sync"

	"chat-sync/internal/models"
)

type thread struct {
	hydrated bool
	messages []models.PrivateMessage
	ids      map[string]struct{}
}

// Threads keeps private conversations keyed by counterpart username.
type Threads struct {
	threads map[string]*thread
	mu      sync.RWMutex
}

// NewThreads creates an empty thread book.
func NewThreads() *Threads {
	return &Threads{threads: make(map[string]*thread)}
}

// Open creates the thread for counterpart if needed. It reports whether the
// thread still needs its history fetched.
func (t *Threads) Open(counterpart string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	th := t.get(counterpart)
	return !th.hydrated
}

// Hydrate loads the history of a thread once. Messages appended live before
// the history arrived are kept after it.
func (t *Threads) Hydrate(counterpart string, history []models.PrivateMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	th := t.get(counterpart)
	if th.hydrated {
		return false
	}
	live := th.messages
	th.messages = make([]models.PrivateMessage, 0, len(history)+len(live))
	th.ids = make(map[string]struct{}, len(history)+len(live))
	for _, msg := range history {
		th.add(msg)
	}
	for _, msg := range live {
		th.add(msg)
	}
	th.hydrated = true
	return true
}

// Append adds a live message to the thread with counterpart.
func (t *Threads) Append(counterpart string, msg models.PrivateMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(counterpart).add(msg)
}

// Messages returns a snapshot of the thread with counterpart.
func (t *Threads) Messages(counterpart string) ([]models.PrivateMessage, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	th, ok := t.threads[counterpart]
	if !ok {
		return nil, false
	}
	out := make([]models.PrivateMessage, len(th.messages))
	copy(out, th.messages)
	return out, true
}

// Reset drops every thread.
func (t *Threads) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.threads = make(map[string]*thread)
}

func (t *Threads) get(counterpart string) *thread {
	th, ok := t.threads[counterpart]
	if !ok {
		th = &thread{ids: make(map[string]struct{})}
		t.threads[counterpart] = th
	}
	return th
}

func (th *thread) add(msg models.PrivateMessage) bool {
	if msg.ID != "" {
		if _, ok := th.ids[msg.ID]; ok {
			return false
		}
		th.ids[msg.ID] = struct{}{}
	}
	th.messages = append(th.messages, msg)
	return true
}
