package engine

import "sync"

// mailbox is the unbounded FIFO feeding the engine loop. Pushing never
// blocks, so the loop may post to itself.
type mailbox struct {
	mu     sync.Mutex
	items  []func()
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) push(fn func()) {
	m.mu.Lock()
	m.items = append(m.items, fn)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}
