package engine

import (
	"log"
	"sync"

	"chat-sync/internal/models"
)

// Listener receives engine notices on the engine loop. Implementations must
// not block and must not call back into the engine synchronously.
type Listener interface {
	Notify(models.Notice)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(models.Notice)

func (f ListenerFunc) Notify(n models.Notice) { f(n) }

// subscribers fans notices out to channels, dropping when a reader lags.
type subscribers struct {
	mu   sync.Mutex
	next int
	subs map[int]chan models.Notice
}

func (s *subscribers) add(buffer int) (int, chan models.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]chan models.Notice)
	}
	s.next++
	ch := make(chan models.Notice, buffer)
	s.subs[s.next] = ch
	return s.next, ch
}

func (s *subscribers) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *subscribers) Notify(n models.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- n:
		default:
			log.Printf("notice dropped subscriber=%d kind=%s", id, n.Kind)
		}
	}
}
