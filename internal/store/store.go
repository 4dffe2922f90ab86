package store

import (
	"sort"
	"sync"
	"time"

	"chat-sync/internal/models"
)

// Store holds the room's message sequence. Every mutation is total over
// present and absent ids: an unknown id is a silent no-op.
type Store struct {
	messages []models.Message
	index    map[string]int
	mu       sync.RWMutex
}

// New creates an empty store.
func New() *Store {
	return &Store{index: make(map[string]int)}
}

// ApplyHistory replaces the sequence with the snapshot sorted by send time.
// Ties keep their snapshot order. Duplicate ids keep the first occurrence.
func (s *Store) ApplyHistory(history []models.Message) {
	sorted := make([]models.Message, 0, len(history))
	seen := make(map[string]struct{}, len(history))
	for _, msg := range history {
		if msg.ID == "" {
			continue
		}
		if _, ok := seen[msg.ID]; ok {
			continue
		}
		seen[msg.ID] = struct{}{}
		sorted = append(sorted, msg)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SentAt.Before(sorted[j].SentAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = sorted
	s.reindex()
}

// ApplyNewMessage appends msg unless its id is already stored.
// It reports whether the message was appended.
func (s *Store) ApplyNewMessage(msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[msg.ID]; ok {
		return false
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	return true
}

// ApplyEdit replaces the body of id. The pre-edit body is kept only on the
// first edit.
func (s *Store) ApplyEdit(id string, newBody models.Body, editedAt time.Time, original *models.Body) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return false
	}
	msg := &s.messages[pos]
	if msg.OriginalBody == nil {
		prev := msg.Body
		if original != nil {
			prev = *original
		}
		msg.OriginalBody = &prev
	}
	msg.Body = newBody
	at := editedAt
	msg.EditedAt = &at
	return true
}

// ApplyDelete marks id as deleted. The message stays in the sequence.
func (s *Store) ApplyDelete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return false
	}
	s.messages[pos].IsDeleted = true
	return true
}

// ApplyPinToggle flips the pinned flag of id.
func (s *Store) ApplyPinToggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return false
	}
	s.messages[pos].IsPinned = !s.messages[pos].IsPinned
	return true
}

// Get returns a copy of one message.
func (s *Store) Get(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[id]
	if !ok {
		return models.Message{}, false
	}
	return s.messages[pos], true
}

// Messages returns a snapshot of the sequence.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of stored messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Reset drops every message.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.index = make(map[string]int)
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.messages))
	for i, msg := range s.messages {
		s.index[msg.ID] = i
	}
}
