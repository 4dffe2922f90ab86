package presence

import (
	"sort"
	"sync"
	"time"

	"chat-sync/internal/models"
)

// Reconciler merges presence patches into the participant map. Only the
// roster snapshot replaces the map; every later event is a patch, and a patch
// for an unknown username inserts it with default fields.
type Reconciler struct {
	participants map[string]models.Participant
	blocked      map[string]struct{}
	mu           sync.RWMutex
}

// NewReconciler creates an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		participants: make(map[string]models.Participant),
		blocked:      make(map[string]struct{}),
	}
}

// ApplyRosterSnapshot replaces the participant map. Blocked entries are kept
// out of the visible set.
func (r *Reconciler) ApplyRosterSnapshot(roster []models.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = make(map[string]models.Participant, len(roster))
	r.blocked = make(map[string]struct{})
	for _, p := range roster {
		if p.Username == "" {
			continue
		}
		if p.IsBlocked {
			r.blocked[p.Username] = struct{}{}
			continue
		}
		r.participants[p.Username] = p
	}
}

// MarkOnline flags username as online.
func (r *Reconciler) MarkOnline(username string, at time.Time) bool {
	return r.patch(username, func(p *models.Participant) {
		p.IsOnline = true
		seen := at
		p.LastSeen = &seen
	})
}

// MarkOffline flags username as offline and records when it was last seen.
func (r *Reconciler) MarkOffline(username string, lastSeen *time.Time) bool {
	return r.patch(username, func(p *models.Participant) {
		p.IsOnline = false
		if lastSeen != nil {
			seen := *lastSeen
			p.LastSeen = &seen
		}
	})
}

// SetMuted sets the muted flag of username.
func (r *Reconciler) SetMuted(username string, muted bool) bool {
	return r.patch(username, func(p *models.Participant) {
		p.IsMuted = muted
	})
}

// RemoveOnBlock deletes username from the visible set. Stored messages of the
// user are untouched.
func (r *Reconciler) RemoveOnBlock(username string) bool {
	if username == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocked[username] = struct{}{}
	if _, ok := r.participants[username]; !ok {
		return false
	}
	delete(r.participants, username)
	return true
}

// Unblock lifts a block. The user reappears on their next presence event.
func (r *Reconciler) Unblock(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blocked[username]; !ok {
		return false
	}
	delete(r.blocked, username)
	return true
}

// IsBlocked reports whether username is currently blocked in the room.
func (r *Reconciler) IsBlocked(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.blocked[username]
	return ok
}

// Get returns one participant.
func (r *Reconciler) Get(username string) (models.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[username]
	return p, ok
}

// Len returns the number of visible participants.
func (r *Reconciler) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Sorted returns the visible participants ordered for display: online first,
// then moderators, then by username.
func (r *Reconciler) Sorted() []models.Participant {
	r.mu.RLock()
	out := make([]models.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsOnline != b.IsOnline {
			return a.IsOnline
		}
		if a.IsModerator != b.IsModerator {
			return a.IsModerator
		}
		return a.Username < b.Username
	})
	return out
}

// Reset drops every participant and block.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants = make(map[string]models.Participant)
	r.blocked = make(map[string]struct{})
}

// patch applies fn to username, inserting a default entry when absent.
// Blocked users are not reinserted.
func (r *Reconciler) patch(username string, fn func(*models.Participant)) bool {
	if username == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blocked[username]; ok {
		return false
	}
	p, ok := r.participants[username]
	if !ok {
		p = models.Participant{Username: username}
	}
	fn(&p)
	r.participants[username] = p
	return true
}
