package correlation

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

const DefaultTimeout = 30 * time.Second

var (
	ErrJobTimeout       = errors.New("job timed out")
	ErrUnknownRequest   = errors.New("unknown request")
	ErrDuplicateRequest = errors.New("request already pending")
	ErrConnectionLost   = errors.New("connection lost before the job completed")
)

// JobError is a failure reported by the remote service for one request.
type JobError struct {
	RequestID string
	Message   string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.RequestID, e.Message)
}

// Pending is an issued request awaiting its completion event.
type Pending struct {
	RequestID string
	Kind      string
	Epoch     uint64
	IssuedAt  time.Time
}

// Outcome is the resolution of a pending request. Err is nil on success.
type Outcome struct {
	Pending
	Result string
	Err    error
}

// Table matches issued requests with their out-of-band completions.
type Table struct {
	timeout time.Duration
	now     func() time.Time
	pending map[string]Pending
	mu      sync.Mutex
}

// NewTable creates a table whose entries expire after timeout.
func NewTable(timeout time.Duration) *Table {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Table{timeout: timeout, now: time.Now, pending: make(map[string]Pending)}
}

// Issue records a pending request made during the connected episode epoch.
func (t *Table) Issue(kind, requestID string, epoch uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[requestID]; ok {
		return fmt.Errorf("%s: %w", requestID, ErrDuplicateRequest)
	}
	t.pending[requestID] = Pending{RequestID: requestID, Kind: kind, Epoch: epoch, IssuedAt: t.now()}
	return nil
}

// Resolve removes requestID and returns its successful outcome.
func (t *Table) Resolve(requestID, result string) (Outcome, error) {
	p, err := t.take(requestID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Pending: p, Result: result}, nil
}

// Fail removes requestID and returns its failed outcome.
func (t *Table) Fail(requestID, message string) (Outcome, error) {
	p, err := t.take(requestID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Pending: p, Err: &JobError{RequestID: requestID, Message: message}}, nil
}

// Reap removes every entry older than the timeout and returns one timeout
// outcome per removed entry, oldest first.
func (t *Table) Reap() []Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	deadline := t.now().Add(-t.timeout)
	var expired []Outcome
	for id, p := range t.pending {
		if p.IssuedAt.After(deadline) {
			continue
		}
		delete(t.pending, id)
		expired = append(expired, Outcome{Pending: p, Err: fmt.Errorf("%s: %w", id, ErrJobTimeout)})
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].IssuedAt.Before(expired[j].IssuedAt)
	})
	return expired
}

// CancelEpoch removes the entries issued during epoch and returns one
// ErrConnectionLost outcome per entry, oldest first.
func (t *Table) CancelEpoch(epoch uint64) []Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	var cancelled []Outcome
	for id, p := range t.pending {
		if p.Epoch != epoch {
			continue
		}
		delete(t.pending, id)
		cancelled = append(cancelled, Outcome{Pending: p, Err: fmt.Errorf("%s: %w", id, ErrConnectionLost)})
	}
	sort.Slice(cancelled, func(i, j int) bool {
		return cancelled[i].IssuedAt.Before(cancelled[j].IssuedAt)
	})
	return cancelled
}

// CancelAll drops every pending entry and returns how many were dropped.
func (t *Table) CancelAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.pending)
	t.pending = make(map[string]Pending)
	return n
}

// Len returns the number of pending entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Lookup returns the pending entry for requestID.
func (t *Table) Lookup(requestID string) (Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[requestID]
	return p, ok
}

func (t *Table) take(requestID string) (Pending, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[requestID]
	if !ok {
		return Pending{}, fmt.Errorf("%s: %w", requestID, ErrUnknownRequest)
	}
	delete(t.pending, requestID)
	return p, nil
}
