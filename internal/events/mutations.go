package events

import (
	"time"

	"chat-sync/internal/models"
)

// Mutation describes one state change produced by an inbound event.
// The engine applies it to the store, the reconciler, the typing
// coordinator or the correlation table.
type Mutation interface {
	mutation()
}

type ReplaceHistory struct{ Messages []models.Message }

type AppendMessage struct{ Message models.Message }

type DeleteMessage struct{ ID string }

type EditMessage struct {
	ID           string
	NewBody      models.Body
	EditedAt     time.Time
	OriginalBody *models.Body
}

type TogglePin struct{ ID string }

type ReplaceRoster struct{ Participants []models.Participant }

type MarkOnline struct{ Username string }

type MarkOffline struct {
	Username string
	LastSeen *time.Time
}

type SetMuted struct {
	Username string
	Muted    bool
}

type Block struct{ Username string }

type Unblock struct{ Username string }

// SelfBlocked is the notice that this client was blocked from the room.
type SelfBlocked struct{ Reason string }

type TypingStarted struct{ Username string }

type TypingStopped struct{ Username string }

type PrivateAppend struct{ Message models.PrivateMessage }

type PrivateHydrate struct {
	WithUser string
	Messages []models.PrivateMessage
}

type JobCompleted struct {
	JobID  string
	Result string
}

type JobFailed struct {
	JobID string
	Error string
}

func (ReplaceHistory) mutation() {}
func (AppendMessage) mutation()  {}
func (DeleteMessage) mutation()  {}
func (EditMessage) mutation()    {}
func (TogglePin) mutation()      {}
func (ReplaceRoster) mutation()  {}
func (MarkOnline) mutation()     {}
func (MarkOffline) mutation()    {}
func (SetMuted) mutation()       {}
func (Block) mutation()          {}
func (Unblock) mutation()        {}
func (SelfBlocked) mutation()    {}
func (TypingStarted) mutation()  {}
func (TypingStopped) mutation()  {}
func (PrivateAppend) mutation()  {}
func (PrivateHydrate) mutation() {}
func (JobCompleted) mutation()   {}
func (JobFailed) mutation()      {}
