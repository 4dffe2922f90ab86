package models

import "time"

// NoticeKind classifies what the engine reports to its listeners.
type NoticeKind string

const (
	NoticeState             NoticeKind = "state"
	NoticeReady             NoticeKind = "session_ready"
	NoticeMessagesChanged   NoticeKind = "messages_changed"
	NoticeRosterChanged     NoticeKind = "participants_changed"
	NoticeTypingChanged     NoticeKind = "typing_changed"
	NoticeThreadChanged     NoticeKind = "thread_changed"
	NoticeMessageDeleted    NoticeKind = "message_deleted"
	NoticeUserJoined        NoticeKind = "user_joined"
	NoticeUserLeft          NoticeKind = "user_left"
	NoticeUserMuted         NoticeKind = "user_muted"
	NoticeUserUnmuted       NoticeKind = "user_unmuted"
	NoticeUserBlocked       NoticeKind = "user_blocked"
	NoticeUserUnblocked     NoticeKind = "user_unblocked"
	NoticePrivateMessage    NoticeKind = "private_message"
	NoticeJobCompleted      NoticeKind = "job_completed"
	NoticeJobFailed         NoticeKind = "job_failed"
	NoticeJobTimeout        NoticeKind = "job_timeout"
	NoticeBlocked           NoticeKind = "blocked"
	NoticeConnectionFailure NoticeKind = "connection_failed"
)

// Notice is one change notification from the engine to the presentation
// layer and other listeners.
type Notice struct {
	Kind      NoticeKind      `json:"kind"`
	At        time.Time       `json:"at"`
	Epoch     uint64          `json:"epoch,omitempty"`
	State     ConnectionState `json:"state"`
	Subject   string          `json:"subject,omitempty"`
	Text      string          `json:"text,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Significant reports whether the notice is worth surfacing on its own, as
// opposed to a plain "re-read the snapshot" change.
func (n Notice) Significant() bool {
	switch n.Kind {
	case NoticeMessagesChanged, NoticeRosterChanged, NoticeTypingChanged, NoticeThreadChanged:
		return false
	}
	return true
}

// Level is the severity used when the notice is logged or forwarded.
func (n Notice) Level() string {
	switch n.Kind {
	case NoticeBlocked, NoticeConnectionFailure, NoticeJobFailed, NoticeJobTimeout:
		return "ERROR"
	case NoticeUserMuted, NoticeUserBlocked:
		return "WARN"
	}
	return "INFO"
}
