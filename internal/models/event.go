package models

import (
	"encoding/json"
	"time"
)

// Inbound event kinds.
const (
	EventHistory               = "history"
	EventMessage               = "message"
	EventMessageDeleted        = "messageDeleted"
	EventMessageEdited         = "messageEdited"
	EventMessagePinned         = "messagePinned"
	EventRoster                = "roster"
	EventUserJoined            = "userJoined"
	EventUserLeft              = "userLeft"
	EventUserMuted             = "userMuted"
	EventUserUnmuted           = "userUnmuted"
	EventUserBlocked           = "userBlocked"
	EventUserUnblocked         = "userUnblocked"
	EventBlocked               = "blocked"
	EventUserTyping            = "userTyping"
	EventUserStoppedTyping     = "userStoppedTyping"
	EventPrivateMessage        = "privateMessage"
	EventPrivateMessageHistory = "privateMessageHistory"
	EventJobCompleted          = "jobCompleted"
	EventJobFailed             = "jobFailed"
)

// Outbound intent kinds.
const (
	IntentMessage            = "message"
	IntentDeleteMessage      = "deleteMessage"
	IntentPinMessage         = "pinMessage"
	IntentEditMessage        = "editMessage"
	IntentMuteUser           = "muteUser"
	IntentUnmuteUser         = "unmuteUser"
	IntentBlockUser          = "blockUser"
	IntentUnblockUser        = "unblockUser"
	IntentTyping             = "typing"
	IntentStopTyping         = "stopTyping"
	IntentPrivateMessage     = "privateMessage"
	IntentGetPrivateMessages = "getPrivateMessages"
	IntentSubmitJob          = "submitJob"
)

// Envelope is the frame exchanged over the event stream in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MessageRef names a message by id.
type MessageRef struct {
	ID string `json:"id"`
}

// MessageEdited is the payload of an inbound edit.
type MessageEdited struct {
	ID           string    `json:"id"`
	NewBody      Body      `json:"newBody"`
	EditedAt     time.Time `json:"editedAt"`
	OriginalBody *Body     `json:"originalBody,omitempty"`
}

// UserRef names a participant.
type UserRef struct {
	Username string `json:"username"`
}

// UserLeft is the payload of a departure.
type UserLeft struct {
	Username string     `json:"username"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

// BlockedNotice tells this client it was blocked from the room.
type BlockedNotice struct {
	Reason string `json:"reason"`
}

// PrivateHistory hydrates one private thread.
type PrivateHistory struct {
	WithUser string           `json:"withUser"`
	Messages []PrivateMessage `json:"messages"`
}

// JobCompleted carries the result of an asynchronous job.
type JobCompleted struct {
	JobID  string `json:"jobId"`
	Result string `json:"result"`
}

// JobFailed carries the failure of an asynchronous job.
type JobFailed struct {
	JobID string `json:"jobId"`
	Error string `json:"error"`
}

// Outbound payloads.

type SendMessage struct {
	Body string `json:"body"`
}

type EditMessage struct {
	ID      string `json:"id"`
	NewBody string `json:"newBody"`
}

type SendPrivate struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

type GetPrivateMessages struct {
	WithUser string `json:"withUser"`
}

type SubmitJob struct {
	JobID string `json:"jobId"`
	Kind  string `json:"kind"`
	Ref   string `json:"ref"`
}
