package models

import "time"

// Episode is one connected lifetime of a session, identified by its epoch.
type Episode struct {
	Epoch     uint64     `db:"epoch" json:"epoch"`
	Username  string     `db:"username" json:"username"`
	RoomID    string     `db:"room_id" json:"room_id"`
	StartedAt time.Time  `db:"started_at" json:"started_at"`
	EndedAt   *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	EndReason *string    `db:"end_reason" json:"end_reason,omitempty"`
}

// Upload is a local file handed to the upload collaborator.
type Upload struct {
	Filename string
	MimeType string
	Size     int64
	Content  []byte
}
