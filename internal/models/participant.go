package models

import "time"

// Participant is a member of the room roster keyed by username.
type Participant struct {
	Username    string     `json:"username"`
	Color       string     `json:"color,omitempty"`
	IsOnline    bool       `json:"isOnline"`
	IsModerator bool       `json:"isModerator"`
	IsMuted     bool       `json:"isMuted"`
	IsBlocked   bool       `json:"isBlocked"`
	LastSeen    *time.Time `json:"lastSeen,omitempty"`
}
