package telemetry

import (
	"context"
	"log"
	"time"

	"chat-sync/internal/models"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NoticeEmitter forwards significant engine notices to the message bus.
type NoticeEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	username    string
	roomID      string
}

type NoticeEnvelope struct {
	SchemaVersion int           `json:"schema_version"`
	EventType     string        `json:"event_type"`
	OccurredAt    string        `json:"occurred_at"`
	Service       string        `json:"service"`
	Environment   string        `json:"environment"`
	Username      string        `json:"username"`
	RoomID        string        `json:"room_id"`
	Payload       NoticePayload `json:"payload"`
}

type NoticePayload struct {
	Level     string `json:"level"`
	Kind      string `json:"kind"`
	Epoch     uint64 `json:"epoch,omitempty"`
	State     string `json:"state"`
	Subject   string `json:"subject,omitempty"`
	Text      string `json:"text,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

func NewNoticeEmitter(publisher Publisher, routingKey, service, environment, username, roomID string) *NoticeEmitter {
	return &NoticeEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		username:    username,
		roomID:      roomID,
	}
}

// Notify implements the engine listener contract.
func (e *NoticeEmitter) Notify(n models.Notice) {
	if !n.Significant() {
		return
	}
	e.Emit(context.Background(), n)
}

func (e *NoticeEmitter) Emit(ctx context.Context, n models.Notice) {
	if e == nil || e.publisher == nil {
		return
	}

	occurred := n.At
	if occurred.IsZero() {
		occurred = time.Now()
	}
	envelope := NoticeEnvelope{
		SchemaVersion: 1,
		EventType:     "chat_notice",
		OccurredAt:    occurred.UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		Username:      e.username,
		RoomID:        e.roomID,
		Payload: NoticePayload{
			Level:     n.Level(),
			Kind:      string(n.Kind),
			Epoch:     n.Epoch,
			State:     n.State.String(),
			Subject:   n.Subject,
			Text:      n.Text,
			RequestID: n.RequestID,
			Error:     n.Error,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("notice publish failed: kind=%s: %v", n.Kind, err)
	}
}
