package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-sync/internal/auth"
	"chat-sync/internal/models"
	"chat-sync/internal/observability"
)

var (
	ErrIntentRejected = errors.New("intent rejected: not connected")
	ErrNotModerator   = errors.New("intent requires moderator")
	ErrEmptyBody      = errors.New("message body is empty")
	ErrEmptyTarget    = errors.New("intent target is empty")
)

// Sender is the transport handle intents are written to.
type Sender interface {
	Send(kind string, payload any) error
	State() models.ConnectionState
}

// Dispatcher translates user actions into outbound events. It keeps no state:
// an intent issued while not connected is dropped, never queued.
type Dispatcher struct {
	current  func() Sender
	identity auth.Identity
}

// New builds a dispatcher writing to whatever current returns.
func New(current func() Sender, identity auth.Identity) *Dispatcher {
	return &Dispatcher{current: current, identity: identity}
}

// Identity returns the user the dispatcher acts for.
func (d *Dispatcher) Identity() auth.Identity {
	return d.identity
}

func (d *Dispatcher) SendMessage(ctx context.Context, body models.Body) error {
	content := body.Content()
	if strings.TrimSpace(content) == "" {
		return ErrEmptyBody
	}
	return d.send(ctx, models.IntentMessage, models.SendMessage{Body: content}, "")
}

func (d *Dispatcher) DeleteMessage(ctx context.Context, id string) error {
	if err := d.moderator(models.IntentDeleteMessage); err != nil {
		return err
	}
	return d.sendRef(ctx, models.IntentDeleteMessage, id)
}

func (d *Dispatcher) PinMessage(ctx context.Context, id string) error {
	if err := d.moderator(models.IntentPinMessage); err != nil {
		return err
	}
	return d.sendRef(ctx, models.IntentPinMessage, id)
}

func (d *Dispatcher) EditMessage(ctx context.Context, id, newBody string) error {
	if id == "" {
		return ErrEmptyTarget
	}
	if strings.TrimSpace(newBody) == "" {
		return ErrEmptyBody
	}
	return d.send(ctx, models.IntentEditMessage, models.EditMessage{ID: id, NewBody: newBody}, id)
}

func (d *Dispatcher) MuteUser(ctx context.Context, username string) error {
	return d.moderate(ctx, models.IntentMuteUser, username)
}

func (d *Dispatcher) UnmuteUser(ctx context.Context, username string) error {
	return d.moderate(ctx, models.IntentUnmuteUser, username)
}

func (d *Dispatcher) BlockUser(ctx context.Context, username string) error {
	return d.moderate(ctx, models.IntentBlockUser, username)
}

func (d *Dispatcher) UnblockUser(ctx context.Context, username string) error {
	return d.moderate(ctx, models.IntentUnblockUser, username)
}

func (d *Dispatcher) TypingStarted(ctx context.Context) error {
	return d.send(ctx, models.IntentTyping, nil, "")
}

func (d *Dispatcher) TypingStopped(ctx context.Context) error {
	return d.send(ctx, models.IntentStopTyping, nil, "")
}

func (d *Dispatcher) SendPrivate(ctx context.Context, to, content string) error {
	if to == "" {
		return ErrEmptyTarget
	}
	if strings.TrimSpace(content) == "" {
		return ErrEmptyBody
	}
	return d.send(ctx, models.IntentPrivateMessage, models.SendPrivate{To: to, Content: strings.TrimSpace(content)}, to)
}

func (d *Dispatcher) GetPrivateMessages(ctx context.Context, withUser string) error {
	if withUser == "" {
		return ErrEmptyTarget
	}
	return d.send(ctx, models.IntentGetPrivateMessages, models.GetPrivateMessages{WithUser: withUser}, withUser)
}

func (d *Dispatcher) SubmitJob(ctx context.Context, jobID, kind, ref string) error {
	if jobID == "" || ref == "" {
		return ErrEmptyTarget
	}
	return d.send(ctx, models.IntentSubmitJob, models.SubmitJob{JobID: jobID, Kind: kind, Ref: ref}, jobID)
}

func (d *Dispatcher) moderate(ctx context.Context, intent, username string) error {
	if err := d.moderator(intent); err != nil {
		return err
	}
	if username == "" {
		return ErrEmptyTarget
	}
	return d.send(ctx, intent, models.UserRef{Username: username}, username)
}

func (d *Dispatcher) sendRef(ctx context.Context, intent, id string) error {
	if id == "" {
		return ErrEmptyTarget
	}
	return d.send(ctx, intent, models.MessageRef{ID: id}, id)
}

func (d *Dispatcher) moderator(intent string) error {
	if d.identity.IsModerator {
		return nil
	}
	observability.IncIntent(intent, "forbidden")
	log.Printf("intent dropped intent=%s username=%s: %v", intent, d.identity.Username, ErrNotModerator)
	return ErrNotModerator
}

func (d *Dispatcher) send(ctx context.Context, intent string, payload any, target string) error {
	_, span := otel.Tracer("chat-sync/dispatch").Start(ctx, "intent."+intent, trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()
	span.SetAttributes(attribute.String("chat.intent", intent), attribute.String("chat.target", target))

	var sender Sender
	if d.current != nil {
		sender = d.current()
	}
	if sender == nil || sender.State() != models.StateConnected {
		observability.IncIntent(intent, "rejected")
		log.Printf("intent dropped intent=%s target=%s: %v", intent, target, ErrIntentRejected)
		span.SetStatus(codes.Error, ErrIntentRejected.Error())
		return ErrIntentRejected
	}

	if err := sender.Send(intent, payload); err != nil {
		observability.IncIntent(intent, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: %v", ErrIntentRejected, err)
	}
	observability.IncIntent(intent, "sent")
	return nil
}
