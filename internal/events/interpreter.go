package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chat-sync/internal/models"
)

var ErrUnknownEvent = errors.New("unknown event kind")

// DecodeError reports a malformed payload. It only ever concerns one event.
type DecodeError struct {
	Kind string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode turns one inbound frame into mutations. It has no side effects.
// The returned kind is the envelope type, or empty if the frame itself is
// not an envelope.
func Decode(frame []byte) (string, []Mutation, error) {
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, &DecodeError{Kind: "envelope", Err: err}
	}
	if env.Type == "" {
		return "", nil, &DecodeError{Kind: "envelope", Err: errors.New("missing type")}
	}
	mutations, err := Interpret(env)
	return env.Type, mutations, err
}

// Interpret maps one envelope to its mutations.
func Interpret(env models.Envelope) ([]Mutation, error) {
	switch env.Type {
	case models.EventHistory:
		history, err := decode[[]*models.Message](env)
		if err != nil {
			return nil, err
		}
		valid := make([]models.Message, 0, len(history))
		for _, msg := range history {
			if msg == nil || msg.ID == "" || msg.SentAt.IsZero() {
				continue
			}
			valid = append(valid, *msg)
		}
		return one(ReplaceHistory{Messages: valid}), nil

	case models.EventMessage:
		msg, err := decode[models.Message](env)
		if err != nil {
			return nil, err
		}
		if msg.ID == "" {
			return nil, &DecodeError{Kind: env.Type, Err: errors.New("missing id")}
		}
		return one(AppendMessage{Message: msg}), nil

	case models.EventMessageDeleted:
		id, err := decodeRef(env, "id")
		if err != nil {
			return nil, err
		}
		return one(DeleteMessage{ID: id}), nil

	case models.EventMessageEdited:
		edit, err := decode[models.MessageEdited](env)
		if err != nil {
			return nil, err
		}
		if edit.ID == "" {
			return nil, &DecodeError{Kind: env.Type, Err: errors.New("missing id")}
		}
		return one(EditMessage{ID: edit.ID, NewBody: edit.NewBody, EditedAt: edit.EditedAt, OriginalBody: edit.OriginalBody}), nil

	case models.EventMessagePinned:
		id, err := decodeRef(env, "id")
		if err != nil {
			return nil, err
		}
		return one(TogglePin{ID: id}), nil

	case models.EventRoster:
		roster, err := decode[[]models.Participant](env)
		if err != nil {
			return nil, err
		}
		return one(ReplaceRoster{Participants: roster}), nil

	case models.EventUserJoined:
		username, err := decodeRef(env, "username")
		if err != nil {
			return nil, err
		}
		return one(MarkOnline{Username: username}), nil

	case models.EventUserLeft:
		left, err := decode[models.UserLeft](env)
		if err != nil {
			return nil, err
		}
		if left.Username == "" {
			return nil, &DecodeError{Kind: env.Type, Err: errors.New("missing username")}
		}
		return []Mutation{MarkOffline{Username: left.Username, LastSeen: left.LastSeen}, TypingStopped{Username: left.Username}}, nil

	case models.EventUserMuted, models.EventUserUnmuted:
		username, err := decodeRef(env, "username")
		if err != nil {
			return nil, err
		}
		return one(SetMuted{Username: username, Muted: env.Type == models.EventUserMuted}), nil

	case models.EventUserBlocked:
		username, err := decodeRef(env, "username")
		if err != nil {
			return nil, err
		}
		return []Mutation{Block{Username: username}, TypingStopped{Username: username}}, nil

	case models.EventUserUnblocked:
		username, err := decodeRef(env, "username")
		if err != nil {
			return nil, err
		}
		return one(Unblock{Username: username}), nil

	case models.EventBlocked:
		notice, err := decodeOptional[models.BlockedNotice](env)
		if err != nil {
			return nil, err
		}
		return one(SelfBlocked{Reason: notice.Reason}), nil

	case models.EventUserTyping:
		username, err := decodeRef(env, "username")
		if err != nil {
			return nil, err
		}
		return one(TypingStarted{Username: username}), nil

	case models.EventUserStoppedTyping:
		username, err := decodeRef(env, "username")
		if err != nil {
			return nil, err
		}
		return one(TypingStopped{Username: username}), nil

	case models.EventPrivateMessage:
		msg, err := decode[models.PrivateMessage](env)
		if err != nil {
			return nil, err
		}
		if msg.From == "" || msg.To == "" {
			return nil, &DecodeError{Kind: env.Type, Err: errors.New("missing from or to")}
		}
		return one(PrivateAppend{Message: msg}), nil

	case models.EventPrivateMessageHistory:
		history, err := decode[models.PrivateHistory](env)
		if err != nil {
			return nil, err
		}
		if history.WithUser == "" {
			return nil, &DecodeError{Kind: env.Type, Err: errors.New("missing withUser")}
		}
		return one(PrivateHydrate{WithUser: history.WithUser, Messages: history.Messages}), nil

	case models.EventJobCompleted:
		done, err := decode[models.JobCompleted](env)
		if err != nil {
			return nil, err
		}
		if done.JobID == "" {
			return nil, &DecodeError{Kind: env.Type, Err: errors.New("missing jobId")}
		}
		return one(JobCompleted{JobID: done.JobID, Result: done.Result}), nil

	case models.EventJobFailed:
		failed, err := decode[models.JobFailed](env)
		if err != nil {
			return nil, err
		}
		if failed.JobID == "" {
			return nil, &DecodeError{Kind: env.Type, Err: errors.New("missing jobId")}
		}
		return one(JobFailed{JobID: failed.JobID, Error: failed.Error}), nil
	}

	return nil, fmt.Errorf("%q: %w", env.Type, ErrUnknownEvent)
}

func one(m Mutation) []Mutation {
	return []Mutation{m}
}

func decode[T any](env models.Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return out, &DecodeError{Kind: env.Type, Err: errors.New("empty payload")}
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, &DecodeError{Kind: env.Type, Err: err}
	}
	return out, nil
}

func decodeOptional[T any](env models.Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, &DecodeError{Kind: env.Type, Err: err}
	}
	return out, nil
}

// decodeRef reads a single identifier sent either as a bare JSON string or as
// an object carrying it under field.
func decodeRef(env models.Envelope, field string) (string, error) {
	if len(env.Data) == 0 {
		return "", &DecodeError{Kind: env.Type, Err: errors.New("empty payload")}
	}
	var bare string
	if err := json.Unmarshal(env.Data, &bare); err == nil {
		if strings.TrimSpace(bare) == "" {
			return "", &DecodeError{Kind: env.Type, Err: errors.New("empty " + field)}
		}
		return bare, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(env.Data, &obj); err != nil {
		return "", &DecodeError{Kind: env.Type, Err: err}
	}
	raw, ok := obj[field]
	if !ok {
		return "", &DecodeError{Kind: env.Type, Err: errors.New("missing " + field)}
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil || value == "" {
		return "", &DecodeError{Kind: env.Type, Err: fmt.Errorf("invalid %s", field)}
	}
	return value, nil
}
