package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
)

func decodeOne(t *testing.T, frame string) Mutation {
	t.Helper()
	_, mutations, err := Decode([]byte(frame))
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	return mutations[0]
}

func TestDecodeHistoryDropsInvalidEntries(t *testing.T) {
	m := decodeOne(t, `{"type":"history","data":[
		{"id":"b","username":"bob","content":"hi","timestamp":"2024-05-01T12:00:02Z"},
		null,
		{"id":"x","username":"bob","content":"no time"},
		{"id":"a","username":"amy","content":"yo","timestamp":"2024-05-01T12:00:01Z"}
	]}`)

	history, ok := m.(ReplaceHistory)
	require.True(t, ok)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "b", history.Messages[0].ID)
	assert.Equal(t, "a", history.Messages[1].ID)
}

func TestDecodeMessageParsesBodyOnce(t *testing.T) {
	m := decodeOne(t, `{"type":"message","data":{"id":"p1","username":"amy","timestamp":"2024-05-01T12:00:00Z",
		"content":"{\"type\":\"pdf\",\"url\":\"https://files/doc-7\",\"filename\":\"a.pdf\",\"size\":2048,\"pages\":3}"}}`)

	appended, ok := m.(AppendMessage)
	require.True(t, ok)
	body := appended.Message.Body
	assert.Equal(t, models.BodyPDF, body.Kind)
	require.NotNil(t, body.Attachment)
	assert.Equal(t, 3, body.Attachment.PageCount)
	assert.Equal(t, "a.pdf", body.Attachment.Filename)
}

func TestDecodeMessageWithoutIDFails(t *testing.T) {
	_, _, err := Decode([]byte(`{"type":"message","data":{"content":"hi"}}`))

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "message", decodeErr.Kind)
}

func TestDecodeRefAcceptsBareAndObject(t *testing.T) {
	assert.Equal(t, DeleteMessage{ID: "m1"}, decodeOne(t, `{"type":"messageDeleted","data":"m1"}`))
	assert.Equal(t, DeleteMessage{ID: "m1"}, decodeOne(t, `{"type":"messageDeleted","data":{"id":"m1"}}`))
	assert.Equal(t, TogglePin{ID: "m2"}, decodeOne(t, `{"type":"messagePinned","data":{"id":"m2"}}`))
	assert.Equal(t, MarkOnline{Username: "alice"}, decodeOne(t, `{"type":"userJoined","data":"alice"}`))
	assert.Equal(t, SetMuted{Username: "bob", Muted: true}, decodeOne(t, `{"type":"userMuted","data":{"username":"bob"}}`))
	assert.Equal(t, SetMuted{Username: "bob", Muted: false}, decodeOne(t, `{"type":"userUnmuted","data":"bob"}`))
	assert.Equal(t, Unblock{Username: "eve"}, decodeOne(t, `{"type":"userUnblocked","data":"eve"}`))
	assert.Equal(t, TypingStarted{Username: "amy"}, decodeOne(t, `{"type":"userTyping","data":"amy"}`))
	assert.Equal(t, TypingStopped{Username: "amy"}, decodeOne(t, `{"type":"userStoppedTyping","data":{"username":"amy"}}`))
}

func TestDecodeEdit(t *testing.T) {
	m := decodeOne(t, `{"type":"messageEdited","data":{"id":"m1","newBody":"fixed","editedAt":"2024-05-01T12:05:00Z","originalBody":"typo"}}`)

	edit, ok := m.(EditMessage)
	require.True(t, ok)
	assert.Equal(t, "fixed", edit.NewBody.Text)
	require.NotNil(t, edit.OriginalBody)
	assert.Equal(t, "typo", edit.OriginalBody.Text)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC), edit.EditedAt)
}

func TestDecodeUserLeftAlsoStopsTyping(t *testing.T) {
	_, mutations, err := Decode([]byte(`{"type":"userLeft","data":{"username":"bob","lastSeen":"2024-05-01T12:00:00Z"}}`))
	require.NoError(t, err)
	require.Len(t, mutations, 2)

	offline, ok := mutations[0].(MarkOffline)
	require.True(t, ok)
	assert.Equal(t, "bob", offline.Username)
	require.NotNil(t, offline.LastSeen)
	assert.Equal(t, TypingStopped{Username: "bob"}, mutations[1])
}

func TestDecodeUserBlocked(t *testing.T) {
	_, mutations, err := Decode([]byte(`{"type":"userBlocked","data":"mallory"}`))
	require.NoError(t, err)
	assert.Equal(t, []Mutation{Block{Username: "mallory"}, TypingStopped{Username: "mallory"}}, mutations)
}

func TestDecodeBlockedNotice(t *testing.T) {
	assert.Equal(t, SelfBlocked{Reason: "spam"}, decodeOne(t, `{"type":"blocked","data":{"reason":"spam"}}`))
	assert.Equal(t, SelfBlocked{}, decodeOne(t, `{"type":"blocked"}`))
}

func TestDecodeRoster(t *testing.T) {
	m := decodeOne(t, `{"type":"roster","data":[{"username":"amy","isOnline":true,"isModerator":true}]}`)

	roster, ok := m.(ReplaceRoster)
	require.True(t, ok)
	require.Len(t, roster.Participants, 1)
	assert.True(t, roster.Participants[0].IsModerator)
}

func TestDecodePrivate(t *testing.T) {
	m := decodeOne(t, `{"type":"privateMessage","data":{"id":"p1","from":"bob","to":"me","content":"psst","timestamp":"2024-05-01T12:00:00Z"}}`)
	appended, ok := m.(PrivateAppend)
	require.True(t, ok)
	assert.Equal(t, "bob", appended.Message.Counterpart("me"))

	m = decodeOne(t, `{"type":"privateMessageHistory","data":{"withUser":"bob","messages":[{"id":"p0","from":"me","to":"bob","content":"hey"}]}}`)
	hydrate, ok := m.(PrivateHydrate)
	require.True(t, ok)
	assert.Equal(t, "bob", hydrate.WithUser)
	assert.Len(t, hydrate.Messages, 1)

	_, _, err := Decode([]byte(`{"type":"privateMessage","data":{"id":"p1","content":"psst"}}`))
	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestDecodeJobs(t *testing.T) {
	assert.Equal(t, JobCompleted{JobID: "job-1", Result: "summary"}, decodeOne(t, `{"type":"jobCompleted","data":{"jobId":"job-1","result":"summary"}}`))
	assert.Equal(t, JobFailed{JobID: "job-1", Error: "boom"}, decodeOne(t, `{"type":"jobFailed","data":{"jobId":"job-1","error":"boom"}}`))
}

func TestDecodeUnknownKind(t *testing.T) {
	kind, mutations, err := Decode([]byte(`{"type":"roomCreated","data":{}}`))

	assert.Equal(t, "roomCreated", kind)
	assert.Nil(t, mutations)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeMalformedFrames(t *testing.T) {
	frames := []string{
		`not json`,
		`{"data":{}}`,
		`{"type":"message","data":"oops"}`,
		`{"type":"roster","data":{"username":"amy"}}`,
		`{"type":"userJoined","data":{"name":"amy"}}`,
		`{"type":"messageEdited","data":{"newBody":"x"}}`,
		`{"type":"jobCompleted","data":{}}`,
	}
	for _, frame := range frames {
		_, _, err := Decode([]byte(frame))
		var decodeErr *DecodeError
		assert.True(t, errors.As(err, &decodeErr), frame)
	}
}
