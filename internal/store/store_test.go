package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func msg(id string, offset time.Duration) models.Message {
	return models.Message{ID: id, Author: "alice", Body: models.TextBody(id), SentAt: t0.Add(offset)}
}

func ids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestApplyHistorySortsBySentAt(t *testing.T) {
	s := New()
	s.ApplyHistory([]models.Message{msg("c", 3*time.Second), msg("a", time.Second), msg("b", 2*time.Second)})

	require.Equal(t, []string{"a", "b", "c"}, ids(s.Messages()))
}

func TestApplyHistoryKeepsTieOrder(t *testing.T) {
	s := New()
	s.ApplyHistory([]models.Message{msg("x", time.Second), msg("y", time.Second), msg("w", 0)})

	require.Equal(t, []string{"w", "x", "y"}, ids(s.Messages()))
}

func TestApplyHistoryReplacesSequence(t *testing.T) {
	s := New()
	s.ApplyNewMessage(msg("old", 0))
	s.ApplyHistory([]models.Message{msg("a", time.Second)})

	require.Equal(t, []string{"a"}, ids(s.Messages()))
	_, ok := s.Get("old")
	assert.False(t, ok)
}

func TestApplyNewMessageIsIdempotent(t *testing.T) {
	s := New()
	s.ApplyHistory([]models.Message{msg("a", time.Second)})

	assert.True(t, s.ApplyNewMessage(msg("b", 2*time.Second)))
	for i := 0; i < 3; i++ {
		assert.False(t, s.ApplyNewMessage(msg("b", 2*time.Second)))
	}

	require.Equal(t, []string{"a", "b"}, ids(s.Messages()))
	require.Equal(t, 2, s.Len())
}

func TestApplyNewMessageAppendsWithoutResorting(t *testing.T) {
	s := New()
	s.ApplyNewMessage(msg("late", 5*time.Second))
	s.ApplyNewMessage(msg("early", time.Second))

	require.Equal(t, []string{"late", "early"}, ids(s.Messages()))
}

func TestMutationsOnUnknownIDAreNoops(t *testing.T) {
	s := New()
	s.ApplyHistory([]models.Message{msg("a", 0)})
	before := s.Messages()

	assert.False(t, s.ApplyEdit("ghost", models.TextBody("x"), t0, nil))
	assert.False(t, s.ApplyDelete("ghost"))
	assert.False(t, s.ApplyPinToggle("ghost"))

	require.Equal(t, before, s.Messages())
}

func TestApplyEditKeepsFirstOriginal(t *testing.T) {
	s := New()
	s.ApplyNewMessage(msg("a", 0))

	require.True(t, s.ApplyEdit("a", models.TextBody("second"), t0.Add(time.Minute), nil))
	require.True(t, s.ApplyEdit("a", models.TextBody("third"), t0.Add(2*time.Minute), nil))

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "third", got.Body.Text)
	require.NotNil(t, got.OriginalBody)
	assert.Equal(t, "a", got.OriginalBody.Text)
	require.NotNil(t, got.EditedAt)
	assert.Equal(t, t0.Add(2*time.Minute), *got.EditedAt)
}

func TestApplyEditPrefersRemoteOriginal(t *testing.T) {
	s := New()
	s.ApplyNewMessage(msg("a", 0))
	original := models.TextBody("server copy")

	s.ApplyEdit("a", models.TextBody("new"), t0, &original)

	got, _ := s.Get("a")
	require.NotNil(t, got.OriginalBody)
	assert.Equal(t, "server copy", got.OriginalBody.Text)
}

func TestApplyDeleteIsSoft(t *testing.T) {
	s := New()
	s.ApplyNewMessage(msg("a", 0))

	require.True(t, s.ApplyDelete("a"))

	got, ok := s.Get("a")
	require.True(t, ok)
	assert.True(t, got.IsDeleted)
	assert.Equal(t, 1, s.Len())
}

func TestApplyPinToggleFlips(t *testing.T) {
	s := New()
	s.ApplyNewMessage(msg("a", 0))

	s.ApplyPinToggle("a")
	got, _ := s.Get("a")
	assert.True(t, got.IsPinned)

	s.ApplyPinToggle("a")
	got, _ = s.Get("a")
	assert.False(t, got.IsPinned)
}

func TestMessagesReturnsCopy(t *testing.T) {
	s := New()
	s.ApplyNewMessage(msg("a", 0))

	snapshot := s.Messages()
	snapshot[0].IsPinned = true

	got, _ := s.Get("a")
	assert.False(t, got.IsPinned)
}

func TestReset(t *testing.T) {
	s := New()
	s.ApplyNewMessage(msg("a", 0))
	s.Reset()

	assert.Equal(t, 0, s.Len())
	assert.True(t, s.ApplyNewMessage(msg("a", 0)))
}
