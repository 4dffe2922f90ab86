package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
)

func TestNotifyForwardsSignificantNotices(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewNoticeEmitter(publisher, "chatsync.notices", "chat-sync", "test", "alice", "R1")

	var got NoticeEnvelope
	publisher.On("Publish", mock.Anything, "chatsync.notices", mock.AnythingOfType("telemetry.NoticeEnvelope")).
		Run(func(args mock.Arguments) { got = args.Get(2).(NoticeEnvelope) }).
		Return(nil).Once()

	emitter.Notify(models.Notice{
		Kind:    models.NoticeBlocked,
		At:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		State:   models.StateDisconnected,
		Subject: "alice",
		Text:    "spam",
	})

	publisher.AssertExpectations(t)
	require.Equal(t, "chat_notice", got.EventType)
	assert.Equal(t, "R1", got.RoomID)
	assert.Equal(t, "ERROR", got.Payload.Level)
	assert.Equal(t, "blocked", got.Payload.Kind)
	assert.Equal(t, "disconnected", got.Payload.State)
	assert.Equal(t, "2024-05-01T12:00:00Z", got.OccurredAt)
}

func TestNotifySkipsSnapshotChanges(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewNoticeEmitter(publisher, "chatsync.notices", "chat-sync", "test", "alice", "R1")

	emitter.Notify(models.Notice{Kind: models.NoticeMessagesChanged})
	emitter.Notify(models.Notice{Kind: models.NoticeTypingChanged})

	publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestEmitPublishErrorIsSwallowed(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewNoticeEmitter(publisher, "k", "chat-sync", "test", "alice", "R1")
	publisher.On("Publish", mock.Anything, "k", mock.Anything).Return(assert.AnError).Once()

	emitter.Notify(models.Notice{Kind: models.NoticeJobTimeout, RequestID: "job-1"})

	publisher.AssertExpectations(t)
}

func TestNilEmitter(t *testing.T) {
	var emitter *NoticeEmitter
	assert.NotPanics(t, func() { emitter.Notify(models.Notice{Kind: models.NoticeBlocked}) })
}
