package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/auth"
	"chat-sync/internal/models"
	"chat-sync/internal/upload"
)

type RoomMock struct {
	mock.Mock
}

func (m *RoomMock) Identity() auth.Identity {
	args := m.Called()
	return args.Get(0).(auth.Identity)
}

func (m *RoomMock) RoomID() string {
	args := m.Called()
	return args.String(0)
}

func (m *RoomMock) State() models.ConnectionState {
	args := m.Called()
	return args.Get(0).(models.ConnectionState)
}

func (m *RoomMock) Epoch() uint64 {
	args := m.Called()
	return args.Get(0).(uint64)
}

func (m *RoomMock) PendingJobs() int {
	args := m.Called()
	return args.Int(0)
}

func (m *RoomMock) Messages() []models.Message {
	args := m.Called()
	if val := args.Get(0); val != nil {
		return val.([]models.Message)
	}
	return nil
}

func (m *RoomMock) Participants() []models.Participant {
	args := m.Called()
	if val := args.Get(0); val != nil {
		return val.([]models.Participant)
	}
	return nil
}

func (m *RoomMock) Typing() []string {
	args := m.Called()
	if val := args.Get(0); val != nil {
		return val.([]string)
	}
	return nil
}

func (m *RoomMock) Thread(counterpart string) ([]models.PrivateMessage, bool) {
	args := m.Called(counterpart)
	var list []models.PrivateMessage
	if val := args.Get(0); val != nil {
		list = val.([]models.PrivateMessage)
	}
	return list, args.Bool(1)
}

func (m *RoomMock) SendText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *RoomMock) SendAttachment(ctx context.Context, uploader upload.Uploader, file models.Upload) (models.Attachment, error) {
	args := m.Called(ctx, uploader, file)
	var a models.Attachment
	if val := args.Get(0); val != nil {
		a = val.(models.Attachment)
	}
	return a, args.Error(1)
}

func (m *RoomMock) EditMessage(ctx context.Context, id, newBody string) error {
	return m.Called(ctx, id, newBody).Error(0)
}

func (m *RoomMock) DeleteMessage(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *RoomMock) PinMessage(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *RoomMock) MuteUser(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *RoomMock) UnmuteUser(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *RoomMock) BlockUser(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *RoomMock) UnblockUser(ctx context.Context, username string) error {
	return m.Called(ctx, username).Error(0)
}

func (m *RoomMock) Keystroke(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *RoomMock) StopTyping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *RoomMock) OpenPrivateThread(ctx context.Context, counterpart string) error {
	return m.Called(ctx, counterpart).Error(0)
}

func (m *RoomMock) SendPrivate(ctx context.Context, to, content string) error {
	return m.Called(ctx, to, content).Error(0)
}

func (m *RoomMock) SubmitJob(ctx context.Context, kind, ref string) (string, error) {
	args := m.Called(ctx, kind, ref)
	return args.String(0), args.Error(1)
}
