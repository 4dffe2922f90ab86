package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
	"chat-sync/internal/upload"
)

type SenderMock struct {
	mock.Mock
}

func (m *SenderMock) Send(kind string, payload any) error {
	args := m.Called(kind, payload)
	return args.Error(0)
}

func (m *SenderMock) State() models.ConnectionState {
	args := m.Called()
	return args.Get(0).(models.ConnectionState)
}

type EpisodeRepositoryMock struct {
	mock.Mock
}

func (m *EpisodeRepositoryMock) StartEpisode(ctx context.Context, ep models.Episode) error {
	args := m.Called(ctx, ep)
	return args.Error(0)
}

func (m *EpisodeRepositoryMock) EndEpisode(ctx context.Context, username string, epoch uint64, endedAt time.Time, reason string) error {
	args := m.Called(ctx, username, epoch, endedAt, reason)
	return args.Error(0)
}

func (m *EpisodeRepositoryMock) ListEpisodes(ctx context.Context, username, roomID string, limit int) ([]models.Episode, error) {
	args := m.Called(ctx, username, roomID, limit)
	var list []models.Episode
	if val := args.Get(0); val != nil {
		list = val.([]models.Episode)
	}
	return list, args.Error(1)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Upload(ctx context.Context, file models.Upload) (models.Attachment, error) {
	args := m.Called(ctx, file)
	var a models.Attachment
	if val := args.Get(0); val != nil {
		a = val.(models.Attachment)
	}
	return a, args.Error(1)
}

// PublisherMock stands in for the notice bus and the lifecycle event bus.
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	args := m.Called(ctx, routingKey, message, headers)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

var _ repositories.EpisodeRepository = (*EpisodeRepositoryMock)(nil)
var _ upload.Uploader = (*UploaderMock)(nil)
var _ interface {
	Send(string, any) error
	State() models.ConnectionState
} = (*SenderMock)(nil)
