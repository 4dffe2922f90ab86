package repositories

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"chat-sync/internal/models"
)

// EpisodeRepository journals connected episodes. It never stores chat content.
type EpisodeRepository interface {
	StartEpisode(ctx context.Context, ep models.Episode) error
	EndEpisode(ctx context.Context, username string, epoch uint64, endedAt time.Time, reason string) error
	ListEpisodes(ctx context.Context, username, roomID string, limit int) ([]models.Episode, error)
}

type episodeRepo struct {
	db *sqlx.DB
}

// NewEpisodeRepo builds an EpisodeRepository backed by Postgres.
func NewEpisodeRepo(db *sqlx.DB) EpisodeRepository {
	return &episodeRepo{db: db}
}

func (r *episodeRepo) StartEpisode(ctx context.Context, ep models.Episode) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO episodes (epoch, username, room_id, started_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (username, epoch, started_at) DO NOTHING`, int64(ep.Epoch), ep.Username, ep.RoomID, ep.StartedAt)
	return err
}

// EndEpisode closes the latest open episode of username with the given epoch.
func (r *episodeRepo) EndEpisode(ctx context.Context, username string, epoch uint64, endedAt time.Time, reason string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE episodes SET ended_at = $3, end_reason = $4
        WHERE id = (SELECT id FROM episodes
            WHERE username = $1 AND epoch = $2 AND ended_at IS NULL
            ORDER BY started_at DESC LIMIT 1)`,
		username, int64(epoch), endedAt, reason)
	return err
}

func (r *episodeRepo) ListEpisodes(ctx context.Context, username, roomID string, limit int) ([]models.Episode, error) {
	if limit <= 0 {
		limit = 50
	}
	var episodes []models.Episode
	err := r.db.SelectContext(ctx, &episodes, `SELECT epoch, username, room_id, started_at, ended_at, end_reason
        FROM episodes
        WHERE username = $1 AND room_id = $2
        ORDER BY started_at DESC
        LIMIT $3`, username, roomID, limit)
	return episodes, err
}
