package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
)

const journalTimeout = 5 * time.Second

// Journal records connected episodes in the episode repository. Writes run
// on a worker goroutine; when the queue is full entries are dropped.
type Journal struct {
	repo     repositories.EpisodeRepository
	username string
	roomID   string

	mu     sync.Mutex
	closed bool
	queue  chan models.Notice
	wg     sync.WaitGroup
}

func NewJournal(repo repositories.EpisodeRepository, username, roomID string, buffer int) *Journal {
	if buffer <= 0 {
		buffer = 64
	}
	j := &Journal{repo: repo, username: username, roomID: roomID, queue: make(chan models.Notice, buffer)}
	j.wg.Add(1)
	go j.run()
	return j
}

// Notify implements the engine listener contract.
func (j *Journal) Notify(n models.Notice) {
	if !journaled(n) {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- n:
	default:
		log.Printf("episode journal full, dropped kind=%s epoch=%d", n.Kind, n.Epoch)
	}
}

// Close drains pending writes and stops the worker.
func (j *Journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()
	j.wg.Wait()
}

func journaled(n models.Notice) bool {
	if n.Epoch == 0 {
		return false
	}
	if n.Kind == models.NoticeReady {
		return true
	}
	if n.Kind != models.NoticeState {
		return false
	}
	switch n.State {
	case models.StateReconnecting, models.StateDisconnected, models.StateFailed:
		return true
	}
	return false
}

func (j *Journal) run() {
	defer j.wg.Done()
	for n := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		var err error
		if n.Kind == models.NoticeReady {
			err = j.repo.StartEpisode(ctx, models.Episode{
				Epoch:     n.Epoch,
				Username:  j.username,
				RoomID:    j.roomID,
				StartedAt: n.At,
			})
		} else {
			err = j.repo.EndEpisode(ctx, j.username, n.Epoch, n.At, n.Text)
		}
		cancel()
		if err != nil {
			log.Printf("episode journal write failed kind=%s epoch=%d: %v", n.Kind, n.Epoch, err)
		}
	}
}
