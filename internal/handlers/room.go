package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-sync/internal/auth"
	"chat-sync/internal/dispatch"
	"chat-sync/internal/engine"
	"chat-sync/internal/models"
	"chat-sync/internal/repositories"
	"chat-sync/internal/upload"
	"chat-sync/internal/ws"
)

const maxUploadSize = 32 << 20

// Room is the engine surface the control API drives.
type Room interface {
	Identity() auth.Identity
	RoomID() string
	State() models.ConnectionState
	Epoch() uint64
	PendingJobs() int

	Messages() []models.Message
	Participants() []models.Participant
	Typing() []string
	Thread(counterpart string) ([]models.PrivateMessage, bool)

	SendText(ctx context.Context, text string) error
	SendAttachment(ctx context.Context, uploader upload.Uploader, file models.Upload) (models.Attachment, error)
	EditMessage(ctx context.Context, id, newBody string) error
	DeleteMessage(ctx context.Context, id string) error
	PinMessage(ctx context.Context, id string) error
	MuteUser(ctx context.Context, username string) error
	UnmuteUser(ctx context.Context, username string) error
	BlockUser(ctx context.Context, username string) error
	UnblockUser(ctx context.Context, username string) error
	Keystroke(ctx context.Context) error
	StopTyping(ctx context.Context) error
	OpenPrivateThread(ctx context.Context, counterpart string) error
	SendPrivate(ctx context.Context, to, content string) error
	SubmitJob(ctx context.Context, kind, ref string) (string, error)
}

// RoomHandler serves the local control API.
type RoomHandler struct {
	room     Room
	uploader upload.Uploader
	episodes repositories.EpisodeRepository
}

// NewRoomHandler builds a RoomHandler. uploader and episodes may be nil.
func NewRoomHandler(room Room, uploader upload.Uploader, episodes repositories.EpisodeRepository) *RoomHandler {
	return &RoomHandler{room: room, uploader: uploader, episodes: episodes}
}

// GetSession describes the connection.
func (h *RoomHandler) GetSession(c *gin.Context) {
	id := h.room.Identity()
	c.JSON(http.StatusOK, gin.H{
		"username":     id.Username,
		"is_moderator": id.IsModerator,
		"room_id":      h.room.RoomID(),
		"state":        h.room.State().String(),
		"epoch":        h.room.Epoch(),
		"pending_jobs": h.room.PendingJobs(),
	})
}

func (h *RoomHandler) ListMessages(c *gin.Context) {
	messages := h.room.Messages()
	if !includeDeleted(c) {
		visible := make([]models.Message, 0, len(messages))
		for _, m := range messages {
			if !m.IsDeleted {
				visible = append(visible, m)
			}
		}
		messages = visible
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *RoomHandler) ListParticipants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"participants": h.room.Participants()})
}

func (h *RoomHandler) ListTyping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"typing": h.room.Typing()})
}

func (h *RoomHandler) GetThread(c *gin.Context) {
	counterpart := c.Param("user")
	messages, ok := h.room.Thread(counterpart)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "thread not opened"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"with_user": counterpart, "messages": messages})
}

type postMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

func (h *RoomHandler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.room.SendText(c.Request.Context(), req.Body); err != nil {
		h.fail(c, "send message", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// PostAttachment uploads a multipart "file" and posts it to the room.
func (h *RoomHandler) PostAttachment(c *gin.Context) {
	if h.uploader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "uploads not configured"})
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if header.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, maxUploadSize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}

	file := models.Upload{
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Content:  content,
	}
	att, err := h.room.SendAttachment(c.Request.Context(), h.uploader, file)
	if err != nil {
		h.fail(c, "send attachment", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"attachment": att})
}

func (h *RoomHandler) EditMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.room.EditMessage(c.Request.Context(), c.Param("id"), req.Body); err != nil {
		h.fail(c, "edit message", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (h *RoomHandler) DeleteMessage(c *gin.Context) {
	if err := h.room.DeleteMessage(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete message", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

func (h *RoomHandler) PinMessage(c *gin.Context) {
	if err := h.room.PinMessage(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "pin message", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

// ModerateUser handles /users/:username/:action.
func (h *RoomHandler) ModerateUser(c *gin.Context) {
	ctx := c.Request.Context()
	username := c.Param("username")

	var err error
	switch action := c.Param("action"); action {
	case "mute":
		err = h.room.MuteUser(ctx, username)
	case "unmute":
		err = h.room.UnmuteUser(ctx, username)
	case "block":
		err = h.room.BlockUser(ctx, username)
	case "unblock":
		err = h.room.UnblockUser(ctx, username)
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
		return
	}
	if err != nil {
		h.fail(c, "moderate user", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

type typingRequest struct {
	Active *bool `json:"active"`
}

func (h *RoomHandler) PostTyping(c *gin.Context) {
	var req typingRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	var err error
	if req.Active != nil && !*req.Active {
		err = h.room.StopTyping(c.Request.Context())
	} else {
		err = h.room.Keystroke(c.Request.Context())
	}
	if err != nil {
		h.fail(c, "typing", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) OpenThread(c *gin.Context) {
	if err := h.room.OpenPrivateThread(c.Request.Context(), c.Param("user")); err != nil {
		h.fail(c, "open thread", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "opened"})
}

type privateMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *RoomHandler) PostPrivateMessage(c *gin.Context) {
	var req privateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.room.SendPrivate(c.Request.Context(), c.Param("user"), req.Content); err != nil {
		h.fail(c, "send private message", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}

type submitJobRequest struct {
	Kind string `json:"kind" binding:"required"`
	Ref  string `json:"ref"`
}

func (h *RoomHandler) SubmitJob(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	jobID, err := h.room.SubmitJob(c.Request.Context(), req.Kind, req.Ref)
	if err != nil {
		h.fail(c, "submit job", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// ListEpisodes returns the recent connected episodes of this identity.
func (h *RoomHandler) ListEpisodes(c *gin.Context) {
	if h.episodes == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "episode journal not configured"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	episodes, err := h.episodes.ListEpisodes(c.Request.Context(), h.room.Identity().Username, h.room.RoomID(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load episodes"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"episodes": episodes})
}

func (h *RoomHandler) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s failed request_id=%s: %v", op, requestIDFromContext(c), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrEmptyBody), errors.Is(err, dispatch.ErrEmptyTarget), errors.Is(err, upload.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrNotModerator):
		return http.StatusForbidden
	case errors.Is(err, dispatch.ErrIntentRejected), errors.Is(err, engine.ErrStaleEpoch), errors.Is(err, ws.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, upload.ErrRejected):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrStopped), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func includeDeleted(c *gin.Context) bool {
	v := strings.ToLower(c.Query("include_deleted"))
	return v == "1" || v == "true"
}
