package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/auth"
	"chat-sync/internal/dispatch"
	"chat-sync/internal/engine"
	"chat-sync/internal/mocks"
	"chat-sync/internal/models"
)

func setupRoomRouter(handler *RoomHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/session", handler.GetSession)
	r.GET("/messages", handler.ListMessages)
	r.POST("/messages", handler.PostMessage)
	r.PATCH("/messages/:id", handler.EditMessage)
	r.DELETE("/messages/:id", handler.DeleteMessage)
	r.POST("/messages/:id/pin", handler.PinMessage)
	r.POST("/attachments", handler.PostAttachment)
	r.GET("/participants", handler.ListParticipants)
	r.POST("/users/:username/:action", handler.ModerateUser)
	r.GET("/typing", handler.ListTyping)
	r.POST("/typing", handler.PostTyping)
	r.GET("/threads/:user", handler.GetThread)
	r.POST("/threads/:user", handler.OpenThread)
	r.POST("/threads/:user/messages", handler.PostPrivateMessage)
	r.POST("/jobs", handler.SubmitJob)
	r.GET("/episodes", handler.ListEpisodes)
	return r
}

func serve(router http.Handler, method, path string, body *bytes.Buffer) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if body.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetSession(t *testing.T) {
	room := new(mocks.RoomMock)
	router := setupRoomRouter(NewRoomHandler(room, nil, nil))

	room.On("Identity").Return(auth.Identity{Username: "alice", IsModerator: true}).Once()
	room.On("RoomID").Return("general").Once()
	room.On("State").Return(models.StateConnected).Once()
	room.On("Epoch").Return(uint64(4)).Once()
	room.On("PendingJobs").Return(1).Once()

	rec := serve(router, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "alice", resp["username"])
	assert.Equal(t, "connected", resp["state"])
	assert.Equal(t, float64(4), resp["epoch"])
	room.AssertExpectations(t)
}

func TestListMessagesHidesDeleted(t *testing.T) {
	room := new(mocks.RoomMock)
	router := setupRoomRouter(NewRoomHandler(room, nil, nil))

	now := time.Now().UTC()
	room.On("Messages").Return([]models.Message{
		{ID: "a", Author: "alice", Body: models.TextBody("hi"), SentAt: now},
		{ID: "b", Author: "bob", Body: models.TextBody("gone"), SentAt: now, IsDeleted: true},
	})

	rec := serve(router, http.MethodGet, "/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "a", resp.Messages[0].ID)

	rec = serve(router, http.MethodGet, "/messages?include_deleted=true", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Messages, 2)
}

func TestPostMessage(t *testing.T) {
	room := new(mocks.RoomMock)
	router := setupRoomRouter(NewRoomHandler(room, nil, nil))

	room.On("SendText", mock.Anything, "hello").Return(nil).Once()

	rec := serve(router, http.MethodPost, "/messages", bytes.NewBufferString(`{"body":"hello"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	room.AssertExpectations(t)
}

func TestPostMessageWhileDisconnected(t *testing.T) {
	room := new(mocks.RoomMock)
	router := setupRoomRouter(NewRoomHandler(room, nil, nil))

	room.On("SendText", mock.Anything, "hello").Return(dispatch.ErrIntentRejected).Once()

	rec := serve(router, http.MethodPost, "/messages", bytes.NewBufferString(`{"body":"hello"}`))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestPostMessageInvalidBody(t *testing.T) {
	room := new(mocks.RoomMock)
	router := setupRoomRouter(NewRoomHandler(room, nil, nil))

	rec := serve(router, http.MethodPost, "/messages", bytes.NewBufferString(`{}`))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	room.AssertNotCalled(t, "SendText", mock.Anything, mock.Anything)
}

func TestModerationRequiresModerator(t *testing.T) {
	room := new(mocks.RoomMock)
	router := setupRoomRouter(NewRoomHandler(room, nil, nil))

	room.On("BlockUser", mock.Anything, "mallory").Return(dispatch.ErrNotModerator).Once()
	room.On("MuteUser", mock.Anything, "mallory").Return(nil).Once()

	rec := serve(router, http.MethodPost, "/users/mallory/block", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serve(router, http.MethodPost, "/users/mallory/mute", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = serve(router, http.MethodPost, "/users/mallory/ban", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	room.AssertExpectations(t)
}

func TestMessageActions(t *testing.T) {
	room := new(mocks.RoomMock)
	router := setupRoomRouter(NewRoomHandler(room, nil, nil))

	room.On("EditMessage", mock.Anything, "m1", "fixed").Return(nil).Once()
	room.On("DeleteMessage", mock.Anything, "m1").Return(nil).Once()
	room.On("PinMessage", mock.Anything, "m1").Return(nil).Once()

	assert.Equal(t, http.StatusAccepted, serve(router, http.MethodPatch, "/messages/m1", bytes.NewBufferString(`{"body":"fixed"}`)).Code)
	assert.Equal(t, http.StatusAccepted, serve(router, http.MethodDelete, "/messages/m1", nil).Code)
	assert.Equal(t, http.StatusAccepted, serve(router, http.MethodPost, "/messages/m1/pin", nil).Code)
	room.AssertExpectations(t)
}

func TestPostTyping(t *testing.T) {
	room := new(mocks.RoomMock)
	router := setupRoomRouter(NewRoomHandler(room, nil, nil))

	room.On("Keystroke", mock.Anything).Return(nil).Once()
	room.On("StopTyping", mock.Anything).Return(nil).Once()

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodPost, "/typing", nil).Code)
	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodPost, "/typing", bytes.NewBufferString(`{"active":false}`)).Code)
	room.AssertExpectations(t)
}

func TestThreads(t *testing.T) {
	room := new(mocks.RoomMock)
	router := setupRoomRouter(NewRoomHandler(room, nil, nil))

	room.On("Thread", "carol").Return(nil, false).Once()
	room.On("OpenPrivateThread", mock.Anything, "bob").Return(nil).Once()
	room.On("SendPrivate", mock.Anything, "bob", "psst").Return(nil).Once()
	room.On("Thread", "bob").Return([]models.PrivateMessage{{ID: "p1", From: "alice", To: "bob", Content: "psst"}}, true).Once()

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/threads/carol", nil).Code)
	assert.Equal(t, http.StatusAccepted, serve(router, http.MethodPost, "/threads/bob", nil).Code)
	assert.Equal(t, http.StatusAccepted, serve(router, http.MethodPost, "/threads/bob/messages", bytes.NewBufferString(`{"content":"psst"}`)).Code)

	rec := serve(router, http.MethodGet, "/threads/bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"p1"`)
	room.AssertExpectations(t)
}

func TestSubmitJob(t *testing.T) {
	room := new(mocks.RoomMock)
	router := setupRoomRouter(NewRoomHandler(room, nil, nil))

	room.On("SubmitJob", mock.Anything, "summarize", "doc-1").Return("job-1", nil).Once()

	rec := serve(router, http.MethodPost, "/jobs", bytes.NewBufferString(`{"kind":"summarize","ref":"doc-1"}`))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "job-1", resp["job_id"])
	room.AssertExpectations(t)
}

func TestPostAttachment(t *testing.T) {
	room := new(mocks.RoomMock)
	uploader := new(mocks.UploaderMock)
	router := setupRoomRouter(NewRoomHandler(room, uploader, nil))

	room.On("SendAttachment", mock.Anything, uploader, mock.MatchedBy(func(f models.Upload) bool {
		return f.Filename == "notes.pdf" && string(f.Content) == "%PDF"
	})).Return(models.Attachment{Kind: models.BodyPDF, URL: "https://cdn.test/notes.pdf"}, nil).Once()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "notes.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF"))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "notes.pdf")
	room.AssertExpectations(t)
}

func TestPostAttachmentStaleEpoch(t *testing.T) {
	room := new(mocks.RoomMock)
	uploader := new(mocks.UploaderMock)
	router := setupRoomRouter(NewRoomHandler(room, uploader, nil))

	room.On("SendAttachment", mock.Anything, uploader, mock.Anything).Return(nil, engine.ErrStaleEpoch).Once()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, _ := form.CreateFormFile("file", "a.png")
	_, _ = part.Write([]byte("png"))
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/attachments", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListEpisodes(t *testing.T) {
	room := new(mocks.RoomMock)
	repo := new(mocks.EpisodeRepositoryMock)
	router := setupRoomRouter(NewRoomHandler(room, nil, repo))

	room.On("Identity").Return(auth.Identity{Username: "alice"})
	room.On("RoomID").Return("general")
	repo.On("ListEpisodes", mock.Anything, "alice", "general", 10).Return([]models.Episode{{Epoch: 2, Username: "alice", RoomID: "general"}}, nil).Once()

	rec := serve(router, http.MethodGet, "/episodes?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"general"`)

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/episodes?limit=x", nil).Code)
	repo.AssertExpectations(t)
}

func TestListEpisodesWithoutJournal(t *testing.T) {
	router := setupRoomRouter(NewRoomHandler(new(mocks.RoomMock), nil, nil))
	assert.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodGet, "/episodes", nil).Code)
}
