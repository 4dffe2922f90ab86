package upload

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-sync/internal/models"
)

func TestUploadPDFPostsToMediaEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload/pdf", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		body, _ := io.ReadAll(f)
		assert.Equal(t, "report.pdf", hdr.Filename)
		assert.Equal(t, "%PDF-1.4", string(body))
		_ = json.NewEncoder(w).Encode(map[string]any{"url": "/files/report.pdf", "pages": 3})
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, srv.Client())
	att, err := u.Upload(context.Background(), models.Upload{Filename: "report.pdf", MimeType: "application/pdf", Content: []byte("%PDF-1.4")})
	require.NoError(t, err)

	assert.Equal(t, models.BodyPDF, att.Kind)
	assert.Equal(t, srv.URL+"/files/report.pdf", att.URL)
	assert.Equal(t, 3, att.PageCount)
	assert.Equal(t, int64(8), att.Size)
}

func TestUploadRejectedByServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	u := NewHTTPUploader(srv.URL, srv.Client())
	_, err := u.Upload(context.Background(), models.Upload{Filename: "clip.mp4", MimeType: "video/mp4", Content: []byte("....")})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestUploadAudioIsInlined(t *testing.T) {
	u := NewHTTPUploader("http://unused.test", nil)
	att, err := u.Upload(context.Background(), models.Upload{Filename: "note.ogg", MimeType: "audio/ogg", Content: []byte("abc")})
	require.NoError(t, err)

	assert.Equal(t, models.BodyAudio, att.Kind)
	assert.Equal(t, "data:audio/ogg;base64,YWJj", att.Data)
	assert.Empty(t, att.URL)
}

func TestUploadDetectsImageType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	u := NewHTTPUploader("http://unused.test", nil)
	att, err := u.Upload(context.Background(), models.Upload{Filename: "cat", Content: png})
	require.NoError(t, err)

	assert.Equal(t, models.BodyImage, att.Kind)
	assert.Equal(t, "image/png", att.MimeType)
	assert.True(t, strings.HasPrefix(att.Data, "data:image/png;base64,"))
}

func TestUploadEmptyFile(t *testing.T) {
	u := NewHTTPUploader("http://unused.test", nil)
	_, err := u.Upload(context.Background(), models.Upload{Filename: "x.pdf"})
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, models.BodyPDF, Classify("a.PDF", ""))
	assert.Equal(t, models.BodyVideo, Classify("a.mp4", "video/mp4"))
	assert.Equal(t, models.BodyAudio, Classify("a.mp3", "audio/mpeg"))
	assert.Equal(t, models.BodyImage, Classify("a.gif", "image/gif"))
}
