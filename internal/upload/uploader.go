package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"chat-sync/internal/models"
)

const DefaultTimeout = 60 * time.Second

var (
	ErrEmptyFile = errors.New("upload is empty")
	ErrRejected  = errors.New("upload rejected by server")
)

// Uploader stores an attachment out of band and returns its descriptor.
type Uploader interface {
	Upload(ctx context.Context, file models.Upload) (models.Attachment, error)
}

// HTTPUploader turns files into attachment descriptors. PDFs and videos are
// posted to the media endpoints; images and audio are inlined as data URLs.
type HTTPUploader struct {
	baseURL string
	client  *http.Client
}

func NewHTTPUploader(baseURL string, client *http.Client) *HTTPUploader {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPUploader{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type uploadResponse struct {
	URL   string `json:"url"`
	Pages int    `json:"pages"`
}

// Upload implements the engine uploader contract.
func (u *HTTPUploader) Upload(ctx context.Context, file models.Upload) (models.Attachment, error) {
	if len(file.Content) == 0 {
		return models.Attachment{}, ErrEmptyFile
	}
	mimeType := file.MimeType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = mimetype.Detect(file.Content).String()
	}
	size := file.Size
	if size == 0 {
		size = int64(len(file.Content))
	}

	att := models.Attachment{Filename: file.Filename, Size: size, MimeType: mimeType}
	switch kind := Classify(file.Filename, mimeType); kind {
	case models.BodyPDF, models.BodyVideo:
		resp, err := u.post(ctx, string(kind), file)
		if err != nil {
			return models.Attachment{}, err
		}
		att.Kind = kind
		att.URL = u.absolute(resp.URL)
		att.PageCount = resp.Pages
	case models.BodyAudio:
		att.Kind = kind
		att.Data = dataURL(mimeType, file.Content)
	default:
		att.Kind = models.BodyImage
		att.Data = dataURL(mimeType, file.Content)
	}
	return att, nil
}

// Classify picks the attachment kind for a file.
func Classify(filename, mimeType string) models.BodyKind {
	switch {
	case mimeType == "application/pdf" || strings.EqualFold(path.Ext(filename), ".pdf"):
		return models.BodyPDF
	case strings.HasPrefix(mimeType, "video/"):
		return models.BodyVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return models.BodyAudio
	}
	return models.BodyImage
}

func (u *HTTPUploader) post(ctx context.Context, kind string, file models.Upload) (uploadResponse, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", file.Filename)
	if err != nil {
		return uploadResponse{}, err
	}
	if _, err := part.Write(file.Content); err != nil {
		return uploadResponse{}, err
	}
	if err := form.Close(); err != nil {
		return uploadResponse{}, err
	}

	endpoint := fmt.Sprintf("%s/api/upload/%s", u.baseURL, kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return uploadResponse{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := u.client.Do(req)
	if err != nil {
		return uploadResponse{}, fmt.Errorf("upload %s: %w", file.Filename, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return uploadResponse{}, fmt.Errorf("%w: %s status %d", ErrRejected, file.Filename, resp.StatusCode)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return uploadResponse{}, fmt.Errorf("decode upload response: %w", err)
	}
	if out.URL == "" {
		return uploadResponse{}, fmt.Errorf("%w: missing url", ErrRejected)
	}
	return out, nil
}

func (u *HTTPUploader) absolute(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return u.baseURL + "/" + strings.TrimLeft(ref, "/")
}

func dataURL(mimeType string, content []byte) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(content)
}
