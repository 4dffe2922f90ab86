package models

import (
	"encoding/json"
	"strings"
)

// BodyKind tags the variant held by a Body.
type BodyKind string

const (
	BodyText  BodyKind = "text"
	BodyImage BodyKind = "image"
	BodyVideo BodyKind = "video"
	BodyAudio BodyKind = "audio"
	BodyPDF   BodyKind = "pdf"
)

// Attachment describes uploaded or inlined media carried as a message body.
type Attachment struct {
	Kind      BodyKind `json:"type"`
	URL       string   `json:"url,omitempty"`
	Data      string   `json:"data,omitempty"`
	Filename  string   `json:"filename,omitempty"`
	Size      int64    `json:"size,omitempty"`
	MimeType  string   `json:"mimeType,omitempty"`
	PageCount int      `json:"pages,omitempty"`
}

// Body is either plain text or an attachment. The variant is decided once,
// when the body is parsed.
type Body struct {
	Kind       BodyKind
	Text       string
	Attachment *Attachment
}

// TextBody builds a plain text body.
func TextBody(text string) Body {
	return Body{Kind: BodyText, Text: text}
}

// AttachmentBody builds a body around an attachment descriptor.
func AttachmentBody(a Attachment) Body {
	return Body{Kind: a.Kind, Attachment: &a}
}

// ParseBody classifies raw message content.
func ParseBody(content string) Body {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "data:image/") {
		return AttachmentBody(Attachment{Kind: BodyImage, Data: trimmed})
	}
	if strings.HasPrefix(trimmed, "{") {
		var a Attachment
		if err := json.Unmarshal([]byte(trimmed), &a); err == nil && isAttachmentKind(a.Kind) {
			return AttachmentBody(a)
		}
	}
	return TextBody(content)
}

func isAttachmentKind(kind BodyKind) bool {
	switch kind {
	case BodyImage, BodyVideo, BodyAudio, BodyPDF:
		return true
	}
	return false
}

// IsAttachment reports whether the body carries media.
func (b Body) IsAttachment() bool {
	return b.Attachment != nil
}

// Content renders the body in its wire form.
func (b Body) Content() string {
	if b.Attachment == nil {
		return b.Text
	}
	if b.Attachment.Kind == BodyImage && b.Attachment.URL == "" && b.Attachment.Data != "" {
		return b.Attachment.Data
	}
	raw, err := json.Marshal(b.Attachment)
	if err != nil {
		return ""
	}
	return string(raw)
}

// MarshalJSON encodes the body as its wire string.
func (b Body) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Content())
}

// UnmarshalJSON accepts either a wire string or an inline attachment object.
func (b *Body) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = ParseBody(s)
		return nil
	}
	var a Attachment
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if !isAttachmentKind(a.Kind) {
		*b = TextBody(string(data))
		return nil
	}
	*b = AttachmentBody(a)
	return nil
}
