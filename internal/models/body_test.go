package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBody(t *testing.T) {
	cases := []struct {
		name    string
		content string
		kind    BodyKind
	}{
		{"plain text", "hello there", BodyText},
		{"json that is not an attachment", `{"type":"poll"}`, BodyText},
		{"broken json", `{"type":`, BodyText},
		{"inline image", "data:image/png;base64,AAAA", BodyImage},
		{"video", `{"type":"video","url":"https://x/v.mp4","filename":"v.mp4","size":10,"mimeType":"video/mp4"}`, BodyVideo},
		{"audio", `{"type":"audio","data":"data:audio/ogg;base64,AA","filename":"a.ogg","size":3}`, BodyAudio},
		{"pdf", `{"type":"pdf","url":"https://x/doc","filename":"d.pdf","size":4,"pages":2}`, BodyPDF},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := ParseBody(tc.content)
			assert.Equal(t, tc.kind, body.Kind)
			assert.Equal(t, tc.kind != BodyText, body.IsAttachment())
		})
	}
}

func TestBodyContentRoundTripsWireForm(t *testing.T) {
	image := ParseBody("data:image/png;base64,AAAA")
	assert.Equal(t, "data:image/png;base64,AAAA", image.Content())

	pdf := AttachmentBody(Attachment{Kind: BodyPDF, URL: "https://x/doc", Filename: "d.pdf", Size: 4, PageCount: 2})
	again := ParseBody(pdf.Content())
	require.NotNil(t, again.Attachment)
	assert.Equal(t, *pdf.Attachment, *again.Attachment)
}

func TestBodyUnmarshalInlineObject(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"id":"1","content":{"type":"video","url":"u"}}`), &msg))
	assert.Equal(t, BodyVideo, msg.Body.Kind)
}

func TestConnectionStateTerminal(t *testing.T) {
	assert.True(t, StateFailed.Terminal())
	assert.True(t, StateDisconnected.Terminal())
	assert.False(t, StateReconnecting.Terminal())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
}
