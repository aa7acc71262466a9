package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdhe/llm-chat-gateway/pkg/chat"
)

func TestEncodeAnthropicEmptyTextSentinel(t *testing.T) {
	msgs := encodeAnthropicMessages([]chat.Message{{
		Role: chat.RoleUser,
		Attachment: &chat.Attachment{
			Bytes:        []byte("x"),
			MIMEType:     "text/plain",
			OriginalName: "x.txt",
		},
	}})

	text, ok := msgs[0].Content[0].(anthropicTextBlock)
	require.True(t, ok)
	assert.Equal(t, "<no text>", text.Text)
}

func TestEncodeAnthropicImageAttachment(t *testing.T) {
	imageBytes := []byte{0x47, 0x49, 0x46}
	msgs := encodeAnthropicMessages([]chat.Message{{
		Role: chat.RoleUser,
		Text: "look",
		Attachment: &chat.Attachment{
			Bytes:        imageBytes,
			MIMEType:     "image/gif",
			OriginalName: "anim.gif",
		},
	}})

	require.Len(t, msgs[0].Content, 2)

	img, ok := msgs[0].Content[1].(anthropicImageBlock)
	require.True(t, ok)
	assert.Equal(t, "image", img.Type)
	assert.Equal(t, "base64", img.Source.Type)
	assert.Equal(t, "image/gif", img.Source.MediaType)

	decoded, err := base64.StdEncoding.DecodeString(img.Source.Data)
	require.NoError(t, err)
	assert.Equal(t, imageBytes, decoded)
}

func TestEncodeAnthropicNonImageAttachment(t *testing.T) {
	msgs := encodeAnthropicMessages([]chat.Message{{
		Role: chat.RoleUser,
		Text: "read this",
		Attachment: &chat.Attachment{
			Bytes:        []byte("contents"),
			MIMEType:     "application/pdf",
			OriginalName: "paper.pdf",
		},
	}})

	require.Len(t, msgs[0].Content, 2)
	for _, block := range msgs[0].Content {
		_, isImage := block.(anthropicImageBlock)
		assert.False(t, isImage)
	}

	dump, ok := msgs[0].Content[1].(anthropicTextBlock)
	require.True(t, ok)
	assert.Contains(t, dump.Text, "paper.pdf")
}

func anthropicSSE(lines []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n\n", line)
			flusher.Flush()
		}
	}
}

func TestAnthropicStartStream(t *testing.T) {
	var gotVersion, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.Header.Get("anthropic-version")
		gotKey = r.Header.Get("x-api-key")
		anthropicSSE([]string{
			`data: {"type":"message_start"}`,
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi"}}`,
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":" there"}}`,
			`data: {"type":"message_stop"}`,
		})(w, r)
	}))
	defer srv.Close()

	adapter := NewAnthropicAdapter(srv.URL)
	stream, err := adapter.StartStream(context.Background(), chat.CanonicalRequest{
		Messages:    []chat.Message{{Role: chat.RoleUser, Text: "hello"}},
		TargetModel: "claude-3-7-sonnet-latest",
	}, CallOptions{APIKey: "anthropic-key"})
	require.NoError(t, err)
	defer stream.Close()

	text, streamErr := collectChunks(t, stream)
	require.NoError(t, streamErr)
	assert.Equal(t, "Hi there", text)
	assert.Equal(t, "2023-06-01", gotVersion)
	assert.Equal(t, "anthropic-key", gotKey)
}

func TestAnthropicStreamErrorEvent(t *testing.T) {
	srv := httptest.NewServer(anthropicSSE([]string{
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"partial"}}`,
		`data: {"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`,
	}))
	defer srv.Close()

	adapter := NewAnthropicAdapter(srv.URL)
	stream, err := adapter.StartStream(context.Background(), chat.CanonicalRequest{
		Messages:    []chat.Message{{Role: chat.RoleUser, Text: "hello"}},
		TargetModel: "claude-3-7-sonnet-latest",
	}, CallOptions{APIKey: "k"})
	require.NoError(t, err)
	defer stream.Close()

	text, streamErr := collectChunks(t, stream)
	assert.Equal(t, "partial", text)
	require.Error(t, streamErr)
	assert.Contains(t, streamErr.Error(), "overloaded")
}

func TestAnthropicStartStreamAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"authentication_error"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := NewAnthropicAdapter(srv.URL)
	_, err := adapter.StartStream(context.Background(), chat.CanonicalRequest{
		Messages:    []chat.Message{{Role: chat.RoleUser, Text: "hello"}},
		TargetModel: "claude-3-7-sonnet-latest",
	}, CallOptions{APIKey: "bad"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.False(t, IsRetryable(err))
}
