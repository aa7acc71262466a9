package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdhe/llm-chat-gateway/pkg/chat"
)

func TestEncodeGeminiRoles(t *testing.T) {
	contents := encodeGeminiContents([]chat.Message{
		{Role: chat.RoleUser, Text: "hi"},
		{Role: chat.RoleAssistant, Text: "hello"},
	})

	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	// Gemini spells the assistant role "model".
	assert.Equal(t, "model", contents[1].Role)
}

func TestEncodeGeminiEmptyTextPlaceholder(t *testing.T) {
	contents := encodeGeminiContents([]chat.Message{{
		Role: chat.RoleUser,
		Attachment: &chat.Attachment{
			Bytes:        []byte("x"),
			MIMEType:     "image/png",
			OriginalName: "x.png",
		},
	}})

	assert.Equal(t, " ", contents[0].Parts[0].Text)
}

func TestEncodeGeminiImageAttachment(t *testing.T) {
	imageBytes := []byte{1, 2, 3, 4}
	contents := encodeGeminiContents([]chat.Message{{
		Role: chat.RoleUser,
		Text: "describe",
		Attachment: &chat.Attachment{
			Bytes:        imageBytes,
			MIMEType:     "image/webp",
			OriginalName: "w.webp",
		},
	}})

	require.Len(t, contents[0].Parts, 2)
	blob := contents[0].Parts[1].InlineData
	require.NotNil(t, blob)
	assert.Equal(t, "image/webp", blob.MIMEType)

	decoded, err := base64.StdEncoding.DecodeString(blob.Data)
	require.NoError(t, err)
	assert.Equal(t, imageBytes, decoded)
}

func TestEncodeGeminiNonImageAttachment(t *testing.T) {
	contents := encodeGeminiContents([]chat.Message{{
		Role: chat.RoleUser,
		Text: "read",
		Attachment: &chat.Attachment{
			Bytes:        []byte("rows"),
			MIMEType:     "text/csv",
			OriginalName: "table.csv",
		},
	}})

	require.Len(t, contents[0].Parts, 2)
	assert.Nil(t, contents[0].Parts[1].InlineData, "non-image attachment must not produce a binary part")
	assert.Contains(t, contents[0].Parts[1].Text, "table.csv")
}

func TestGeminiStartStream(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, text := range []string{"Once", " upon", " a time"} {
			fmt.Fprintf(w, `data: {"candidates":[{"content":{"parts":[{"text":%q}]}}]}`+"\n\n", text)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	adapter := NewGeminiAdapter(srv.URL)
	stream, err := adapter.StartStream(context.Background(), chat.CanonicalRequest{
		Messages:    []chat.Message{{Role: chat.RoleUser, Text: "story please"}},
		TargetModel: "gemini-2.0-flash",
	}, CallOptions{APIKey: "gem-key"})
	require.NoError(t, err)
	defer stream.Close()

	text, streamErr := collectChunks(t, stream)
	require.NoError(t, streamErr)
	assert.Equal(t, "Once upon a time", text)

	assert.True(t, strings.HasSuffix(gotPath, "/models/gemini-2.0-flash:streamGenerateContent"))
	assert.Contains(t, gotQuery, "alt=sse")
	assert.Contains(t, gotQuery, "key=gem-key")
}

func TestGeminiStartStreamAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"status":"UNAVAILABLE"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := NewGeminiAdapter(srv.URL)
	_, err := adapter.StartStream(context.Background(), chat.CanonicalRequest{
		Messages:    []chat.Message{{Role: chat.RoleUser, Text: "hi"}},
		TargetModel: "gemini-2.0-flash",
	}, CallOptions{APIKey: "k"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.True(t, IsRetryable(err))
}
