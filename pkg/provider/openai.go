package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/abdhe/llm-chat-gateway/pkg/chat"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIAdapter implements Adapter against the OpenAI Chat Completions
// wire format. DeepSeek is served by the same adapter through a base URL
// override on its route.
type OpenAIAdapter struct {
	client  *http.Client
	baseURL string
}

// NewOpenAIAdapter creates an OpenAI-compatible adapter. An empty baseURL
// selects the OpenAI endpoint.
func NewOpenAIAdapter(baseURL string) *OpenAIAdapter {
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	return &OpenAIAdapter{
		client:  &http.Client{},
		baseURL: baseURL,
	}
}

func (o *OpenAIAdapter) Name() string { return "openai" }

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type openAIRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content []any  `json:"content"`
}

type openAITextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIImageBlock struct {
	Type     string         `json:"type"`
	ImageURL openAIImageURL `json:"image_url"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// encodeOpenAIMessages renders the canonical conversation into OpenAI
// content blocks. Images go inline as base64 data URIs; other attachments
// become the textual dump block.
func encodeOpenAIMessages(msgs []chat.Message) []openAIMessage {
	out := make([]openAIMessage, 0, len(msgs))
	for _, m := range msgs {
		content := []any{openAITextBlock{Type: "text", Text: m.Text}}
		if a := m.Attachment; a != nil {
			if a.IsImage() {
				uri := fmt.Sprintf("data:%s;base64,%s", a.MIMEType, base64.StdEncoding.EncodeToString(a.Bytes))
				content = append(content, openAIImageBlock{Type: "image_url", ImageURL: openAIImageURL{URL: uri}})
			} else {
				content = append(content, openAITextBlock{Type: "text", Text: chat.DescribeAttachment(a)})
			}
		}
		out = append(out, openAIMessage{Role: m.Role.WireName(), Content: content})
	}
	return out
}

// ---------------------------------------------------------------------------
// StartStream
// ---------------------------------------------------------------------------

// StartStream opens an SSE streaming completion call.
func (o *OpenAIAdapter) StartStream(ctx context.Context, req chat.CanonicalRequest, opts CallOptions) (*Stream, error) {
	body := openAIRequest{
		Model:    req.TargetModel,
		Messages: encodeOpenAIMessages(req.Messages),
		Stream:   true,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai: marshal stream request: %w", err)
	}

	baseURL := o.baseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}

	streamCtx, cancel := context.WithCancel(ctx)

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("openai: create stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+opts.APIKey)

	httpResp, err := o.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("openai: stream request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		cancel()
		return nil, &APIError{Provider: "openai", StatusCode: httpResp.StatusCode, Body: string(respBody)}
	}

	stream := newStream(cancel)

	go func() {
		defer close(stream.chunks)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := scanner.Text()

			// SSE format: payload lines start with "data: ".
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")

			if data == "[DONE]" {
				return
			}

			var chunk openAIStreamChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				stream.emit(streamCtx, Chunk{Err: fmt.Errorf("openai: stream decode: %w", err)})
				return
			}

			var text string
			if len(chunk.Choices) > 0 {
				text = chunk.Choices[0].Delta.Content
			}
			if text == "" {
				continue
			}
			if !stream.emit(streamCtx, Chunk{Text: text}) {
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if streamCtx.Err() != nil {
				// Cancelled via Close; not an upstream failure.
				return
			}
			stream.emit(streamCtx, Chunk{Err: fmt.Errorf("openai: stream scan: %w", err)})
		}
	}()

	return stream, nil
}
