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

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"

	// The Messages API rejects empty text blocks, so empty message text is
	// replaced with this sentinel.
	anthropicEmptyText = "<no text>"

	anthropicMaxTokens = 1024
)

// AnthropicAdapter implements Adapter against the Anthropic Messages API.
type AnthropicAdapter struct {
	client  *http.Client
	baseURL string
}

// NewAnthropicAdapter creates an Anthropic adapter. An empty baseURL
// selects the api.anthropic.com endpoint.
func NewAnthropicAdapter(baseURL string) *AnthropicAdapter {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	return &AnthropicAdapter{
		client:  &http.Client{},
		baseURL: baseURL,
	}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content []any  `json:"content"`
}

type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicImageBlock struct {
	Type   string               `json:"type"`
	Source anthropicImageSource `json:"source"`
}

type anthropicImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// anthropicEvent is the union of the SSE event payloads the adapter cares
// about; everything else (message_start, ping, ...) is skipped.
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func encodeAnthropicMessages(msgs []chat.Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(msgs))
	for _, m := range msgs {
		text := m.Text
		if text == "" {
			text = anthropicEmptyText
		}
		content := []any{anthropicTextBlock{Type: "text", Text: text}}
		if att := m.Attachment; att != nil {
			if att.IsImage() {
				content = append(content, anthropicImageBlock{
					Type: "image",
					Source: anthropicImageSource{
						Type:      "base64",
						MediaType: att.MIMEType,
						Data:      base64.StdEncoding.EncodeToString(att.Bytes),
					},
				})
			} else {
				content = append(content, anthropicTextBlock{Type: "text", Text: chat.DescribeAttachment(att)})
			}
		}
		out = append(out, anthropicMessage{Role: m.Role.WireName(), Content: content})
	}
	return out
}

// ---------------------------------------------------------------------------
// StartStream
// ---------------------------------------------------------------------------

// StartStream opens an SSE streaming call against the Messages API. Text
// is extracted from content_block_delta events; message_stop completes the
// stream.
func (a *AnthropicAdapter) StartStream(ctx context.Context, req chat.CanonicalRequest, opts CallOptions) (*Stream, error) {
	body := anthropicRequest{
		Model:     req.TargetModel,
		MaxTokens: anthropicMaxTokens,
		Messages:  encodeAnthropicMessages(req.Messages),
		Stream:    true,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal stream request: %w", err)
	}

	baseURL := a.baseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}

	streamCtx, cancel := context.WithCancel(ctx)

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(jsonBody))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("anthropic: create stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", opts.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("anthropic: stream request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		cancel()
		return nil, &APIError{Provider: "anthropic", StatusCode: httpResp.StatusCode, Body: string(respBody)}
	}

	stream := newStream(cancel)

	go func() {
		defer close(stream.chunks)
		defer httpResp.Body.Close()

		scanner := bufio.NewScanner(httpResp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}

			var ev anthropicEvent
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				stream.emit(streamCtx, Chunk{Err: fmt.Errorf("anthropic: stream decode: %w", err)})
				return
			}

			switch ev.Type {
			case "content_block_delta":
				if ev.Delta.Type != "text_delta" || ev.Delta.Text == "" {
					continue
				}
				if !stream.emit(streamCtx, Chunk{Text: ev.Delta.Text}) {
					return
				}
			case "message_stop":
				return
			case "error":
				stream.emit(streamCtx, Chunk{Err: fmt.Errorf("anthropic: stream error: %s: %s", ev.Error.Type, ev.Error.Message)})
				return
			}
		}

		if err := scanner.Err(); err != nil {
			if streamCtx.Err() != nil {
				return
			}
			stream.emit(streamCtx, Chunk{Err: fmt.Errorf("anthropic: stream scan: %w", err)})
		}
	}()

	return stream, nil
}
