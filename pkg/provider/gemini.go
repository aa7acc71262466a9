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

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiEmptyText stands in for empty message text; the API rejects
// contents without at least one non-empty part.
const geminiEmptyText = " "

// GeminiAdapter implements Adapter against the Gemini generateContent API.
type GeminiAdapter struct {
	client  *http.Client
	baseURL string
}

// NewGeminiAdapter creates a Gemini adapter. An empty baseURL selects the
// generativelanguage.googleapis.com endpoint.
func NewGeminiAdapter(baseURL string) *GeminiAdapter {
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	return &GeminiAdapter{
		client:  &http.Client{},
		baseURL: baseURL,
	}
}

func (g *GeminiAdapter) Name() string { return "gemini" }

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// encodeGeminiContents renders the canonical conversation for Gemini.
// Assistant turns use the role name "model"; the API rejects "assistant".
func encodeGeminiContents(msgs []chat.Message) []geminiContent {
	out := make([]geminiContent, 0, len(msgs))
	for _, m := range msgs {
		role := "user"
		if m.Role == chat.RoleAssistant {
			role = "model"
		}

		text := m.Text
		if text == "" {
			text = geminiEmptyText
		}
		parts := []geminiPart{{Text: text}}
		if a := m.Attachment; a != nil {
			if a.IsImage() {
				parts = append(parts, geminiPart{InlineData: &geminiBlob{
					MIMEType: a.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(a.Bytes),
				}})
			} else {
				parts = append(parts, geminiPart{Text: chat.DescribeAttachment(a)})
			}
		}
		out = append(out, geminiContent{Role: role, Parts: parts})
	}
	return out
}

// ---------------------------------------------------------------------------
// StartStream
// ---------------------------------------------------------------------------

// StartStream opens a streamGenerateContent call with alt=sse; each SSE
// data line holds one generateContent response fragment.
func (g *GeminiAdapter) StartStream(ctx context.Context, req chat.CanonicalRequest, opts CallOptions) (*Stream, error) {
	body := geminiRequest{Contents: encodeGeminiContents(req.Messages)}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal stream request: %w", err)
	}

	baseURL := g.baseURL
	if opts.BaseURL != "" {
		baseURL = opts.BaseURL
	}
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", baseURL, req.TargetModel, opts.APIKey)

	streamCtx, cancel := context.WithCancel(ctx)

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("gemini: create stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("gemini: stream request: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		httpResp.Body.Close()
		cancel()
		return nil, &APIError{Provider: "gemini", StatusCode: httpResp.StatusCode, Body: string(respBody)}
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

			var resp geminiResponse
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &resp); err != nil {
				stream.emit(streamCtx, Chunk{Err: fmt.Errorf("gemini: stream decode: %w", err)})
				return
			}

			var text string
			if len(resp.Candidates) > 0 {
				for _, p := range resp.Candidates[0].Content.Parts {
					text += p.Text
				}
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
				return
			}
			stream.emit(streamCtx, Chunk{Err: fmt.Errorf("gemini: stream scan: %w", err)})
		}
	}()

	return stream, nil
}
