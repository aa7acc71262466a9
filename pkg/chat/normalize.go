package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/abdhe/llm-chat-gateway/pkg/attachment"
)

// Normalize validates the raw message list and resolves every attachment
// reference into an immutable byte buffer, producing the CanonicalRequest
// handed to a provider adapter.
//
// A file reference that cannot be resolved fails the whole request with
// ErrAttachmentUnavailable; a missing file is never silently dropped.
// Each reference is resolved exactly once per request and the bytes are
// never cached across requests.
func Normalize(ctx context.Context, raw []RawMessage, resolver attachment.Resolver, targetModel string) (CanonicalRequest, error) {
	if len(raw) == 0 {
		return CanonicalRequest{}, ErrEmptyConversation
	}

	messages := make([]Message, 0, len(raw))
	for i, rm := range raw {
		if rm.Text == "" && rm.FileID == "" {
			return CanonicalRequest{}, fmt.Errorf("%w (message %d)", ErrEmptyMessage, i)
		}

		msg := Message{Text: rm.Text, Role: RoleAssistant}
		if rm.IsUser {
			msg.Role = RoleUser
		}

		if rm.FileID != "" {
			file, err := resolver.Resolve(ctx, rm.FileID)
			if err != nil {
				if errors.Is(err, attachment.ErrNotFound) {
					return CanonicalRequest{}, fmt.Errorf("%w: %s", ErrAttachmentUnavailable, rm.FileID)
				}
				return CanonicalRequest{}, fmt.Errorf("chat: resolve attachment %s: %w", rm.FileID, err)
			}
			msg.Attachment = &Attachment{
				Bytes:        file.Bytes,
				MIMEType:     file.MIMEType,
				OriginalName: file.OriginalName,
			}
		}

		messages = append(messages, msg)
	}

	return CanonicalRequest{Messages: messages, TargetModel: targetModel}, nil
}
