// Package chat defines the provider-agnostic conversation model and the
// normalizer that turns a raw client message list into the canonical form
// consumed by provider adapters.
package chat

import (
	"errors"
	"fmt"
	"strings"
)

// Role identifies who authored a message.
type Role int

const (
	RoleUser Role = iota
	RoleAssistant
)

// WireName returns the role name used by the provider wire formats.
func (r Role) WireName() string {
	if r == RoleAssistant {
		return "assistant"
	}
	return "user"
}

// RawMessage is one message as received from the client.
type RawMessage struct {
	Text   string `json:"text"`
	IsUser bool   `json:"isUser"`
	FileID string `json:"fileId,omitempty"`
}

// Attachment is a fully resolved file: an immutable, request-scoped byte
// buffer plus the metadata recorded at upload time.
type Attachment struct {
	Bytes        []byte
	MIMEType     string
	OriginalName string
}

// IsImage reports whether the attachment should be encoded as an inline
// image block rather than the textual fallback.
func (a *Attachment) IsImage() bool {
	return strings.HasPrefix(a.MIMEType, "image/")
}

// Message is one canonical conversation turn. Attachment is nil when the
// message carried no file reference.
type Message struct {
	Role       Role
	Text       string
	Attachment *Attachment
}

// CanonicalRequest is the contract boundary between the normalizer and the
// provider adapters: an ordered, validated, fully resolved conversation
// plus the concrete upstream model name chosen by the router.
type CanonicalRequest struct {
	Messages    []Message
	TargetModel string
}

// Validation failures, surfaced to the client before any upstream call.
var (
	ErrEmptyConversation     = errors.New("chat: no messages provided")
	ErrEmptyMessage          = errors.New("chat: message has neither text nor attachment")
	ErrAttachmentUnavailable = errors.New("chat: attachment unavailable")
)

// DescribeAttachment renders the textual fallback used for non-image
// attachments: the original filename plus a quoted dump of the raw bytes.
// Files are not parsed or summarized, the bytes go into the prompt as-is.
// Deliberately crude; this is the single place to swap in real extraction.
func DescribeAttachment(a *Attachment) string {
	return fmt.Sprintf("user uploaded a file named: %s, file content in bytes: %q", a.OriginalName, a.Bytes)
}
