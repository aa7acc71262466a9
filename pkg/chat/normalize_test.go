package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdhe/llm-chat-gateway/pkg/attachment"
)

func testResolver() *attachment.StaticResolver {
	return &attachment.StaticResolver{Files: map[string]attachment.File{
		"img-1": {Bytes: []byte{0xFF, 0xD8, 0xFF}, MIMEType: "image/jpeg", OriginalName: "photo.jpg"},
		"doc-1": {Bytes: []byte("hello world"), MIMEType: "text/plain", OriginalName: "notes.txt"},
	}}
}

func TestNormalizeEmptyConversation(t *testing.T) {
	_, err := Normalize(context.Background(), nil, testResolver(), "gpt-4o")
	require.ErrorIs(t, err, ErrEmptyConversation)
}

func TestNormalizeEmptyMessage(t *testing.T) {
	_, err := Normalize(context.Background(), []RawMessage{{Text: "", IsUser: true}}, testResolver(), "gpt-4o")
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestNormalizeRoles(t *testing.T) {
	req, err := Normalize(context.Background(), []RawMessage{
		{Text: "hi", IsUser: true},
		{Text: "hello!", IsUser: false},
	}, testResolver(), "gpt-4o")
	require.NoError(t, err)

	require.Len(t, req.Messages, 2)
	assert.Equal(t, RoleUser, req.Messages[0].Role)
	assert.Equal(t, RoleAssistant, req.Messages[1].Role)
	assert.Equal(t, "gpt-4o", req.TargetModel)
}

func TestNormalizeResolvesAttachment(t *testing.T) {
	req, err := Normalize(context.Background(), []RawMessage{
		{Text: "what is this?", IsUser: true, FileID: "img-1"},
	}, testResolver(), "gpt-4o")
	require.NoError(t, err)

	att := req.Messages[0].Attachment
	require.NotNil(t, att)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, att.Bytes)
	assert.Equal(t, "image/jpeg", att.MIMEType)
	assert.Equal(t, "photo.jpg", att.OriginalName)
	assert.True(t, att.IsImage())
}

func TestNormalizeEmptyTextWithAttachmentIsValid(t *testing.T) {
	req, err := Normalize(context.Background(), []RawMessage{
		{Text: "", IsUser: true, FileID: "doc-1"},
	}, testResolver(), "claude-3-7-sonnet-latest")
	require.NoError(t, err)
	require.NotNil(t, req.Messages[0].Attachment)
	assert.False(t, req.Messages[0].Attachment.IsImage())
}

func TestNormalizeMissingAttachmentFailsWholeRequest(t *testing.T) {
	_, err := Normalize(context.Background(), []RawMessage{
		{Text: "first", IsUser: true},
		{Text: "look", IsUser: true, FileID: "gone"},
	}, testResolver(), "gpt-4o")
	require.ErrorIs(t, err, ErrAttachmentUnavailable)
}

func TestNormalizeIsIdempotentAcrossRequests(t *testing.T) {
	raw := []RawMessage{{Text: "see file", IsUser: true, FileID: "doc-1"}}
	resolver := testResolver()

	first, err := Normalize(context.Background(), raw, resolver, "gpt-4o")
	require.NoError(t, err)
	second, err := Normalize(context.Background(), raw, resolver, "gpt-4o")
	require.NoError(t, err)

	assert.Equal(t, first.Messages[0].Attachment.Bytes, second.Messages[0].Attachment.Bytes)
	assert.Equal(t, first.Messages[0].Attachment.MIMEType, second.Messages[0].Attachment.MIMEType)
	assert.Equal(t, first.Messages[0].Attachment.OriginalName, second.Messages[0].Attachment.OriginalName)
}

func TestDescribeAttachmentIncludesNameAndBytes(t *testing.T) {
	desc := DescribeAttachment(&Attachment{
		Bytes:        []byte("raw-bytes"),
		MIMEType:     "application/pdf",
		OriginalName: "report.pdf",
	})
	assert.Contains(t, desc, "user uploaded a file named: report.pdf")
	assert.Contains(t, desc, "raw-bytes")
}

func TestRoleWireName(t *testing.T) {
	assert.Equal(t, "user", RoleUser.WireName())
	assert.Equal(t, "assistant", RoleAssistant.WireName())
}
