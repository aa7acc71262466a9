// Package attachment resolves opaque file references into bytes and
// metadata. Storage is owned by the upload service; the gateway is a pure
// reader and borrows each resolved buffer for the duration of one request.
package attachment

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no stored file matches the given id.
var ErrNotFound = errors.New("attachment: not found")

// File is a resolved attachment.
type File struct {
	Bytes        []byte
	MIMEType     string
	OriginalName string
}

// Resolver looks up stored files by their opaque identifier.
// Resolve is idempotent: the same id yields the same bytes and metadata
// for as long as the file exists.
type Resolver interface {
	Resolve(ctx context.Context, fileID string) (File, error)
}
