package attachment

import (
	"context"
	"fmt"
)

// StaticResolver serves files from an in-memory map. Used in tests and for
// local development without Redis.
type StaticResolver struct {
	Files map[string]File
}

// Resolve returns the mapped file or ErrNotFound.
func (s *StaticResolver) Resolve(_ context.Context, fileID string) (File, error) {
	f, ok := s.Files[fileID]
	if !ok {
		return File{}, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}
	return f, nil
}
