package provider

import (
	"testing"
	"time"
)

// collectChunks drains a stream until the channel closes, returning the
// concatenated text and the terminal error, if any.
func collectChunks(t *testing.T, s *Stream) (string, error) {
	t.Helper()

	var text string
	deadline := time.After(5 * time.Second)
	for {
		select {
		case chunk, ok := <-s.Chunks():
			if !ok {
				return text, nil
			}
			if chunk.Err != nil {
				return text, chunk.Err
			}
			text += chunk.Text
		case <-deadline:
			t.Fatal("timed out waiting for stream to finish")
		}
	}
}

// waitClosed asserts the chunk channel closes without further text.
func waitClosed(t *testing.T, s *Stream) {
	t.Helper()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-s.Chunks():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}
