package provider

import "context"

// NewTestStream builds a Stream fed by the returned channel, for tests of
// stream consumers. onClose runs when the consumer calls Close. The test
// signals completion by closing the channel.
func NewTestStream(onClose context.CancelFunc) (*Stream, chan<- Chunk) {
	s := newStream(onClose)
	return s, s.chunks
}
