// Package memory provides an in-memory publisher for tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"
)

// Publisher records published payloads in memory.
type Publisher struct {
	mu       sync.Mutex
	messages [][]byte
}

// New returns an empty in-memory publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish appends a copy of the payload to the message log.
func (p *Publisher) Publish(_ context.Context, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, append([]byte(nil), payload...))
	return nil
}

// Messages returns a copy of everything published so far.
func (p *Publisher) Messages() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.messages))
	for i, m := range p.messages {
		out[i] = append([]byte(nil), m...)
	}
	return out
}
