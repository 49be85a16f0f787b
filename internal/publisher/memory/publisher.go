// Package memory records published events for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/recipe-ingest/internal/publisher"
)

// Message is one recorded publish.
type Message struct {
	ID         string
	Name       string
	Attributes map[string]string
	Data       []byte
}

// Publisher encodes events the way a real backend would and keeps them in order.
type Publisher struct {
	mu       sync.RWMutex
	messages []Message
}

var _ publisher.Publisher = (*Publisher)(nil)

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the encoded event.
func (p *Publisher) Publish(_ context.Context, event publisher.Event) (string, error) {
	data, attrs, err := publisher.Encode(event)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := fmt.Sprintf("memory-%d", len(p.messages)+1)
	p.messages = append(p.messages, Message{ID: id, Name: event.Name, Attributes: attrs, Data: data})
	return id, nil
}

// Messages returns a copy of the recorded messages.
func (p *Publisher) Messages() []Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
