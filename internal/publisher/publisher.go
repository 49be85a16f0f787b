// Package publisher announces pipeline events to downstream consumers. Backends live in
// the memory and pubsub subpackages.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
)

// AttrEvent is the message attribute carrying Event.Name.
const AttrEvent = "event"

// Event is one notification. Payload is encoded as JSON.
type Event struct {
	Name       string
	Attributes map[string]string
	Payload    any
}

// Publisher delivers events and returns a backend-assigned message id.
type Publisher interface {
	Publish(ctx context.Context, event Event) (string, error)
}

// Encode renders the payload as JSON and merges the event name into the attributes.
func Encode(event Event) ([]byte, map[string]string, error) {
	if event.Name == "" {
		return nil, nil, fmt.Errorf("event name is required")
	}
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal %s payload: %w", event.Name, err)
	}
	attrs := make(map[string]string, len(event.Attributes)+1)
	for k, v := range event.Attributes {
		attrs[k] = v
	}
	attrs[AttrEvent] = event.Name
	return data, attrs, nil
}
