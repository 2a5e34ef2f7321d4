// Package memory keeps published visit events in process. It backs the
// "memory" publisher provider and the handler tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Event captures one publish call. Data is the JSON form a real broker
// would have received.
type Event struct {
	ID    string
	Topic string
	Data  json.RawMessage
}

// Publisher stores events, keeping at most Capacity of the newest.
type Publisher struct {
	mu       sync.RWMutex
	events   []Event
	seq      int
	capacity int
	logger   *zap.Logger
}

// New returns a Publisher. capacity <= 0 keeps everything; logger may be nil.
func New(capacity int, logger *zap.Logger) *Publisher {
	return &Publisher{capacity: capacity, logger: logger}
}

// Publish encodes payload and records it under a sequential ID.
func (p *Publisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	p.mu.Lock()
	p.seq++
	id := fmt.Sprintf("memory-%d", p.seq)
	p.events = append(p.events, Event{ID: id, Topic: topic, Data: data})
	if p.capacity > 0 && len(p.events) > p.capacity {
		p.events = append([]Event(nil), p.events[len(p.events)-p.capacity:]...)
	}
	p.mu.Unlock()

	if p.logger != nil {
		p.logger.Debug("visit event recorded", zap.String("topic", topic), zap.String("id", id))
	}
	return id, nil
}

// Events returns a copy of the recorded events, oldest first.
func (p *Publisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
