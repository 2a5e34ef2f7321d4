// Package memory provides a relay that keeps messages in process, used for
// local development and tests. With a logger attached it also logs each
// message, which is the "log" relay provider.
package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jalaljaleh/portfolio-edge/internal/relay"
)

// Message is a recorded send.
type Message struct {
	Destination string
	Text        string
	SentAt      time.Time
}

// Relay records every message it is asked to send.
type Relay struct {
	mu       sync.Mutex
	messages []Message
	logger   *zap.Logger
}

// New constructs a Relay. logger may be nil.
func New(logger *zap.Logger) *Relay {
	return &Relay{logger: logger}
}

// SendMessage records the message.
func (r *Relay) SendMessage(_ context.Context, destination, text string) error {
	if destination == "" {
		return relay.ErrNoDestination
	}
	r.mu.Lock()
	r.messages = append(r.messages, Message{Destination: destination, Text: text, SentAt: time.Now().UTC()})
	r.mu.Unlock()
	if r.logger != nil {
		r.logger.Info("relay message",
			zap.String("destination", destination),
			zap.String("text", text),
		)
	}
	return nil
}

// Messages returns a copy of everything sent so far.
func (r *Relay) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}
