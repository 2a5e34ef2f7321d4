// Package relay delivers rendered visitor alerts to an operator chat.
package relay

import (
	"context"
	"errors"
)

var (
	// ErrNoDestination is returned when no destination chat is configured.
	ErrNoDestination = errors.New("relay: destination is not configured")
	// ErrNoToken is returned by Unconfigured, standing in for a relay with no bot token.
	ErrNoToken = errors.New("relay: bot token is not configured")
)

// Sender sends one text message to a destination.
type Sender interface {
	SendMessage(ctx context.Context, destination, text string) error
}

// Unconfigured is used when credentials are missing. Every send fails with
// ErrNoToken so the failure is logged by the caller and never reaches the
// visitor.
type Unconfigured struct{}

// SendMessage always fails.
func (Unconfigured) SendMessage(context.Context, string, string) error {
	return ErrNoToken
}
