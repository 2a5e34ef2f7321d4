// Package telegram relays alerts through the Telegram Bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/jalaljaleh/portfolio-edge/internal/relay"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// Config configures the bot client.
type Config struct {
	Token   string
	APIURL  string
	Timeout time.Duration
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// Relay sends MarkdownV2 messages with link previews disabled.
type Relay struct {
	bot *tele.Bot
}

// New builds an offline bot: no getMe call and no update polling, only sends.
func New(cfg Config) (*Relay, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, relay.ErrNoToken
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Client:  client,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	return &Relay{bot: bot}, nil
}

// SendMessage posts text to destination, a numeric chat id or an @channel
// name. Telebot has no context support, so ctx only bounds how long the
// caller waits; the HTTP client timeout bounds the request itself.
func (r *Relay) SendMessage(ctx context.Context, destination, text string) error {
	to, err := recipient(destination)
	if err != nil {
		return err
	}
	opts := &tele.SendOptions{
		ParseMode:             tele.ModeMarkdownV2,
		DisableWebPagePreview: true,
	}

	done := make(chan error, 1)
	go func() {
		_, sendErr := r.bot.Send(to, text, opts)
		done <- sendErr
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("telegram send: %w", ctx.Err())
	}
}

type channel string

func (c channel) Recipient() string { return string(c) }

func recipient(destination string) (tele.Recipient, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, relay.ErrNoDestination
	}
	if id, err := strconv.ParseInt(destination, 10, 64); err == nil {
		return &tele.Chat{ID: id}, nil
	}
	return channel(destination), nil
}
