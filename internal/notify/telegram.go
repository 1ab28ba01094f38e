// Package notify delivers best-effort messages to a chat through the
// Telegram Bot API. Delivery is at-most-once: failures are reported in
// the result and logged, never retried and never propagated as errors.
package notify

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Outcome string

const (
	Delivered      Outcome = "delivered"
	Rejected       Outcome = "rejected"
	TransportError Outcome = "transport_error"
	Unconfigured   Outcome = "unconfigured"
)

// Result carries the delivery outcome plus the underlying error for
// diagnostic callers. It is informational only; persistence upstream has
// already committed by the time a Result exists.
type Result struct {
	Outcome Outcome
	Err     error
}

// Button describes one inline URL button attached to a message.
type Button struct {
	Label string
	URL   string
}

type Telegram struct {
	bot *tgbotapi.BotAPI
}

// NewTelegram builds a notifier around the Telegram Bot API. An empty
// token yields a notifier that reports Unconfigured without touching the
// network. apiEndpoint overrides the production endpoint for tests and
// self-hosted bot API servers.
func NewTelegram(token, apiEndpoint string, timeout time.Duration) *Telegram {
	if token == "" {
		return &Telegram{}
	}
	if apiEndpoint == "" {
		apiEndpoint = tgbotapi.APIEndpoint
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	// Constructed directly instead of via NewBotAPIWithClient: that
	// constructor probes getMe, and startup must not require Telegram
	// connectivity.
	bot := &tgbotapi.BotAPI{
		Token:  token,
		Client: &http.Client{Timeout: timeout},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(apiEndpoint)
	return &Telegram{bot: bot}
}

// Send pushes text to a chat identity. The http.Client timeout bounds the
// wait; anything past it is a transport error. There is no retry queue.
func (t *Telegram) Send(chatID, text string, buttons []Button) Result {
	if t == nil || t.bot == nil {
		return Result{Outcome: Unconfigured}
	}

	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return Result{Outcome: Rejected, Err: fmt.Errorf("chat id %q is not numeric", chatID)}
	}

	msg := tgbotapi.NewMessage(id, text)
	if len(buttons) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(buttons))
		for _, b := range buttons {
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}

	if _, err := t.bot.Send(msg); err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) {
			// The Bot API answered but refused the message: blocked
			// bot, unknown chat, malformed payload.
			return Result{Outcome: Rejected, Err: err}
		}
		return Result{Outcome: TransportError, Err: err}
	}
	return Result{Outcome: Delivered}
}
