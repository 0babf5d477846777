// Package push delivers push notifications to users over a Telegram bot.
// A user links a chat id once (application layer); the scheduler only ever
// sends. Delivery is fire-and-forget from the jobs' point of view.
package push

import (
	"context"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"taskpilot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Telegram struct {
	bot *tele.Bot
	log logx.Logger
}

// New creates the bot client. The bot is send-only: no handlers, no poll
// loop.
func New(cfg Config, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("telegram token is required")
	}
	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 10 * time.Second
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: poll},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &Telegram{bot: bot, log: log}, nil
}

// SendPush delivers one notification to the linked chat. The notification
// id tags the message so a future bot UI can resolve it; errors are
// returned for the dispatcher to log.
func (t *Telegram) SendPush(ctx context.Context, chatID int64, notificationID, title, message, link string) error {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(escape(title))
	b.WriteString("</b>\n")
	b.WriteString(escape(message))
	if link != "" {
		b.WriteString("\n")
		b.WriteString(link)
	}

	// telebot has no context-aware send; bound it the same way the mailer
	// does.
	errCh := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(tele.ChatID(chatID), b.String(), &tele.SendOptions{
			ParseMode:             tele.ModeHTML,
			DisableWebPagePreview: true,
		})
		errCh <- err
	}()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("telegram send (notification %s): %w", notificationID, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}
