package telegram

import (
	"context"
	"fmt"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"StoryIndexer/internal/ports"
)

const maxMessageLength = 4096

// Sender is the part of the bot API the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier sends run reports to a Telegram chat. The bot is connected on
// first use so a misconfigured token never blocks a run from starting.
type Notifier struct {
	chatID  int64
	connect func() (Sender, error)

	mu     sync.Mutex
	sender Sender
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken string, chatID int64) *Notifier {
	return &Notifier{
		chatID: chatID,
		connect: func() (Sender, error) {
			return tgbotapi.NewBotAPI(botToken)
		},
	}
}

// NewNotifierWithSender uses an already connected sender.
func NewNotifierWithSender(sender Sender, chatID int64) *Notifier {
	return &Notifier{chatID: chatID, sender: sender}
}

// PublishDigest posts digest as a plain-text message.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n.chatID == 0 {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	sender, err := n.bot()
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(n.chatID, truncate(digest, maxMessageLength))
	msg.DisableWebPagePreview = true
	if _, err := sender.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

func (n *Notifier) bot() (Sender, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.sender != nil {
		return n.sender, nil
	}
	if n.connect == nil {
		return nil, fmt.Errorf("telegram notifier misconfigured")
	}

	sender, err := n.connect()
	if err != nil {
		return nil, fmt.Errorf("connect telegram bot: %w", err)
	}
	n.sender = sender
	return sender, nil
}

func truncate(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	return string(runes[:limit-1]) + "…"
}
