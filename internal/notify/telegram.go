package notify

import (
	"context"
	"net/http"

	"github.com/Laisky/errors/v2"
	"go.uber.org/zap"
	tb "gopkg.in/telebot.v3"

	"github.com/seti-park/Skyscanner/internal/config"
	"github.com/seti-park/Skyscanner/internal/logger"
)

// maxMessageRunes is the Bot API limit for one text message.
const maxMessageRunes = 4096

// DeliveryResult reports the outcome of one send.
type DeliveryResult struct {
	Delivered bool
	MessageID int
	Err       error
}

// chatRecipient addresses a chat by numeric id or @channel name.
type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

// Telegram delivers messages to one chat through the Bot API.
type Telegram struct {
	bot    *tb.Bot
	chat   chatRecipient
	logger *logger.Logger
}

// NewTelegram prepares a bot client without contacting Telegram.
func NewTelegram(cfg config.TelegramConfig, lg *logger.Logger) (*Telegram, error) {
	if cfg.Token == "" || cfg.ChatID == "" {
		return nil, errors.New("telegram token and chat id are required")
	}

	bot, err := tb.NewBot(tb.Settings{
		Token:   cfg.Token,
		URL:     cfg.API,
		Client:  &http.Client{Timeout: cfg.Timeout},
		Offline: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "new telegram bot")
	}

	return &Telegram{
		bot:    bot,
		chat:   chatRecipient(cfg.ChatID),
		logger: lg.Named("telegram"),
	}, nil
}

// Send makes exactly one sendMessage call. Failures are logged and reported in the
// result, never returned as an error.
func (t *Telegram) Send(ctx context.Context, msg Message) DeliveryResult {
	if err := ctx.Err(); err != nil {
		t.logger.Warn("skip send, run cancelled", zap.Error(err))
		return DeliveryResult{Err: err}
	}

	text := msg.Text
	if r := []rune(text); len(r) > maxMessageRunes {
		text = string(r[:maxMessageRunes-3]) + "..."
	}

	sent, err := t.bot.Send(t.chat, text, &tb.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		err = errors.Wrap(err, "telegram send message")
		t.logger.Error("notification not delivered", zap.String("chat", string(t.chat)), zap.Error(err))
		return DeliveryResult{Err: err}
	}

	t.logger.Info("notification delivered",
		zap.String("chat", string(t.chat)),
		zap.Int("message_id", sent.ID),
		zap.Int("flights", msg.Flights))
	return DeliveryResult{Delivered: true, MessageID: sent.ID}
}
