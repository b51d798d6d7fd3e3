package delivery

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	"notifyd/internal/job"
	logx "notifyd/pkg/logx"
)

// TelegramConfig configures the Telegram delivery channel.
type TelegramConfig struct {
	Token   string
	Offline bool // skip the getMe probe (tests)
}

// TelegramSender delivers telegram payloads via the Bot API.
// No poller is attached: this bot only sends.
type TelegramSender struct {
	bot *tele.Bot
	log logx.Logger
}

func NewTelegramSender(cfg TelegramConfig, log logx.Logger) (*TelegramSender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram.token is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b, log: log}, nil
}

func (t *TelegramSender) Channel() string { return "telegram" }

func (t *TelegramSender) Deliver(ctx context.Context, p job.Payload) error {
	if p.Telegram == nil {
		return errors.New("telegram payload missing")
	}
	// telebot's send path is not context-aware; honor cancellation
	// before the call at least.
	if err := ctx.Err(); err != nil {
		return err
	}
	chat := &tele.Chat{ID: p.Telegram.ChatID}
	_, err := t.bot.Send(chat, p.Telegram.Text, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}
