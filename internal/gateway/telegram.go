package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/oson-apps/notify-engine/internal/model"
	"github.com/oson-apps/notify-engine/pkg/circuitbreaker"
	apperrors "github.com/oson-apps/notify-engine/pkg/errors"
	"github.com/oson-apps/notify-engine/pkg/logger"
)

const telegramProvider = "telegram"

type TelegramConfig struct {
	Token   string
	URL     string // override for the Bot API endpoint, mainly for tests
	Offline bool   // skip the getMe probe, mainly for tests
	Retry   RetryPolicy
}

// Telegram is the chat-bot adapter. Recipient is the chat id as a string.
type Telegram struct {
	cfg TelegramConfig
	bot *tele.Bot
	cb  *circuitbreaker.CircuitBreaker
	log *logger.Logger
}

func NewTelegram(cfg TelegramConfig, log *logger.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, apperrors.Config("telegram token is required", nil)
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     cfg.URL,
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, apperrors.Config("telegram bot init failed", err)
	}
	return &Telegram{
		cfg: cfg,
		bot: bot,
		cb:  circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{Name: telegramProvider}),
		log: log,
	}, nil
}

func (t *Telegram) Provider() string { return telegramProvider }
func (t *Telegram) Channel() string  { return model.ChannelChat }

func (t *Telegram) Send(ctx context.Context, recipient string, msg Message) Outcome {
	chatID, err := strconv.ParseInt(strings.TrimSpace(recipient), 10, 64)
	if err != nil {
		return outcomeFromError(model.ChannelChat, telegramProvider, 0,
			apperrors.InvalidInput(fmt.Sprintf("malformed chat id %q", recipient), err))
	}

	text := msg.Body
	if msg.Title != "" {
		text = msg.Title + "\n\n" + msg.Body
	}

	opts := &tele.SendOptions{DisableWebPagePreview: true}
	if msg.ActionURL != "" {
		label := msg.ActionLabel
		if label == "" {
			label = "Open"
		}
		markup := &tele.ReplyMarkup{}
		markup.Inline(markup.Row(tele.Btn{Text: label, URL: msg.ActionURL}))
		opts.ReplyMarkup = markup
	}

	id, attempts, sendErr := attempt(ctx, t.cfg.Retry, t.cb, func(ctx context.Context) (string, error) {
		sent, err := t.bot.Send(tele.ChatID(chatID), text, opts)
		if err != nil {
			return "", classifyTelegramError(err)
		}
		return strconv.Itoa(sent.ID), nil
	})

	if sendErr != nil {
		return outcomeFromError(model.ChannelChat, telegramProvider, attempts, sendErr)
	}
	return Outcome{
		Success:           true,
		Channel:           model.ChannelChat,
		Provider:          telegramProvider,
		ProviderMessageID: id,
		Attempts:          attempts,
		Timestamp:         time.Now(),
	}
}

// classifyTelegramError maps Bot API errors onto the retry taxonomy: explicit
// API rejections (blocked bot, bad chat id) are permanent, transport problems
// are transient.
func classifyTelegramError(err error) error {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 500 || apiErr.Code == 429 {
			return apperrors.ProviderUnavailable(telegramProvider, err)
		}
		return apperrors.ProviderRejected(telegramProvider, apiErr.Description)
	}
	return apperrors.ProviderUnavailable(telegramProvider, err)
}
