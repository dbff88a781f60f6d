// Package notify fans pipeline events out to operators: Telegram alerts for
// circuit trips and stuck drains, plus in-platform notifications for
// business-rule violations.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/niteshatinception/for-monday/internal/config"
	"github.com/niteshatinception/for-monday/internal/events"
	"github.com/niteshatinception/for-monday/internal/monday"
)

// Notifier is safe to use with an empty Telegram config: alerts are then
// logged and dropped.
type Notifier struct {
	monday  *monday.Client
	bot     *tgbotapi.BotAPI
	chatID  int64
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func New(cfg config.TelegramConfig, mondayClient *monday.Client, logger *zerolog.Logger) (*Notifier, error) {
	n := &Notifier{
		monday: mondayClient,
		chatID: cfg.ChatID,
		// Telegram tolerates ~20 msg/min to one chat; a burst of 5 covers
		// startup noise without tripping the API.
		limiter: rate.NewLimiter(rate.Limit(20.0/60.0), 5),
		logger:  logger.With().Str("component", "notifier").Logger(),
	}

	if cfg.BotToken == "" {
		n.logger.Info().Msg("Telegram alerts disabled: no bot token configured")
		return n, nil
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = cfg.Debug
	n.bot = bot
	n.logger.Info().Str("account", bot.Self.UserName).Msg("Telegram alerts enabled")
	return n, nil
}

// NotifyColumnLimit tells the item owner the destination column is full. The
// transfer itself counts as handled, not failed.
func (n *Notifier) NotifyColumnLimit(ctx context.Context, token string, userID, itemID int64, fileName string) error {
	text := fmt.Sprintf("File %q was not copied: the destination column reached its file limit.", fileName)
	return n.monday.SendNotification(ctx, token, userID, itemID, text)
}

// Alert sends a plain operator message to the configured chat.
func (n *Notifier) Alert(text string) {
	if n == nil || n.bot == nil {
		return
	}
	if !n.limiter.Allow() {
		n.logger.Warn().Str("text", text).Msg("Alert suppressed by rate limit")
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Err(err).Msg("Failed to send telegram alert")
	}
}

// SubscribeBus wires the notifier to pipeline events.
func (n *Notifier) SubscribeBus(bus *events.EventBus) {
	bus.Subscribe(events.EventCircuitOpened, func(event *events.Event) error {
		var payload events.CircuitEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		n.Alert(fmt.Sprintf("⚠️ Circuit opened for %s, retry in %s", payload.Key, payload.Remaining))
		return nil
	})

	bus.Subscribe(events.EventTransferDropped, func(event *events.Event) error {
		var payload events.TransferEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		n.Alert(fmt.Sprintf("❌ Transfer dropped: %s (item %d, %s)", payload.FileName, payload.ItemID, payload.Detail))
		return nil
	})
}
