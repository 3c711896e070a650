package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/kirillm/kis-trader/internal/botstate"
	"github.com/kirillm/kis-trader/pkg/utils"
)

const (
	// longPollTimeout - таймаут getUpdates в секундах
	longPollTimeout = 60

	// httpTimeout должен быть больше long poll, иначе getUpdates рвется
	httpTimeout = 75 * time.Second

	rateLimiterCleanupEvery = 5 * time.Minute
	rateLimiterIdle         = 10 * time.Minute
)

// Bot отправляет уведомления о сделках и принимает команды оператора
type Bot struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *utils.Logger
	router *Router
	auth   *AuthManager
}

func NewBot(token string, chatID int64, logger *utils.Logger, store *botstate.Store) (*Bot, error) {
	api, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: httpTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	if logger == nil {
		logger = utils.Discard()
	}
	logger = logger.With("telegram")
	logger.Info("Telegram bot authorized: @%s", api.Self.UserName)

	formatter := NewFormatter(LangEN)
	auth := NewAuthManager([]int64{chatID}, 1, 3)
	router := NewRouter(auth, formatter)
	NewHandlers(store, formatter).Register(router)

	return &Bot{
		api:    api,
		chatID: chatID,
		logger: logger,
		router: router,
		auth:   auth,
	}, nil
}

// Start обрабатывает сообщения до отмены ctx
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = longPollTimeout

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	go cleanupLoop(ctx, b.auth, rateLimiterCleanupEvery, rateLimiterIdle, b.logger)

	b.SendMessage("🤖 KIS trading bot started!\nUse /help to see available commands.")

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

// cleanupLoop периодически очищает лимитеры неактивных чатов
func cleanupLoop(ctx context.Context, am *AuthManager, every, idle time.Duration, logger *utils.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			am.CleanupRateLimiters(idle)
			logger.Debug("Cleaned up rate limiters")
		}
	}
}

// handleMessage обрабатывает входящую команду
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	if chatID != b.chatID {
		b.logger.Warn("Unauthorized access attempt from chat ID: %d", chatID)
		return
	}

	b.logger.Info("Received command: %s", message.Text)

	reply, err := b.router.HandleCommand(ctx, chatID, message.Text)
	if err != nil {
		b.logger.Warn("Command %q failed: %v", message.Text, err)
	}
	b.send(chatID, reply)
}

// SendMessage отправляет сообщение оператору. Подходит как notify-хук планировщика.
func (b *Bot) SendMessage(text string) {
	b.send(b.chatID, text)
}

func (b *Bot) send(chatID int64, text string) {
	// Разбиваем длинные сообщения
	const maxLength = 4096
	for _, msg := range splitMessage(text, maxLength) {
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, msg)); err != nil {
			b.logger.Error("Failed to send telegram message: %v", err)
		}
	}
}

// splitMessage разбивает длинное сообщение на части
func splitMessage(text string, maxLength int) []string {
	if len(text) <= maxLength {
		return []string{text}
	}

	var messages []string
	lines := strings.Split(text, "\n")
	currentMessage := ""

	for _, line := range lines {
		if len(currentMessage)+len(line)+1 > maxLength {
			messages = append(messages, currentMessage)
			currentMessage = line
		} else {
			if currentMessage != "" {
				currentMessage += "\n"
			}
			currentMessage += line
		}
	}

	if currentMessage != "" {
		messages = append(messages, currentMessage)
	}

	return messages
}
