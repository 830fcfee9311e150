package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/avelasko/taskpilot/internal/agent"
	"github.com/avelasko/taskpilot/internal/auth"
	"github.com/avelasko/taskpilot/internal/events"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Bot is the Telegram chat surface for the conversational agent. A chat must
// first bind itself to an API session token with /login; every turn after
// that is validated through the same session validator the HTTP API uses, so
// the bot never grants access a plain API call would not.
type Bot struct {
	api       *tgbotapi.BotAPI
	validator *auth.Validator
	agent     *agent.Agent
	logger    *zap.Logger

	mu        sync.RWMutex
	tokens    map[int64]string // chat id -> session token
	userChats map[string]int64 // user id -> chat id, for reminder delivery
}

func New(token string, validator *auth.Validator, agt *agent.Agent, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:       api,
		validator: validator,
		agent:     agt,
		logger:    logger,
		tokens:    make(map[int64]string),
		userChats: make(map[string]int64),
	}, nil
}

func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			go b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	userID, ok := b.authenticate(ctx, message.Chat.ID)
	if !ok {
		b.sendMessage(message.Chat.ID, "Please link your account first: /login <token>")
		return
	}

	reply := b.agent.HandleTurn(ctx, userID, fmt.Sprintf("telegram:%d", message.Chat.ID), message.Text)
	b.sendMessage(message.Chat.ID, reply)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.handleStart(message)
	case "help":
		b.handleHelp(message)
	case "login":
		b.handleLogin(ctx, message)
	case "logout":
		b.handleLogout(message)
	default:
		b.sendMessage(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleStart(message *tgbotapi.Message) {
	welcome := `Welcome to TaskPilot! ✅
I manage your todo list in plain language: add tasks, set due dates, mark things done, or ask what's on your plate.

Link your account first with /login <token>, then just talk to me.
Use /help to see all available commands.`

	b.sendMessage(message.Chat.ID, welcome)
}

func (b *Bot) handleHelp(message *tgbotapi.Message) {
	help := `Available commands:
/start - Start the bot
/help - Show this help message
/login <token> - Link this chat to your account session
/logout - Unlink this chat

Once linked, just write to me:
- "add pay rent due friday"
- "show my urgent tasks"
- "mark it done"
- "delete all completed tasks"

I'll ask before deleting anything.`

	b.sendMessage(message.Chat.ID, help)
}

func (b *Bot) handleLogin(ctx context.Context, message *tgbotapi.Message) {
	token := strings.TrimSpace(message.CommandArguments())
	if token == "" {
		b.sendMessage(message.Chat.ID, "Usage: /login <token>")
		return
	}

	userID, err := b.validator.Validate(ctx, token)
	if err != nil {
		b.sendMessage(message.Chat.ID, "That token isn't valid. Please request a fresh one and try again.")
		return
	}

	b.mu.Lock()
	b.tokens[message.Chat.ID] = token
	b.userChats[userID] = message.Chat.ID
	b.mu.Unlock()

	b.sendMessage(message.Chat.ID, "Linked! You can talk to me now.")
}

func (b *Bot) handleLogout(message *tgbotapi.Message) {
	b.mu.Lock()
	delete(b.tokens, message.Chat.ID)
	for userID, chatID := range b.userChats {
		if chatID == message.Chat.ID {
			delete(b.userChats, userID)
		}
	}
	b.mu.Unlock()

	b.sendMessage(message.Chat.ID, "Unlinked. Use /login <token> to connect again.")
}

// authenticate re-validates the bound token on every turn, so an expired
// session stops working here exactly when it stops working on the API.
func (b *Bot) authenticate(ctx context.Context, chatID int64) (string, bool) {
	b.mu.RLock()
	token, ok := b.tokens[chatID]
	b.mu.RUnlock()
	if !ok {
		return "", false
	}

	userID, err := b.validator.Validate(ctx, token)
	if err != nil {
		b.mu.Lock()
		delete(b.tokens, chatID)
		b.mu.Unlock()
		return "", false
	}
	return userID, true
}

// Publish implements events.Publisher: reminder events are forwarded to the
// owning user's linked chat. Other event types are not user-facing here.
func (b *Bot) Publish(ctx context.Context, event events.Event) {
	if event.Type != events.TaskReminder {
		return
	}

	b.mu.RLock()
	chatID, ok := b.userChats[event.UserID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	b.sendMessage(chatID, fmt.Sprintf("⏰ Reminder: %s", event.Title))
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}
