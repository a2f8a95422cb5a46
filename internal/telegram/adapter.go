package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/taskpilot/internal/agent"
	"github.com/user/taskpilot/internal/state"
	"github.com/user/taskpilot/internal/types"
)

const maxTelegramMessage = 4096

// sender is the part of the bot API the adapter sends through.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter bridges Telegram chats to an agent.
type Adapter struct {
	bot    sender
	poller *tgbotapi.BotAPI
	agent  agent.Agent
	router *state.SessionRouter
	events types.EventStore
	wg     sync.WaitGroup
}

// New creates a Telegram adapter that answers every chat with a.
func New(token string, a agent.Agent, router *state.SessionRouter, events types.EventStore) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	slog.Info("telegram bot authorized", "user", bot.Self.UserName)
	return &Adapter{
		bot:    bot,
		poller: bot,
		agent:  a,
		router: router,
		events: events,
	}, nil
}

// Start long-polls for updates until ctx ends. Messages are answered
// concurrently; the agent keeps each chat's messages in order.
func (a *Adapter) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := a.poller.GetUpdatesChan(u)

	for {
		select {
		case update := <-updates:
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			msg := update.Message
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				a.handleMessage(ctx, msg)
			}()
		case <-ctx.Done():
			a.poller.StopReceivingUpdates()
			a.wg.Wait()
			return
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		a.handleCommand(ctx, msg)
		return
	}

	chatID := msg.Chat.ID
	key := buildSessionKey(userID(msg), chatID)
	reply, err := a.agent.ProcessMessage(ctx, msg.Text, key)
	if err != nil {
		slog.Warn("telegram message rejected", "session_key", string(key), "error", err)
		a.sendResponse(chatID, agent.FailureReply)
		return
	}
	a.sendResponse(chatID, reply.Content)
}

func (a *Adapter) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		a.sendResponse(chatID, "Hello! I'm Taskpilot. Tell me what you need to do and I'll keep your task list for you.")

	case "status":
		handle, err := a.router.Resolve(ctx, buildSessionKey(userID(msg), chatID))
		if err != nil {
			a.sendResponse(chatID, "Error fetching status.")
			return
		}
		count, err := a.events.Count(ctx, handle)
		if err != nil {
			a.sendResponse(chatID, "Error fetching status.")
			return
		}
		a.sendResponse(chatID, fmt.Sprintf("Session: %s\nEvents: %d", handle, count))

	default:
		a.sendResponse(chatID, "Unknown command. Available: /start, /status")
	}
}

func (a *Adapter) sendResponse(chatID int64, text string) {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := a.bot.Send(msg); err != nil {
			// Model output is not always valid Markdown.
			msg.ParseMode = ""
			if _, err := a.bot.Send(msg); err != nil {
				slog.Error("telegram send failed", "chat_id", chatID, "error", err)
			}
		}
	}
}

// splitMessage cuts text into chunks of at most maxTelegramMessage bytes
// without splitting a UTF-8 sequence.
func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > maxTelegramMessage {
		end := maxTelegramMessage
		for end > 0 && !utf8.RuneStart(text[end]) {
			end--
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func userID(msg *tgbotapi.Message) int64 {
	if msg.From == nil {
		return 0
	}
	return msg.From.ID
}

func buildSessionKey(userID, chatID int64) types.SessionKey {
	return types.NewSessionKey("telegram",
		strconv.FormatInt(userID, 10),
		strconv.FormatInt(chatID, 10),
	)
}
