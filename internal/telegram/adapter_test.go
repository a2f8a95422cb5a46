package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/taskpilot/internal/agent"
	"github.com/user/taskpilot/internal/state"
	"github.com/user/taskpilot/internal/types"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	failMode string
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := c.(tgbotapi.MessageConfig)
	if f.failMode != "" && msg.ParseMode == f.failMode {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

type fakeAgent struct {
	lastKey types.SessionKey
	reply   string
	err     error
}

func (f *fakeAgent) ProcessMessage(_ context.Context, _ string, key types.SessionKey) (types.ChatMessage, error) {
	f.lastKey = key
	if f.err != nil {
		return types.ChatMessage{}, f.err
	}
	return types.AssistantMessage(f.reply), nil
}

func newTestAdapter(a agent.Agent) (*Adapter, *fakeSender, *state.EventStore) {
	s := &fakeSender{}
	events := state.NewEventStore()
	return &Adapter{bot: s, agent: a, router: state.NewSessionRouter(nil), events: events}, s, events
}

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		From: &tgbotapi.User{ID: 12345},
		Chat: &tgbotapi.Chat{ID: 67890},
	}
}

func commandMessage(cmd string) *tgbotapi.Message {
	msg := textMessage("/" + cmd)
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd) + 1}}
	return msg
}

func TestHandleMessageRoutesSessionKey(t *testing.T) {
	fa := &fakeAgent{reply: "Task created."}
	a, s, _ := newTestAdapter(fa)

	a.handleMessage(context.Background(), textMessage("add milk"))

	if fa.lastKey != "telegram:12345:67890" {
		t.Errorf("unexpected session key %q", fa.lastKey)
	}
	if len(s.sent) != 1 || s.sent[0].Text != "Task created." || s.sent[0].ChatID != 67890 {
		t.Errorf("unexpected sends %+v", s.sent)
	}
}

func TestHandleMessageAgentError(t *testing.T) {
	a, s, _ := newTestAdapter(&fakeAgent{err: &types.ValidationError{Field: "message", Reason: "must not be empty"}})
	a.handleMessage(context.Background(), textMessage("x"))
	if len(s.sent) != 1 || s.sent[0].Text != agent.FailureReply {
		t.Errorf("unexpected sends %+v", s.sent)
	}
}

func TestSendFallsBackToPlainText(t *testing.T) {
	a, s, _ := newTestAdapter(&fakeAgent{})
	s.failMode = tgbotapi.ModeMarkdown
	a.sendResponse(1, "*unbalanced")
	if len(s.sent) != 1 || s.sent[0].ParseMode != "" {
		t.Errorf("expected plain text retry, got %+v", s.sent)
	}
}

func TestCommands(t *testing.T) {
	a, s, events := newTestAdapter(&fakeAgent{})
	events.Append(context.Background(), &types.Event{Handle: "telegram:12345:67890", Type: types.EventUserMessage})

	a.handleMessage(context.Background(), commandMessage("start"))
	a.handleMessage(context.Background(), commandMessage("status"))
	a.handleMessage(context.Background(), commandMessage("bogus"))

	if len(s.sent) != 3 {
		t.Fatalf("expected 3 replies, got %d", len(s.sent))
	}
	if !strings.HasPrefix(s.sent[0].Text, "Hello!") {
		t.Errorf("unexpected /start reply %q", s.sent[0].Text)
	}
	if s.sent[1].Text != "Session: telegram:12345:67890\nEvents: 1" {
		t.Errorf("unexpected /status reply %q", s.sent[1].Text)
	}
	if !strings.HasPrefix(s.sent[2].Text, "Unknown command") {
		t.Errorf("unexpected fallback reply %q", s.sent[2].Text)
	}
}

func TestSplitMessage(t *testing.T) {
	short := "Hello world"
	parts := splitMessage(short)
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
	if parts[0] != short {
		t.Errorf("expected %q, got %q", short, parts[0])
	}
}

func TestSplitMessageLong(t *testing.T) {
	long := strings.Repeat("a", 5000)
	parts := splitMessage(long)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	if len(parts[0]) != maxTelegramMessage {
		t.Errorf("expected first part length %d, got %d", maxTelegramMessage, len(parts[0]))
	}
}

func TestSplitMessageKeepsRunes(t *testing.T) {
	long := strings.Repeat("é", 3000)
	parts := splitMessage(long)
	if strings.Join(parts, "") != long {
		t.Fatal("parts do not reassemble")
	}
	for i, p := range parts {
		if !utf8.ValidString(p) || len(p) > maxTelegramMessage {
			t.Errorf("part %d invalid (len %d)", i, len(p))
		}
	}
}

func TestBuildSessionKey(t *testing.T) {
	key := buildSessionKey(12345, 67890)
	if string(key) != "telegram:12345:67890" {
		t.Errorf("expected 'telegram:12345:67890', got %q", key)
	}
}
