package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"telegram-santa-raffle/internal/kv"
)

// fakeSender records what the bot sends instead of calling Telegram.
type fakeSender struct {
	mu        sync.Mutex
	messages  []tgbotapi.MessageConfig
	requests  []tgbotapi.Chattable
	blocked   map[int64]bool
	nextMsgID int
}

func newFakeSender() *fakeSender {
	return &fakeSender{blocked: make(map[int64]bool)}
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, fmt.Errorf("unexpected chattable %T", c)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.blocked[msg.ChatID] {
		return tgbotapi.Message{}, errors.New("Forbidden: bot was blocked by the user")
	}
	f.nextMsgID++
	f.messages = append(f.messages, msg)
	return tgbotapi.Message{MessageID: f.nextMsgID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) block(chatID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[chatID] = true
}

// sent returns the texts sent to chatID, oldest first.
func (f *fakeSender) sent(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, m := range f.messages {
		if m.ChatID == chatID {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

func (f *fakeSender) last(t *testing.T, chatID int64) tgbotapi.MessageConfig {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].ChatID == chatID {
			return f.messages[i]
		}
	}
	t.Fatalf("nothing was sent to chat %d", chatID)
	return tgbotapi.MessageConfig{}
}

func (f *fakeSender) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

func (f *fakeSender) chatActions(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if a, ok := r.(tgbotapi.ChatActionConfig); ok && a.ChatID == chatID {
			n++
		}
	}
	return n
}

func (f *fakeSender) answeredCallbacks() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if _, ok := r.(tgbotapi.CallbackConfig); ok {
			n++
		}
	}
	return n
}

type testBot struct {
	*SecretSantaBot
	api      *fakeSender
	backend  *kv.MemoryBackend
	storage  *Storage
	messages *Messages
}

func newTestBot(t *testing.T, opts Options) *testBot {
	t.Helper()
	backend := kv.NewMemoryBackend()
	storage := NewStorage(kv.NewStore(backend))
	messages, err := LoadMessages("")
	require.NoError(t, err)
	api := newFakeSender()

	return &testBot{
		SecretSantaBot: NewSecretSantaBot(api, storage, messages, opts),
		api:            api,
		backend:        backend,
		storage:        storage,
		messages:       messages,
	}
}

var updateSeq int

func privateChat(chatID int64) *tgbotapi.Chat {
	return &tgbotapi.Chat{ID: chatID, Type: "private"}
}

func messageUpdate(chatID int64, username, text string) tgbotapi.Update {
	updateSeq++
	msg := &tgbotapi.Message{
		MessageID: updateSeq,
		From:      &tgbotapi.User{ID: chatID, UserName: username},
		Chat:      privateChat(chatID),
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		command := strings.Fields(text)[0]
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	}
	return tgbotapi.Update{UpdateID: updateSeq, Message: msg}
}

func callbackUpdate(chatID int64, username, data string) tgbotapi.Update {
	updateSeq++
	return tgbotapi.Update{
		UpdateID: updateSeq,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      fmt.Sprintf("cb-%d", updateSeq),
			From:    &tgbotapi.User{ID: chatID, UserName: username},
			Message: &tgbotapi.Message{MessageID: updateSeq, Chat: privateChat(chatID)},
			Data:    data,
		},
	}
}

// say sends each text from chatID as user "user" and fails on the first error.
func (b *testBot) say(t *testing.T, chatID int64, texts ...string) {
	t.Helper()
	for _, text := range texts {
		require.NoError(t, b.HandleUpdate(context.Background(), messageUpdate(chatID, "user", text)), "handling %q", text)
	}
}

func (b *testBot) press(t *testing.T, chatID int64, data string) {
	t.Helper()
	require.NoError(t, b.HandleUpdate(context.Background(), callbackUpdate(chatID, "user", data)))
}

// join runs the whole join dialogue for chatID.
func (b *testBot) join(t *testing.T, chatID int64, name, wish string) {
	t.Helper()
	b.press(t, chatID, actionJoin)
	b.say(t, chatID, name, wish)
}
