package service

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// HandlerFunc handles one inbound update.
type HandlerFunc func(ctx context.Context, u *tgbotapi.Update) error

// MiddlewareFunc wraps a HandlerFunc.
type MiddlewareFunc func(next HandlerFunc) HandlerFunc

// chain applies middleware so that the first one listed runs first.
func chain(h HandlerFunc, mws ...MiddlewareFunc) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// updateChat returns the chat an update belongs to, or nil.
func updateChat(u *tgbotapi.Update) *tgbotapi.Chat {
	switch {
	case u.Message != nil:
		return u.Message.Chat
	case u.EditedMessage != nil:
		return u.EditedMessage.Chat
	case u.CallbackQuery != nil && u.CallbackQuery.Message != nil:
		return u.CallbackQuery.Message.Chat
	}
	return nil
}

// RecoveryMiddleware turns a panic in a handler into an error.
func RecoveryMiddleware() MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, u *tgbotapi.Update) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Int("update_id", u.UpdateID).
						Msg("Recovered from panic in handler")
					err = fmt.Errorf("panic handling update %d: %v", u.UpdateID, r)
				}
			}()
			return next(ctx, u)
		}
	}
}

// PrivateOnlyMiddleware drops every update that does not come from a one-on-one chat.
func PrivateOnlyMiddleware() MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, u *tgbotapi.Update) error {
			chat := updateChat(u)
			if chat == nil || !chat.IsPrivate() {
				event := log.Debug().Int("update_id", u.UpdateID)
				if chat != nil {
					event = event.Int64("chat_id", chat.ID).Str("chat_type", chat.Type)
				}
				event.Msg("Ignoring update outside private chat")
				return nil
			}
			return next(ctx, u)
		}
	}
}

// LoggingMiddleware logs every update that reaches the handlers.
func LoggingMiddleware() MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, u *tgbotapi.Update) error {
			event := log.Debug().Int("update_id", u.UpdateID)
			if chat := updateChat(u); chat != nil {
				event = event.Int64("chat_id", chat.ID)
			}
			switch {
			case u.Message != nil:
				event = event.Str("text", u.Message.Text)
			case u.CallbackQuery != nil:
				event = event.Str("callback", u.CallbackQuery.Data)
			}
			event.Msg("Received update")
			return next(ctx, u)
		}
	}
}

// TypingMiddleware shows the "typing" indicator while a non-callback update is
// handled, repeating it every interval because Telegram clears it after a few seconds.
func TypingMiddleware(api Sender, interval time.Duration) MiddlewareFunc {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, u *tgbotapi.Update) error {
			chat := updateChat(u)
			if u.CallbackQuery != nil || chat == nil || interval <= 0 {
				return next(ctx, u)
			}

			sendTyping(api, chat.ID)

			done := make(chan struct{})
			defer close(done)
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ctx.Done():
						return
					case <-ticker.C:
						sendTyping(api, chat.ID)
					}
				}
			}()

			return next(ctx, u)
		}
	}
}

func sendTyping(api Sender, chatID int64) {
	if _, err := api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		log.Debug().Err(err).Int64("chat_id", chatID).Msg("Failed to send typing action")
	}
}
