package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"telegram-santa-raffle/internal/domain"
	"telegram-santa-raffle/internal/wizard"
)

const (
	actionJoin        = "JOIN"
	actionStartRaffle = "START_RAFFLE"

	gameIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	gameIDLength   = 10
)

// Sender is the part of *tgbotapi.BotAPI the bot talks through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Options struct {
	// Admins are Telegram usernames allowed to create games, run the raffle
	// and reset. An empty list lets everyone do so.
	Admins         []string
	TypingInterval time.Duration
	// RandIntN drives the raffle shuffle; nil uses math/rand/v2.
	RandIntN func(n int) int
	// NewGameID overrides game id generation.
	NewGameID func() (string, error)
}

type SecretSantaBot struct {
	api      Sender
	storage  *Storage
	messages *Messages
	stage    *wizard.Stage
	raffle   *RaffleOrchestrator
	admins   map[string]bool

	newGameID func() (string, error)
	handler   HandlerFunc
}

func NewSecretSantaBot(api Sender, storage *Storage, messages *Messages, opts Options) *SecretSantaBot {
	adminMap := make(map[string]bool)
	for _, admin := range opts.Admins {
		adminUsername := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(admin), "@"))
		if adminUsername != "" {
			adminMap[strings.ToLower(adminUsername)] = true
		}
	}

	s := &SecretSantaBot{
		api:       api,
		storage:   storage,
		messages:  messages,
		admins:    adminMap,
		newGameID: opts.NewGameID,
	}
	if s.newGameID == nil {
		s.newGameID = func() (string, error) {
			return gonanoid.Generate(gameIDAlphabet, gameIDLength)
		}
	}

	s.stage = wizard.NewStage(storage, s.onSceneCancelled, s.createGameScene(), s.joinGameScene())
	s.raffle = NewRaffleOrchestrator(storage, s, opts.RandIntN)
	s.handler = chain(s.route,
		RecoveryMiddleware(),
		PrivateOnlyMiddleware(),
		LoggingMiddleware(),
		TypingMiddleware(api, opts.TypingInterval),
	)
	return s
}

// HandleUpdate runs one update through the middleware chain and the router.
func (s *SecretSantaBot) HandleUpdate(ctx context.Context, u tgbotapi.Update) error {
	return s.handler(ctx, &u)
}

func (s *SecretSantaBot) IsAdmin(username string) bool {
	if len(s.admins) == 0 {
		return true
	}
	if username == "" {
		return false
	}
	usernameLower := strings.ToLower(strings.TrimPrefix(username, "@"))
	return s.admins[usernameLower]
}

func (s *SecretSantaBot) route(ctx context.Context, u *tgbotapi.Update) error {
	if u.CallbackQuery != nil {
		return s.handleCallback(ctx, u.CallbackQuery)
	}

	msg := u.Message
	if msg == nil {
		return nil
	}

	in := wizard.Input{
		ChatID: msg.Chat.ID,
		Text:   msg.Text,
		IsText: msg.Text != "",
	}
	if msg.IsCommand() {
		in.Command = strings.ToLower(msg.Command())
	}
	if handled, err := s.stage.Handle(ctx, in); handled || err != nil {
		return err
	}

	if msg.IsCommand() {
		return s.handleCommand(ctx, msg)
	}
	if msg.Text != "" {
		return s.handleText(msg)
	}
	return nil
}

func (s *SecretSantaBot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID
	username := ""
	if msg.From != nil {
		username = msg.From.UserName
	}

	switch strings.ToLower(msg.Command()) {
	case "start":
		return s.handleStart(ctx, chatID)

	case "help":
		return s.send(chatID, s.messages.Plain("help"))

	case "create":
		if !s.IsAdmin(username) {
			return s.send(chatID, s.messages.Plain("not_admin"))
		}
		return s.stage.Enter(ctx, chatID, sceneCreateGame)

	case "get":
		return s.handleGetGame(ctx, chatID)

	case "raffle":
		if !s.IsAdmin(username) {
			return s.send(chatID, s.messages.Plain("not_admin"))
		}
		return s.handleRaffleRoster(ctx, chatID)

	case "reset":
		if !s.IsAdmin(username) {
			return s.send(chatID, s.messages.Plain("not_admin"))
		}
		if err := s.storage.Reset(ctx); err != nil {
			return err
		}
		log.Info().Int64("chat_id", chatID).Str("username", username).Msg("Game reset")
		return s.send(chatID, s.messages.Plain("reset_done"))

	default:
		return s.send(chatID, s.messages.Plain("unknown_command"))
	}
}

func (s *SecretSantaBot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if _, err := s.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Debug().Err(err).Str("callback_id", cb.ID).Msg("Failed to answer callback")
	}
	if cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	chatID := cb.Message.Chat.ID

	// a button pressed mid-dialogue is just non-text input for the scene
	if handled, err := s.stage.Handle(ctx, wizard.Input{ChatID: chatID}); handled || err != nil {
		return err
	}

	username := ""
	if cb.From != nil {
		username = cb.From.UserName
	}

	switch cb.Data {
	case actionJoin:
		if _, err := s.storage.GetGame(ctx); err != nil {
			if errors.Is(err, domain.ErrNoGame) {
				return s.send(chatID, s.messages.Plain("no_game"))
			}
			return err
		}
		return s.stage.Enter(ctx, chatID, sceneJoinGame)

	case actionStartRaffle:
		if !s.IsAdmin(username) {
			return s.send(chatID, s.messages.Plain("not_admin"))
		}
		return s.handleStartRaffle(ctx, chatID)

	default:
		log.Debug().Str("data", cb.Data).Int64("chat_id", chatID).Msg("Unknown callback")
		return nil
	}
}

func (s *SecretSantaBot) handleStart(ctx context.Context, chatID int64) error {
	if err := s.send(chatID, s.messages.Plain("greeting")); err != nil {
		return err
	}

	game, err := s.storage.GetGame(ctx)
	if errors.Is(err, domain.ErrNoGame) {
		return nil
	}
	if err != nil {
		return err
	}

	participants, err := s.storage.GetParticipants(ctx)
	if err != nil {
		return err
	}

	text, err := s.messages.Render("join_invite", gameView{
		ID:       game.ID,
		Name:     game.Name,
		GiftCost: formatCost(game.GiftCost),
		Count:    participants.Len(),
	})
	if err != nil {
		return err
	}
	return s.sendWithKeyboard(chatID, text, tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(s.messages.Plain("join_button"), actionJoin),
		),
	))
}

func (s *SecretSantaBot) handleGetGame(ctx context.Context, chatID int64) error {
	game, err := s.storage.GetGame(ctx)
	if errors.Is(err, domain.ErrNoGame) {
		return s.send(chatID, s.messages.Plain("no_game"))
	}
	if err != nil {
		return err
	}

	text, err := s.messages.Render("game_card", gameView{
		ID:       game.ID,
		Name:     game.Name,
		GiftCost: formatCost(game.GiftCost),
	})
	if err != nil {
		return err
	}
	return s.send(chatID, text)
}

func (s *SecretSantaBot) handleRaffleRoster(ctx context.Context, chatID int64) error {
	participants, err := s.storage.GetParticipants(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, participants.Len())
	participants.Each(func(_ int64, p *domain.Participant) {
		names = append(names, p.Name)
	})

	text, err := s.messages.Render("raffle_roster", rosterView{Names: names})
	if err != nil {
		return err
	}
	return s.sendWithKeyboard(chatID, text, tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(s.messages.Plain("start_button"), actionStartRaffle),
		),
	))
}

func (s *SecretSantaBot) handleStartRaffle(ctx context.Context, chatID int64) error {
	result, err := s.raffle.Run(ctx)
	if errors.Is(err, domain.ErrTooFewParticipants) {
		return s.send(chatID, s.messages.Plain("raffle_too_few"))
	}
	if err != nil {
		return fmt.Errorf("raffle failed: %w", err)
	}

	summary := summaryView{Pairs: make([]pairView, 0, len(result.Assignments))}
	for _, a := range result.Assignments {
		summary.Pairs = append(summary.Pairs, pairView{Giver: a.Giver.Name, Ward: a.Ward.Name})
	}
	for _, a := range result.Failed() {
		summary.Failed = append(summary.Failed, a.Giver.Name)
	}

	text, err := s.messages.Render("raffle_summary", summary)
	if err != nil {
		return err
	}
	return s.send(chatID, text)
}

// handleText answers free text outside a dialogue: an https link gets an
// "Open" button, anything else a validation hint.
func (s *SecretSantaBot) handleText(msg *tgbotapi.Message) error {
	link, ok := parseHTTPSURL(msg.Text)
	if !ok {
		return s.send(msg.Chat.ID, s.messages.Plain("invalid_url"))
	}

	return s.sendWithKeyboard(msg.Chat.ID, html.EscapeString(link), tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(s.messages.Plain("open_button"), link),
		),
	))
}

func parseHTTPSURL(text string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(text))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return "", false
	}
	return u.String(), true
}

// NotifyWard sends a giver the name and gift wish of their ward.
func (s *SecretSantaBot) NotifyWard(_ context.Context, giverChatID int64, ward domain.Participant) error {
	text, err := s.messages.Render("ward_notification", wardView{
		Name:     ward.Name,
		GiftWish: ward.GiftWish,
	})
	if err != nil {
		return err
	}
	return s.send(giverChatID, text)
}

func (s *SecretSantaBot) onSceneCancelled(_ context.Context, chatID int64) error {
	return s.send(chatID, s.messages.Plain("cancelled"))
}

func (s *SecretSantaBot) send(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return nil
}

func (s *SecretSantaBot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	msg.DisableNotification = true
	if _, err := s.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return nil
}
