package service

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"telegram-santa-raffle/internal/domain"
	"telegram-santa-raffle/internal/wizard"
)

const (
	sceneCreateGame wizard.SceneID = "CREATE_GAME"
	sceneJoinGame   wizard.SceneID = "JOIN_GAME"
)

// createGameScene asks for a name, then a gift cost, then saves the game.
func (s *SecretSantaBot) createGameScene() *wizard.Scene {
	return &wizard.Scene{
		ID: sceneCreateGame,
		Steps: []wizard.Step{
			func(_ context.Context, c *wizard.Context) error {
				c.Next()
				return s.send(c.ChatID, s.messages.Plain("create_prompt_name"))
			},
			func(_ context.Context, c *wizard.Context) error {
				if !c.IsText {
					return s.send(c.ChatID, s.messages.Plain("create_reprompt_name"))
				}
				c.Next()
				c.Session.GameName = c.Text
				return s.send(c.ChatID, s.messages.Plain("create_prompt_cost"))
			},
			func(ctx context.Context, c *wizard.Context) error {
				if !c.IsText {
					return s.send(c.ChatID, s.messages.Plain("create_prompt_cost"))
				}
				cost, err := parseGiftCost(c.Text)
				if err != nil {
					return s.send(c.ChatID, s.messages.Plain("create_invalid_cost"))
				}

				id, err := s.newGameID()
				if err != nil {
					return err
				}
				game := &domain.Game{
					ID:       id,
					Name:     c.Session.GameName,
					GiftCost: cost,
				}
				if err := s.storage.SaveGame(ctx, game); err != nil {
					return err
				}
				c.Leave()

				log.Info().
					Int64("chat_id", c.ChatID).
					Str("game_id", game.ID).
					Str("name", game.Name).
					Float64("gift_cost", game.GiftCost).
					Msg("Game created")

				text, err := s.messages.Render("create_done", gameView{
					ID:       game.ID,
					Name:     game.Name,
					GiftCost: formatCost(game.GiftCost),
				})
				if err != nil {
					return err
				}
				return s.send(c.ChatID, text)
			},
		},
	}
}

// joinGameScene asks for the participant's name and gift wish, then adds them.
func (s *SecretSantaBot) joinGameScene() *wizard.Scene {
	return &wizard.Scene{
		ID: sceneJoinGame,
		Steps: []wizard.Step{
			func(_ context.Context, c *wizard.Context) error {
				c.Next()
				return s.send(c.ChatID, s.messages.Plain("join_prompt_name"))
			},
			func(ctx context.Context, c *wizard.Context) error {
				if !c.IsText {
					return s.send(c.ChatID, s.messages.Plain("join_reprompt_name"))
				}

				game, err := s.storage.GetGame(ctx)
				if errors.Is(err, domain.ErrNoGame) {
					c.Leave()
					return s.send(c.ChatID, s.messages.Plain("no_game"))
				}
				if err != nil {
					return err
				}

				c.Next()
				c.Session.ParticipantName = c.Text

				text, err := s.messages.Render("join_prompt_wish", gameView{GiftCost: formatCost(game.GiftCost)})
				if err != nil {
					return err
				}
				return s.send(c.ChatID, text)
			},
			func(ctx context.Context, c *wizard.Context) error {
				if !c.IsText {
					return s.send(c.ChatID, s.messages.Plain("join_reprompt_wish"))
				}
				c.Leave()

				p := domain.Participant{
					Name:     c.Session.ParticipantName,
					GiftWish: c.Text,
				}
				if err := s.storage.AddParticipant(ctx, c.ChatID, p); err != nil {
					return err
				}

				log.Info().Int64("chat_id", c.ChatID).Str("name", p.Name).Msg("Participant joined")

				text, err := s.messages.Render("join_done", wardView{Name: p.Name})
				if err != nil {
					return err
				}
				return s.send(c.ChatID, text)
			},
		},
	}
}

// parseGiftCost accepts a non-negative decimal amount; "1 500" and "99,5" are allowed.
func parseGiftCost(text string) (float64, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	normalized = strings.ReplaceAll(normalized, " ", "")

	cost, err := strconv.ParseFloat(normalized, 64)
	if err != nil || math.IsNaN(cost) || math.IsInf(cost, 0) || cost < 0 {
		return 0, domain.ErrInvalidGiftCost
	}
	return cost, nil
}
