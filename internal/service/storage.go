package service

import (
	"context"
	"fmt"
	"sync"

	"telegram-santa-raffle/internal/domain"
	"telegram-santa-raffle/internal/kv"
	"telegram-santa-raffle/internal/wizard"
)

const (
	gameKey         = "game"
	participantsKey = "participants"
)

func sessionKey(chatID int64) string {
	return fmt.Sprintf("session:%d", chatID)
}

// Storage is the typed view of the bot's key-value store.
//
// The participants mapping is one document. Writers inside this process are
// serialized so two users finishing the join dialogue at the same time do
// not overwrite each other; separate processes still race.
type Storage struct {
	store *kv.Store

	participantsMu sync.Mutex
}

func NewStorage(store *kv.Store) *Storage {
	return &Storage{store: store}
}

// GetGame returns domain.ErrNoGame when no game was created yet.
func (s *Storage) GetGame(ctx context.Context) (*domain.Game, error) {
	var g domain.Game
	found, err := s.store.Get(ctx, gameKey, &g)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	if !found {
		return nil, domain.ErrNoGame
	}
	return &g, nil
}

func (s *Storage) SaveGame(ctx context.Context, g *domain.Game) error {
	if err := s.store.Set(ctx, gameKey, g); err != nil {
		return fmt.Errorf("failed to save game: %w", err)
	}
	return nil
}

// GetParticipants never returns nil; a missing document reads as empty.
func (s *Storage) GetParticipants(ctx context.Context) (*domain.Participants, error) {
	ps := domain.NewParticipants()
	if _, err := s.store.Get(ctx, participantsKey, ps); err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	return ps, nil
}

func (s *Storage) SaveParticipants(ctx context.Context, ps *domain.Participants) error {
	s.participantsMu.Lock()
	defer s.participantsMu.Unlock()
	return s.saveParticipants(ctx, ps)
}

func (s *Storage) saveParticipants(ctx context.Context, ps *domain.Participants) error {
	if err := s.store.Set(ctx, participantsKey, ps); err != nil {
		return fmt.Errorf("failed to save participants: %w", err)
	}
	return nil
}

// UpdateParticipants reads the mapping, lets fn change it and writes it back.
// Nothing is written when fn fails.
func (s *Storage) UpdateParticipants(ctx context.Context, fn func(ps *domain.Participants) error) (*domain.Participants, error) {
	s.participantsMu.Lock()
	defer s.participantsMu.Unlock()

	ps, err := s.GetParticipants(ctx)
	if err != nil {
		return nil, err
	}
	if err := fn(ps); err != nil {
		return nil, err
	}
	if err := s.saveParticipants(ctx, ps); err != nil {
		return nil, err
	}
	return ps, nil
}

// AddParticipant appends p under chatID, or replaces that chat's entry.
func (s *Storage) AddParticipant(ctx context.Context, chatID int64, p domain.Participant) error {
	_, err := s.UpdateParticipants(ctx, func(ps *domain.Participants) error {
		ps.Set(chatID, p)
		return nil
	})
	return err
}

// Reset removes the game and everyone who joined it.
func (s *Storage) Reset(ctx context.Context) error {
	s.participantsMu.Lock()
	defer s.participantsMu.Unlock()

	if err := s.store.Delete(ctx, participantsKey); err != nil {
		return fmt.Errorf("failed to delete participants: %w", err)
	}
	if err := s.store.Delete(ctx, gameKey); err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}
	return nil
}

func (s *Storage) GetSession(ctx context.Context, chatID int64) (*wizard.Session, error) {
	var sess wizard.Session
	found, err := s.store.Get(ctx, sessionKey(chatID), &sess)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &sess, nil
}

func (s *Storage) SaveSession(ctx context.Context, chatID int64, sess *wizard.Session) error {
	return s.store.Set(ctx, sessionKey(chatID), sess)
}

func (s *Storage) DeleteSession(ctx context.Context, chatID int64) error {
	return s.store.Delete(ctx, sessionKey(chatID))
}

func (s *Storage) Close() error {
	return s.store.Close()
}
