package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"telegram-santa-raffle/internal/domain"
	"telegram-santa-raffle/internal/pairing"
)

// Notifier tells a giver who their ward is.
type Notifier interface {
	NotifyWard(ctx context.Context, giverChatID int64, ward domain.Participant) error
}

// Assignment is one giver/ward pair produced by a raffle.
type Assignment struct {
	GiverID int64
	Giver   domain.Participant
	WardID  int64
	Ward    domain.Participant
	// Err is set when the giver could not be notified.
	Err error
}

type RaffleResult struct {
	Assignments []Assignment
}

// Failed returns the assignments whose giver was not notified.
func (r *RaffleResult) Failed() []Assignment {
	var failed []Assignment
	for _, a := range r.Assignments {
		if a.Err != nil {
			failed = append(failed, a)
		}
	}
	return failed
}

// RaffleOrchestrator pairs every participant with a ward and notifies them.
type RaffleOrchestrator struct {
	storage  *Storage
	notifier Notifier
	intN     func(n int) int
}

// NewRaffleOrchestrator builds an orchestrator. A nil intN uses math/rand/v2.
func NewRaffleOrchestrator(storage *Storage, notifier Notifier, intN func(n int) int) *RaffleOrchestrator {
	return &RaffleOrchestrator{
		storage:  storage,
		notifier: notifier,
		intN:     intN,
	}
}

// Run assigns wards, persists them, then notifies every giver in join order.
// It returns domain.ErrTooFewParticipants, without writing anything, when
// fewer than domain.MinRaffleParticipants have joined. A failed notification
// does not stop the others; it is recorded on its Assignment.
func (r *RaffleOrchestrator) Run(ctx context.Context) (*RaffleResult, error) {
	ps, err := r.storage.UpdateParticipants(ctx, func(ps *domain.Participants) error {
		if ps.Len() < domain.MinRaffleParticipants {
			return domain.ErrTooFewParticipants
		}
		wards := pairing.AssignWards(ps.IDs(), r.intN)
		ps.Each(func(chatID int64, p *domain.Participant) {
			p.Ward = wards[chatID]
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &RaffleResult{Assignments: make([]Assignment, 0, ps.Len())}
	for _, giverID := range ps.IDs() {
		giver, _ := ps.Get(giverID)
		ward, ok := ps.Get(giver.Ward)
		if !ok {
			return result, fmt.Errorf("ward %d of participant %d is not a participant", giver.Ward, giverID)
		}

		a := Assignment{
			GiverID: giverID,
			Giver:   *giver,
			WardID:  giver.Ward,
			Ward:    *ward,
		}
		if err := ctx.Err(); err != nil {
			a.Err = err
		} else if err := r.notifier.NotifyWard(ctx, giverID, *ward); err != nil {
			a.Err = err
		}
		if a.Err != nil {
			log.Warn().Err(a.Err).Int64("chat_id", giverID).Msg("Failed to notify participant about ward")
		}
		result.Assignments = append(result.Assignments, a)
	}

	log.Info().
		Int("participants", len(result.Assignments)).
		Int("failed", len(result.Failed())).
		Msg("Raffle completed")

	return result, nil
}
