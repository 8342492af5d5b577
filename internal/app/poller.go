package app

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// UpdateSource is the long polling half of *tgbotapi.BotAPI.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u tgbotapi.Update) error
}

// Poller feeds updates to the handler. Updates of one chat are handled in
// arrival order, one at a time; different chats run concurrently.
type Poller struct {
	source      UpdateSource
	handler     UpdateHandler
	pollTimeout int

	mu      sync.Mutex
	pending map[int64][]tgbotapi.Update
	wg      sync.WaitGroup
}

func NewPoller(source UpdateSource, handler UpdateHandler, pollTimeout int) *Poller {
	return &Poller{
		source:      source,
		handler:     handler,
		pollTimeout: pollTimeout,
		pending:     make(map[int64][]tgbotapi.Update),
	}
}

// Run blocks until ctx is cancelled or the update channel closes, then waits
// for in-flight updates to finish.
func (p *Poller) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = p.pollTimeout
	updates := p.source.GetUpdatesChan(u)

	// handlers finish their work even after shutdown starts
	handlerCtx := context.WithoutCancel(ctx)

	log.Info().Msg("Bot started and ready!")

	for {
		select {
		case <-ctx.Done():
			p.source.StopReceivingUpdates()
			p.wg.Wait()
			log.Info().Msg("Bot stopped")
			return nil

		case update, ok := <-updates:
			if !ok {
				p.wg.Wait()
				return nil
			}
			p.dispatch(handlerCtx, update)
		}
	}
}

func (p *Poller) dispatch(ctx context.Context, u tgbotapi.Update) {
	chatID := updateChatID(u)

	p.mu.Lock()
	if queue, busy := p.pending[chatID]; busy {
		p.pending[chatID] = append(queue, u)
		p.mu.Unlock()
		return
	}
	p.pending[chatID] = nil
	p.mu.Unlock()

	p.wg.Add(1)
	go p.drain(ctx, chatID, u)
}

// drain handles u and then every update queued for the chat meanwhile.
func (p *Poller) drain(ctx context.Context, chatID int64, u tgbotapi.Update) {
	defer p.wg.Done()

	for {
		p.handle(ctx, chatID, u)

		p.mu.Lock()
		queue := p.pending[chatID]
		if len(queue) == 0 {
			delete(p.pending, chatID)
			p.mu.Unlock()
			return
		}
		u = queue[0]
		p.pending[chatID] = queue[1:]
		p.mu.Unlock()
	}
}

func (p *Poller) handle(ctx context.Context, chatID int64, u tgbotapi.Update) {
	if err := p.handler.HandleUpdate(ctx, u); err != nil {
		log.Error().
			Err(err).
			Int("update_id", u.UpdateID).
			Int64("chat_id", chatID).
			Msg("Failed to handle update")
	}
}

func updateChatID(u tgbotapi.Update) int64 {
	if chat := u.FromChat(); chat != nil {
		return chat.ID
	}
	return 0
}
