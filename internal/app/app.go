package app

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"telegram-santa-raffle/config"
	"telegram-santa-raffle/internal/kv"
	"telegram-santa-raffle/internal/service"
)

// Run wires storage, messages and the Telegram client, then long-polls for
// updates until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return err
	}
	storage := service.NewStorage(kv.NewStore(backend))
	defer func() {
		if err := storage.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close storage")
		}
	}()

	messages, err := service.LoadMessages(cfg.Bot.MessagesFile)
	if err != nil {
		return err
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("Authorized on Telegram")

	bot := service.NewSecretSantaBot(api, storage, messages, service.Options{
		Admins:         cfg.Telegram.Admins,
		TypingInterval: cfg.Bot.TypingInterval,
	})

	return NewPoller(api, bot, cfg.Bot.PollTimeout).Run(ctx)
}

func newBackend(ctx context.Context, cfg *config.Config) (kv.Backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		backend, err := kv.NewRedisBackend(ctx, kv.RedisOptions{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info().Str("host", cfg.Redis.Host).Str("port", cfg.Redis.Port).Msg("Using Redis storage")
		return backend, nil

	case config.BackendS3:
		backend, err := kv.NewS3Backend(ctx, kv.S3Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to set up S3 storage: %w", err)
		}
		log.Info().Str("bucket", cfg.S3.Bucket).Msg("Using S3 storage")
		return backend, nil

	case config.BackendMemory:
		log.Warn().Msg("Using in-memory storage, state is lost on restart")
		return kv.NewMemoryBackend(), nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
