package worker

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/kimshangyup/neulbom/internal/config"
	"github.com/kimshangyup/neulbom/internal/logger"
	"github.com/kimshangyup/neulbom/internal/model"
	"github.com/kimshangyup/neulbom/internal/queue"
)

// Retrier re-attempts one failed provisioning ledger entry. Satisfied by
// the spaces orchestrator.
type Retrier interface {
	RetryFailed(ctx context.Context, attemptID int64) error
}

// RetryWorker consumes space-retry jobs from the Redis queue and replays
// them through the retry path. Jobs run synchronously: a failed retry
// propagates to the consumer, which pushes the message to the DLQ.
type RetryWorker struct {
	cfg      *config.Config
	retrier  Retrier
	consumer *queue.Consumer
	log      zerolog.Logger
}

func NewRetryWorker(
	cfg *config.Config,
	retrier Retrier,
	redisClient *queue.RedisClient,
) *RetryWorker {
	return &RetryWorker{
		cfg:      cfg,
		retrier:  retrier,
		consumer: queue.NewConsumer(redisClient, cfg),
		log:      logger.Get(),
	}
}

func (w *RetryWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting space retry worker")
	return w.consumer.ConsumeRetryQueue(ctx, w.handleMessage)
}

func (w *RetryWorker) Stop() {
	w.log.Info().Msg("Stopping space retry worker")
}

func (w *RetryWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.SpaceRetryJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal retry job")
		return err
	}

	w.log.Info().Int64("attempt_id", job.AttemptID).Msg("Processing space retry job")

	if err := w.retrier.RetryFailed(ctx, job.AttemptID); err != nil {
		w.log.Warn().Err(err).Int64("attempt_id", job.AttemptID).Msg("Space retry failed")
		return err
	}
	return nil
}
