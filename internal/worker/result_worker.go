package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/provexam/provex-backend/internal/config"
	"github.com/provexam/provex-backend/internal/model"
	"github.com/provexam/provex-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker drains persist_results_queue into the attempt_results sink.
// Rows carry their own identity, so a retried submit produces duplicates that
// the fallback insert silently drops.
type ResultWorker struct {
	results *repository.ResultRepository
	rdb     *redis.Client
	log     zerolog.Logger
}

func NewResultWorker(results *repository.ResultRepository, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		results: results,
		rdb:     rdb,
		log:     log.With().Str("component", "result_worker").Logger(),
	}
}

func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]*model.QuestionResult, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var qr model.QuestionResult
			if err := json.Unmarshal([]byte(item[1]), &qr); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &qr)
		}
	}
}

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.QuestionResult) {
	if len(batch) == 0 {
		return
	}

	if err := w.results.BulkAppend(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk result write failed, using fallback")

		for _, qr := range batch {
			if err := w.results.Append(ctx, qr); err != nil {
				w.log.Error().Err(err).
					Str("attempt_id", qr.AttemptID.String()).
					Msg("Result insert failed, requeueing")
				raw, _ := json.Marshal(qr)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
		}
	}
}
