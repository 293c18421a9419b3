package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"journal-sync/internal/db"
	"journal-sync/internal/logger"
	"journal-sync/internal/model"

	"github.com/rs/zerolog"
)

// MessageSource feeds raw queue messages to a handler until ctx is done.
// DeadLetter parks a message that could not be processed.
type MessageSource interface {
	Consume(ctx context.Context, handler func(ctx context.Context, data []byte) error) error
	DeadLetter(ctx context.Context, data []byte) error
}

// NotifyWorker drains the notification queue into the sync audit trail.
type NotifyWorker struct {
	repo       db.Repository
	source     MessageSource
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewNotifyWorker(repo db.Repository, source MessageSource, workers int) *NotifyWorker {
	return &NotifyWorker{
		repo:       repo,
		source:     source,
		workerPool: NewWorkerPool(workers),
		log:        logger.For("notify_worker"),
	}
}

func (w *NotifyWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting notify worker")

	// Queued jobs outlive ctx; Stop drains them.
	w.workerPool.Start(context.WithoutCancel(ctx))

	return w.source.Consume(ctx, w.handleMessage)
}

// Stop waits for queued notifications to be recorded. Call it after Start has
// returned.
func (w *NotifyWorker) Stop() {
	w.log.Info().Msg("Stopping notify worker")
	w.workerPool.Stop()
}

// handleMessage rejects undecodable messages so they go to the DLQ. Storage
// runs on the pool and a failed write dead-letters the message from there.
func (w *NotifyWorker) handleMessage(ctx context.Context, data []byte) error {
	var n model.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal notification")
		return err
	}
	if n.ID == "" || n.SessionID == "" {
		return fmt.Errorf("notification without id or session")
	}

	return w.workerPool.Submit(ctx, func(ctx context.Context) error {
		if err := w.record(ctx, n); err != nil {
			if dlqErr := w.source.DeadLetter(ctx, data); dlqErr != nil {
				w.log.Error().Err(dlqErr).Str("notification_id", n.ID).Msg("Failed to dead-letter notification")
			}
			return err
		}
		return nil
	})
}

func (w *NotifyWorker) record(ctx context.Context, n model.Notification) error {
	log := w.log.With().Str("session_id", n.SessionID).Str("operation", string(n.Operation)).Logger()

	if n.Kind == model.NotificationError {
		ev := log.Warn().Str("message", n.Message)
		if n.LessonID != nil && n.StudentID != nil {
			ev = ev.Int64("lesson_id", *n.LessonID).Int64("student_id", *n.StudentID)
		}
		ev.Msg("Journal operation failed")
	}

	if err := w.repo.RecordNotification(ctx, n); err != nil {
		log.Error().Err(err).Str("notification_id", n.ID).Msg("Failed to record notification")
		return err
	}
	return nil
}
