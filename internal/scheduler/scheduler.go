// Package scheduler arms delayed jobs on the asynq queue and runs them in the worker.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeAccessExpire = "user_access:expire"

	defaultQueue = "default"
	maxRetry     = 5
)

type accessPayload struct {
	AccessID int64 `json:"access_id"`
}

// AccessTaskID is stable per access so that the same link is never armed twice
// and can be found again to cancel it.
func AccessTaskID(accessID int64) string {
	return fmt.Sprintf("user_access:%d:expire", accessID)
}

func NewAccessExpiryTask(accessID int64) (*asynq.Task, error) {
	payload, err := json.Marshal(accessPayload{AccessID: accessID})
	if err != nil {
		return nil, fmt.Errorf("marshal access payload: %w", err)
	}
	return asynq.NewTask(TypeAccessExpire, payload), nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

type remover interface {
	DeleteTask(queue, id string) error
	Close() error
}

// Scheduler implements user.AccessScheduler on top of asynq.
type Scheduler struct {
	client    enqueuer
	inspector remover
	queue     string
	logger    *slog.Logger
}

func NewScheduler(redis asynq.RedisConnOpt, queue string, logger *slog.Logger) *Scheduler {
	return newScheduler(asynq.NewClient(redis), asynq.NewInspector(redis), queue, logger)
}

func newScheduler(client enqueuer, inspector remover, queue string, logger *slog.Logger) *Scheduler {
	if queue == "" {
		queue = defaultQueue
	}
	return &Scheduler{client: client, inspector: inspector, queue: queue, logger: logger}
}

func (s *Scheduler) ScheduleAccessExpiry(ctx context.Context, accessID int64, at time.Time) error {
	task, err := NewAccessExpiryTask(accessID)
	if err != nil {
		return err
	}

	info, err := s.client.EnqueueContext(ctx, task,
		asynq.TaskID(AccessTaskID(accessID)),
		asynq.Queue(s.queue),
		asynq.ProcessAt(at),
		asynq.MaxRetry(maxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		s.logger.Info("access expiry already scheduled", "access_id", accessID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue access expiry: %w", err)
	}

	s.logger.Debug("access expiry scheduled", "access_id", accessID, "task_id", info.ID, "process_at", at)
	return nil
}

func (s *Scheduler) CancelAccessExpiry(ctx context.Context, accessID int64) error {
	err := s.inspector.DeleteTask(s.queue, AccessTaskID(accessID))
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete access expiry: %w", err)
	}
	s.logger.Debug("access expiry cancelled", "access_id", accessID)
	return nil
}

func (s *Scheduler) Close() error {
	return errors.Join(s.client.Close(), s.inspector.Close())
}
