package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Expirer settles an access link once its expiry date is reached.
type Expirer interface {
	ExpireAccess(ctx context.Context, accessID int64) error
}

type Handlers struct {
	expirer Expirer
	logger  *slog.Logger
}

func NewHandlers(expirer Expirer, logger *slog.Logger) *Handlers {
	return &Handlers{expirer: expirer, logger: logger}
}

func (h *Handlers) HandleAccessExpiry(ctx context.Context, task *asynq.Task) error {
	var p accessPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", task.Type(), err, asynq.SkipRetry)
	}
	if p.AccessID <= 0 {
		return fmt.Errorf("invalid access id %d: %w", p.AccessID, asynq.SkipRetry)
	}

	if err := h.expirer.ExpireAccess(ctx, p.AccessID); err != nil {
		h.logger.Error("failed to expire access", "error", err, "access_id", p.AccessID)
		return err
	}
	return nil
}

// Mux routes every task type the worker knows about.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeAccessExpire, h.HandleAccessExpiry)
	return mux
}

type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

func NewServer(redis asynq.RedisConnOpt, queue string, concurrency int, handlers *Handlers, logger *slog.Logger) *Server {
	if queue == "" {
		queue = defaultQueue
	}
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Error("task failed", "type", task.Type(), "error", err)
		}),
	})
	return &Server{server: srv, mux: handlers.Mux(), logger: logger}
}

func (s *Server) Start() error {
	s.logger.Info("starting task server")
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("failed to start task server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown() {
	s.logger.Info("shutting down task server")
	s.server.Shutdown()
}
