// Package jobs runs the background worker that persists security audit
// entries and enforces their retention.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/coworkhub/coworkhub/internal/platform/httpx"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueueAudit:   3,
			QueueDefault: 1,
		},
		Logger:   newAsynqLogger(cfg.Logger),
		LogLevel: asynq.InfoLevel,
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// Client submits jobs to the queue. It satisfies audit.Enqueuer.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// EnqueueContext forwards to the underlying asynq client.
func (c *Client) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, opts...)
}

// EnqueueAuditPurge schedules an immediate retention run.
func (c *Client) EnqueueAuditPurge(ctx context.Context, retentionDays int) (*asynq.TaskInfo, error) {
	task, err := NewAuditPurgeTask(retentionDays)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueInspector is the subset of asynq.Inspector used by Handler.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Retry   int    `json:"retry"`
	Failed  int    `json:"failed"`
	Paused  bool   `json:"paused"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	queues := []string{QueueAudit, QueueDefault}
	out := make([]queueHealth, 0, len(queues))
	for _, name := range queues {
		if h.inspector == nil {
			out = append(out, queueHealth{Queue: name})
			continue
		}
		info, err := h.inspector.GetQueueInfo(name)
		if err != nil {
			h.logger.Warn("jobs health", slog.Any("error", err), slog.String("queue", name))
			httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "queue inspector unavailable")
			return
		}
		out = append(out, queueHealth{
			Queue:   info.Queue,
			Pending: info.Pending,
			Retry:   info.Retry,
			Failed:  info.Archived,
			Paused:  info.Paused,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queues": out})
}
