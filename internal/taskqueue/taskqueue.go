// Package taskqueue offloads rule action dispatch onto asynq workers
// so slow provider HTTP calls never block ingestion.
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"agrisense/internal/rules"
)

const typeDispatchActions = "dispatch_actions"

// Client enqueues dispatch tasks. It satisfies rules.Dispatcher.
type Client struct {
	client *asynq.Client
}

// NewClient creates the enqueue side of the queue.
func NewClient(redisAddr string) *Client {
	return &Client{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

// EnqueueDispatch queues the action run for a triggered rule.
func (c *Client) EnqueueDispatch(ctx context.Context, req rules.DispatchRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal dispatch request: %w", err)
	}
	task := asynq.NewTask(typeDispatchActions, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute))
	if _, err := c.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue %s: %w", typeDispatchActions, err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// ActionRunner executes the action list of a triggered rule.
type ActionRunner interface {
	Dispatch(ctx context.Context, req rules.DispatchRequest)
}

// Worker consumes dispatch tasks.
type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	log *zap.Logger
}

// NewWorker creates the consume side of the queue.
func NewWorker(redisAddr string, concurrency int, runner ActionRunner, log *zap.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 10
	}
	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Logger:      &asynqZapLogger{log: log.Sugar()},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(typeDispatchActions, func(ctx context.Context, t *asynq.Task) error {
		var req rules.DispatchRequest
		if err := json.Unmarshal(t.Payload(), &req); err != nil {
			// Malformed payloads never become valid; skip the retries.
			return fmt.Errorf("unmarshal dispatch request: %v: %w", err, asynq.SkipRetry)
		}
		runner.Dispatch(ctx, req)
		return nil
	})
	return &Worker{srv: srv, mux: mux, log: log}
}

// Run starts the worker loop in a goroutine.
func (w *Worker) Run() error {
	if err := w.srv.Start(w.mux); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}
	w.log.Info("task workers started")
	return nil
}

// Stop drains in-flight tasks and shuts the worker down.
func (w *Worker) Stop() {
	w.srv.Stop()
	w.srv.Shutdown()
	w.log.Info("task workers stopped")
}

// asynqZapLogger adapts zap to asynq's internal logger interface.
type asynqZapLogger struct {
	log *zap.SugaredLogger
}

func (l *asynqZapLogger) Debug(args ...interface{}) { l.log.Debug(args...) }
func (l *asynqZapLogger) Info(args ...interface{})  { l.log.Info(args...) }
func (l *asynqZapLogger) Warn(args ...interface{})  { l.log.Warn(args...) }
func (l *asynqZapLogger) Error(args ...interface{}) { l.log.Error(args...) }
func (l *asynqZapLogger) Fatal(args ...interface{}) { l.log.Fatal(args...) }
