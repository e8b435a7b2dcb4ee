package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/garnizeh/fieldops/pkg/models"
	"github.com/garnizeh/fieldops/pkg/repository"
)

type WorkerPool struct {
	repo        repository.TaskRepo
	handlers    map[string]Handler
	logger      *slog.Logger
	workerCount int
	idle        time.Duration
	stop        chan struct{}
	wg          sync.WaitGroup
	once        sync.Once
}

func NewWorkerPool(repo repository.TaskRepo, handlers map[string]Handler, logger *slog.Logger, workerCount int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	if handlers == nil {
		handlers = map[string]Handler{}
	}
	return &WorkerPool{repo: repo, handlers: handlers, logger: logger, workerCount: workerCount, idle: 500 * time.Millisecond, stop: make(chan struct{})}
}

// Handle registers h for a task type. Call before Start.
func (p *WorkerPool) Handle(typ string, h Handler) {
	p.handlers[typ] = h
}

// Start launches the worker goroutines
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for them
func (p *WorkerPool) Stop() {
	p.once.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stop:
			p.logger.Info("worker stopping", "id", id)
			return
		case <-ctx.Done():
			p.logger.Info("context canceled, worker exiting", "id", id)
			return
		default:
		}

		task, err := p.repo.FetchNext(ctx)
		if err != nil {
			p.logger.Error("fetch task", "err", err)
			p.sleep(ctx, time.Second)
			continue
		}
		if task == nil {
			p.sleep(ctx, p.idle)
			continue
		}
		p.run(ctx, task)
	}
}

// sleep waits for d unless the pool is stopping.
func (p *WorkerPool) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-p.stop:
	case <-ctx.Done():
	}
}

func (p *WorkerPool) run(ctx context.Context, task *models.BackgroundTask) {
	h, ok := p.handlers[task.Type]
	if !ok {
		task.Status = StatusFailed
		task.LastError = "no handler"
		if err := p.repo.MoveToDeadLetter(ctx, task); err != nil {
			p.logger.Error("move to dead letter", "task_id", task.ID, "err", err)
		}
		return
	}

	err := h(ctx, task)
	if err == nil {
		task.Status = StatusDone
		if err := p.repo.UpdateTask(ctx, task); err != nil {
			p.logger.Error("mark task done", "task_id", task.ID, "err", err)
		}
		return
	}

	task.Attempts++
	task.LastError = err.Error()
	if task.Attempts >= task.MaxAttempts {
		task.Status = StatusFailed
		p.logger.Warn("task dead-lettered", "task_id", task.ID, "type", task.Type, "attempts", task.Attempts, "err", err)
		if mvErr := p.repo.MoveToDeadLetter(ctx, task); mvErr != nil {
			p.logger.Error("move to dead letter", "task_id", task.ID, "err", mvErr)
		}
		return
	}

	next := time.Now().Add(BackoffDuration(task.Attempts))
	task.NextTryAt = &next
	task.Status = StatusRetry
	if upErr := p.repo.UpdateTask(ctx, task); upErr != nil {
		p.logger.Error("update task for retry", "task_id", task.ID, "err", upErr)
	}
}

// Enqueue convenience helper that creates a task and persists it
func (p *WorkerPool) Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	return Enqueue(ctx, p.repo, typ, payload, priority, maxAttempts)
}

// Enqueue persists a task without needing a running pool.
func Enqueue(ctx context.Context, repo repository.TaskRepo, typ string, payload any, priority int, maxAttempts int) (int64, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	t := &models.BackgroundTask{Type: typ, Payload: b, Priority: priority, MaxAttempts: maxAttempts, ScheduledAt: time.Now()}
	return repo.Enqueue(ctx, t)
}
