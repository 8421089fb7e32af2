package imaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Значения по умолчанию для очереди.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 5 * time.Second
)

// Processor обрабатывает одно вложение.
type Processor interface {
	Normalize(ctx context.Context, attachmentID string) error
}

// QueueOptions настраивают пул обработчиков.
type QueueOptions struct {
	Workers    int
	Size       int
	MaxRetries int
	RetryDelay time.Duration
}

// Queue - фоновый пул нормализации вне пути запроса.
type Queue struct {
	processor  Processor
	jobs       chan string
	workers    int
	maxRetries int
	retryDelay time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue создает очередь; обработчики запускаются через Start.
func NewQueue(p Processor, opts QueueOptions) *Queue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Size <= 0 {
		opts.Size = 64
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	return &Queue{
		processor:  p,
		jobs:       make(chan string, opts.Size),
		workers:    opts.Workers,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

// Start запускает обработчики; они работают до отмены ctx или Close.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id, ok := <-q.jobs:
					if !ok {
						return
					}
					q.run(ctx, id)
				}
			}
		}()
	}
}

// Enqueue ставит вложение в очередь и никогда не блокирует.
// Возвращает false, если очередь заполнена или закрыта.
func (q *Queue) Enqueue(attachmentID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- attachmentID:
		return true
	default:
		slog.Warn("imaging: queue full, job dropped", "attachment", attachmentID)
		return false
	}
}

// Close перестаёт принимать задачи и ждёт, пока обработчики разберут очередь.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) run(ctx context.Context, id string) {
	for attempt := 0; ; attempt++ {
		err := q.processor.Normalize(ctx, id)
		if err == nil {
			return
		}

		var transient *TransientIOError
		if !errors.As(err, &transient) {
			slog.Error("imaging: normalization failed", "attachment", id, "err", err)
			return
		}
		if attempt >= q.maxRetries {
			slog.Error("imaging: retries exhausted, job abandoned", "attachment", id, "attempts", attempt+1, "err", err)
			return
		}

		slog.Warn("imaging: transient failure, retrying", "attachment", id, "attempt", attempt+1, "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(q.retryDelay):
		}
	}
}
