package gatewaysim

import (
	"context"
	"log/slog"
	"sync"
)

// Job is one accepted authorization waiting for its postback.
type Job struct {
	OrderID     string
	Amount      string
	CardLast4   string
	PostbackURL string
	RestrictKey string
}

type Worker struct {
	ID         int
	WorkerPool chan chan Job
	JobChannel chan Job
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Job, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Job),
		Logger:     logger,
	}
}

// Start registers the worker's channel with the pool each time it is idle.
func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Job)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			select {
			case w.WorkerPool <- w.JobChannel:
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}

			select {
			case job := <-w.JobChannel:
				w.Logger.Debug("worker processing job", "worker_id", w.ID, "order_id", job.OrderID)
				processFunc(job)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

// pool fans queued jobs out to idle workers.
type pool struct {
	jobQueue   chan Job
	workerPool chan chan Job
	maxWorkers int
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func newPool(maxWorkers, queueSize int, logger *slog.Logger) *pool {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &pool{
		jobQueue:   make(chan Job, queueSize),
		workerPool: make(chan chan Job, maxWorkers),
		maxWorkers: maxWorkers,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (p *pool) start(processFunc func(Job)) {
	p.once.Do(func() {
		for i := 0; i < p.maxWorkers; i++ {
			NewWorker(i, p.workerPool, p.logger).Start(p.ctx, &p.wg, processFunc)
		}

		p.wg.Add(1)
		go p.dispatch()

		p.logger.Info("gateway simulator worker pool started",
			"max_workers", p.maxWorkers,
			"queue_size", cap(p.jobQueue))
	})
}

func (p *pool) dispatch() {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobQueue:
			select {
			case jobChannel := <-p.workerPool:
				select {
				case jobChannel <- job:
				case <-p.ctx.Done():
					return
				}
			case <-p.ctx.Done():
				return
			}
		case <-p.ctx.Done():
			p.logger.Info("dispatcher shutting down")
			return
		}
	}
}

// enqueue never blocks; a full queue is reported to the caller.
func (p *pool) enqueue(job Job) bool {
	select {
	case p.jobQueue <- job:
		return true
	default:
		return false
	}
}

func (p *pool) shutdown() {
	p.cancel()
	p.wg.Wait()
}
