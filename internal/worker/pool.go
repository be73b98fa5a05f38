package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// JobRunner executes one job id.
type JobRunner interface {
	Run(ctx context.Context, jobID string)
}

type Pool struct {
	queue       Queue
	runner      JobRunner
	workerCount int
	log         logrus.FieldLogger

	ctx       context.Context // dequeue loop
	cancel    context.CancelFunc
	runCtx    context.Context // in-flight runs
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func NewPool(queue Queue, runner JobRunner, workerCount int, log logrus.FieldLogger) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &Pool{
		queue:       queue,
		runner:      runner,
		workerCount: workerCount,
		log:         log.WithField("component", "worker_pool"),
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.runCtx, p.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.WithField("workers", p.workerCount).Info("worker pool started")
}

// Stop stops taking new jobs and waits for in-flight runs to finish. When ctx
// expires first, the remaining runs are cancelled and recorded as failed.
func (p *Pool) Stop(ctx context.Context) {
	if p.cancel == nil {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.log.Warn("shutdown deadline reached, cancelling in-flight jobs")
		p.runCancel()
		<-done
	}
	p.runCancel()
	p.log.Info("worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	log := p.log.WithField("worker", id)

	for {
		if p.ctx.Err() != nil {
			log.Debug("worker shutting down")
			return
		}

		jobID, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			switch {
			case errors.Is(err, errNoJob):
			case errors.Is(err, ErrQueueClosed), errors.Is(err, context.Canceled):
				return
			default:
				log.WithError(err).Warn("dequeue failed")
				select {
				case <-p.ctx.Done():
				case <-time.After(time.Second):
				}
			}
			continue
		}

		log.WithField("job_id", jobID).Info("processing job")
		p.runner.Run(p.runCtx, jobID)
	}
}
