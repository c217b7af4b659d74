package worker

import (
	"context"
	"sync"
)

// Job is a unit of work executed by the pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of one job
type Result interface {
	GetError() error
}

type queued struct {
	seq int
	job Job
}

type finished struct {
	seq    int
	result Result
}

// Pool runs jobs on a fixed number of goroutines. Results are returned in
// submission order.
type Pool struct {
	workers    int
	jobQueue   chan queued
	results    chan finished
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once

	mu        sync.Mutex
	submitted int
}

// NewPool creates a pool bound to parent. Cancelling parent stops the workers.
func NewPool(parent context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := context.WithCancel(parent)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan queued, workers*2),
		results:    make(chan finished, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case q, ok := <-p.jobQueue:
			if !ok {
				return
			}
			out := finished{seq: q.seq, result: q.job.Execute(p.ctx)}
			select {
			case p.results <- out:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. It returns false once the pool is shut down.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}

	p.mu.Lock()
	seq := p.submitted
	p.submitted++
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- queued{seq: seq, job: job}:
		return true
	}
}

// Wait closes the queue, waits for every worker and returns the results in
// submission order. Jobs dropped by a shutdown leave no entry.
func (p *Pool) Wait() []Result {
	close(p.jobQueue)

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	bySeq := make(map[int]Result)
	for f := range p.results {
		bySeq[f.seq] = f.result
	}

	p.mu.Lock()
	total := p.submitted
	p.mu.Unlock()

	results := make([]Result, 0, len(bySeq))
	for i := 0; i < total; i++ {
		if r, ok := bySeq[i]; ok {
			results = append(results, r)
		}
	}
	return results
}

// Shutdown cancels running jobs and stops the workers
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
