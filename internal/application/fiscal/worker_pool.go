package fiscal

import (
	"context"
	"sync"

	"gestaofiscal/ms_nfe_core/internal/core/invoice"
)

// emissionJob is one invoice queued for the pool, tagged with its position
// in the submitted batch.
type emissionJob struct {
	Index   int
	Invoice *invoice.Invoice
}

// EmissionResult is the per-invoice output of a batch. Index maps it back to
// the submission order.
type EmissionResult struct {
	Index  int
	Result *EmitResult
	Err    error
}

// EmissionPool runs invoice emissions concurrently. Number allocation stays
// serialized behind the repository's row lock, so concurrent workers never
// draw colliding numbers.
type EmissionPool struct {
	svc         *Service
	emitterID   int64
	workerCount int
	jobChan     chan emissionJob
	resultChan  chan EmissionResult
	wg          sync.WaitGroup
	started     bool
	mu          sync.Mutex
}

// NewEmissionPool creates a pool of workers emitting for one emitter.
func NewEmissionPool(svc *Service, emitterID int64, workerCount int) *EmissionPool {
	if workerCount <= 0 {
		workerCount = defaultBatchWorkers
	}
	return &EmissionPool{
		svc:         svc,
		emitterID:   emitterID,
		workerCount: workerCount,
		jobChan:     make(chan emissionJob, workerCount*2),
		resultChan:  make(chan EmissionResult, workerCount*2),
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (p *EmissionPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Stop closes the job channel and waits for in-flight emissions to finish.
func (p *EmissionPool) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	close(p.jobChan)
	p.wg.Wait()
	close(p.resultChan)
	p.started = false
}

// Submit queues one invoice, giving up when the context is cancelled so a
// dead pool never strands the submitter.
func (p *EmissionPool) Submit(ctx context.Context, job emissionJob) bool {
	select {
	case p.jobChan <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

// Results exposes the output channel.
func (p *EmissionPool) Results() <-chan EmissionResult {
	return p.resultChan
}

func (p *EmissionPool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobChan:
			if !ok {
				return
			}
			res, err := p.svc.EmitInvoice(ctx, p.emitterID, job.Invoice)
			select {
			case p.resultChan <- EmissionResult{Index: job.Index, Result: res, Err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// EmitBatch emits a batch of invoices through the worker pool and returns
// results in submission order. A cancelled context marks the remaining slots
// with the context error.
func (s *Service) EmitBatch(ctx context.Context, emitterID int64, invoices []*invoice.Invoice) []EmissionResult {
	results := make([]EmissionResult, len(invoices))
	if len(invoices) == 0 {
		return results
	}

	workers := s.cfg.BatchWorkers
	if workers > len(invoices) {
		workers = len(invoices)
	}
	pool := NewEmissionPool(s, emitterID, workers)
	pool.Start(ctx)
	defer pool.Stop()

	go func() {
		for i, inv := range invoices {
			if !pool.Submit(ctx, emissionJob{Index: i, Invoice: inv}) {
				return
			}
		}
	}()

	seen := 0
	for seen < len(invoices) {
		select {
		case <-ctx.Done():
			for i := range results {
				if results[i].Result == nil && results[i].Err == nil {
					results[i] = EmissionResult{Index: i, Err: ctx.Err()}
				}
			}
			return results
		case r := <-pool.Results():
			results[r.Index] = r
			seen++
		}
	}
	return results
}
