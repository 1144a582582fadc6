// internal/workers/triage/retrieve-documents/pool.go
package retrievedocuments

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/common/metrics"
	"medical-triage/internal/models"
)

type searchJob struct {
	ctx    context.Context
	req    models.SearchRequest
	result chan searchResult
}

type searchResult struct {
	docs []models.RetrievedDocument
	err  error
}

// Pool runs searches on a fixed set of goroutines so concurrent triage
// requests do not queue behind one slow backend call. Each search gets a
// single attempt bounded by the pool timeout.
type Pool struct {
	searcher Searcher
	timeout  time.Duration
	jobs     chan searchJob
	logger   logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(searcher Searcher, size, queueSize int, timeout time.Duration, log logger.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		searcher: searcher,
		timeout:  timeout,
		jobs:     make(chan searchJob, queueSize),
		logger:   log,
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) Name() string { return p.searcher.Name() }

func (p *Pool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		if err := job.ctx.Err(); err != nil {
			job.result <- searchResult{err: err}
			continue
		}
		docs, err := p.searcher.Search(job.ctx, job.req)
		job.result <- searchResult{docs: docs, err: err}
	}
}

// Search queues the request and waits for its result or the timeout,
// whichever comes first.
func (p *Pool) Search(ctx context.Context, req models.SearchRequest) ([]models.RetrievedDocument, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	job := searchJob{ctx: ctx, req: req, result: make(chan searchResult, 1)}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, p.fail(apperrors.NewRetrievalPoolClosedError())
	}
	select {
	case p.jobs <- job:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return nil, p.fail(p.contextError(ctx.Err()))
	}

	select {
	case r := <-job.result:
		if r.err != nil {
			return nil, p.fail(p.mapError(r.err))
		}
		return r.docs, nil
	case <-ctx.Done():
		return nil, p.fail(p.contextError(ctx.Err()))
	}
}

// Close stops accepting work and waits for in-flight searches.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) mapError(err error) error {
	if _, ok := apperrors.AsStandard(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return p.contextError(err)
	}
	return apperrors.NewUpstreamRetrievalError(p.searcher.Name(), err)
}

func (p *Pool) contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewRetrievalTimeoutError(p.searcher.Name(), p.timeout)
	}
	return apperrors.NewUpstreamRetrievalError(p.searcher.Name(), err)
}

func (p *Pool) fail(err error) error {
	code := "UNKNOWN"
	if se, ok := apperrors.AsStandard(err); ok {
		code = string(se.Code)
	}
	metrics.RetrievalFailures.WithLabelValues(p.searcher.Name(), code).Inc()
	p.logger.Warn("retrieval failed", map[string]interface{}{
		"backend":   p.searcher.Name(),
		"errorCode": code,
		"error":     err.Error(),
	})
	return err
}
