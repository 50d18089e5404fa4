// Package workpool runs blocking jobs on a fixed set of goroutines so callers
// can wait for one job without occupying a worker themselves.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("workpool: closed")

type job struct {
	fn   func() error
	done chan error
}

// Pool is a bounded worker pool. Its lifetime is one batch: create it at batch
// start and Close it once every submitter has returned.
type Pool struct {
	jobs   chan job
	group  errgroup.Group
	mu     sync.RWMutex
	closed bool
}

// New starts size workers.
func New(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{jobs: make(chan job)}
	for i := 0; i < size; i++ {
		p.group.Go(p.work)
	}
	return p
}

func (p *Pool) work() error {
	for j := range p.jobs {
		j.done <- run(j.fn)
	}
	return nil
}

func run(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workpool: job panicked: %v", r)
		}
	}()
	return fn()
}

// Do hands fn to a worker and blocks until that job finishes. If ctx ends
// before a worker picks the job up, Do returns ctx.Err() and fn never runs.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case p.jobs <- j:
		p.mu.RUnlock()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}
	return <-j.done
}

// Close stops accepting jobs and waits for running ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	_ = p.group.Wait()
}
