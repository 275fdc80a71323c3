package relay

import (
	"context"
	"sync"

	"github.com/parleyhq/parley/pkg/chat"
)

// DefaultWorkerCount is the number of workers when no size is specified.
const DefaultWorkerCount = 8

// envelope is the internal wrapper for the worker pool inbox: one
// decoded message plus the client awaiting the correlated response.
type envelope struct {
	client *Client
	corrID string
	req    *chat.Request
}

// WorkerPool manages a fixed set of goroutines that consume from the inbox.
type WorkerPool struct {
	size int
	wg   sync.WaitGroup
}

// NewWorkerPool creates a pool with the given size.
// If size <= 0, DefaultWorkerCount is used.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = DefaultWorkerCount
	}
	return &WorkerPool{size: size}
}

// Start launches worker goroutines that consume envelopes from inbox.
func (p *WorkerPool) Start(ctx context.Context, inbox <-chan envelope, handler func(context.Context, envelope)) {
	for range p.size {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for env := range inbox {
				handler(ctx, env)
			}
		}()
	}
}

// Wait blocks until all workers have exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
