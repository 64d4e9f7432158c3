package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/engine/loader"
)

var ErrPoolClosed = errors.New("sandbox pool is closed")

// Pool manages a fixed set of execution contexts. A nil entry in free is a
// slot whose context could not be recycled; Acquire refills it.
type Pool struct {
	config  Config
	fetcher loader.Fetcher
	logger  *zap.Logger
	create  func() (*Runtime, error)
	free    chan *Runtime
	size    int
	mu      sync.RWMutex
	closed  bool
}

// PoolStats is a point-in-time view of pool usage
type PoolStats struct {
	Size      int  `json:"size"`
	Available int  `json:"available"`
	InUse     int  `json:"in_use"`
	Closed    bool `json:"closed"`
}

// NewPool creates a pool with size pre-created contexts
func NewPool(config Config, size int, fetcher loader.Fetcher, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		size = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool := &Pool{
		config:  config,
		fetcher: fetcher,
		logger:  logger,
		free:    make(chan *Runtime, size),
		size:    size,
	}
	pool.create = func() (*Runtime, error) {
		return New(pool.config, pool.fetcher, pool.logger)
	}

	for i := 0; i < size; i++ {
		rt, err := pool.create()
		if err != nil {
			pool.Close()
			return nil, err
		}
		pool.free <- rt
	}

	return pool, nil
}

// Acquire takes a context from the pool, waiting until one is free or ctx is done
func (p *Pool) Acquire(ctx context.Context) (*Runtime, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrPoolClosed
	}

	select {
	case rt, ok := <-p.free:
		if !ok {
			return nil, ErrPoolClosed
		}
		if rt != nil {
			return rt, nil
		}
		return p.refill()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// refill creates a context for an empty slot. On failure the slot goes back
// to the pool so a later Acquire can try again.
func (p *Pool) refill() (*Runtime, error) {
	rt, err := p.create()
	if err == nil {
		return rt, nil
	}
	p.logger.Error("Failed to create execution context", zap.Error(err))

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.closed {
		p.vacate()
	}
	return nil, fmt.Errorf("create execution context: %w", err)
}

// vacate returns an empty slot. Must be called with p.mu held and the pool open.
func (p *Pool) vacate() {
	select {
	case p.free <- nil:
	default:
	}
}

// Release returns a context to the pool. Its VM is always replaced so the
// next run starts from a clean global scope; terminated contexts are
// discarded entirely.
func (p *Pool) Release(rt *Runtime) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return rt.Close()
	}

	if rt.Terminated() {
		rt.Close()
		fresh, err := p.create()
		if err != nil {
			p.logger.Error("Failed to replace terminated context", zap.Error(err))
			p.vacate()
			return err
		}
		rt = fresh
	} else if err := rt.Reset(); err != nil {
		p.logger.Error("Failed to reset context", zap.Error(err))
		rt.Close()
		p.vacate()
		return err
	}

	select {
	case p.free <- rt:
		return nil
	default:
		return rt.Close()
	}
}

// Close closes the pool and every idle context
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true
	close(p.free)

	for rt := range p.free {
		if rt != nil {
			rt.Close()
		}
	}

	return nil
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Size:      p.size,
		Available: len(p.free),
		InUse:     p.size - len(p.free),
		Closed:    p.closed,
	}
}
