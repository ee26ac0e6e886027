package renderservice

import (
	"context"
	"sync"

	"github.com/rowanhale/fakturo/internal/domain"
)

// EngineFactory constructs a fresh engine. Construction may be
// expensive, so the pool defers it until an engine is actually needed.
type EngineFactory func() (Engine, error)

// Pool bounds the number of live engines. Acquire blocks until an
// engine is free or the context ends; engines are built lazily up to
// the cap and reused afterwards.
type Pool struct {
	factory EngineFactory

	mu    sync.Mutex
	built int
	cap   int

	idle chan Engine
}

// NewPool creates a pool holding at most size engines.
func NewPool(size int, factory EngineFactory) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		factory: factory,
		cap:     size,
		idle:    make(chan Engine, size),
	}
}

// Acquire returns an engine, building one if the pool has capacity
// left. The caller must Release it exactly once.
func (p *Pool) Acquire(ctx context.Context) (Engine, error) {
	select {
	case eng := <-p.idle:
		return eng, nil
	default:
	}

	p.mu.Lock()
	if p.built < p.cap {
		p.built++
		p.mu.Unlock()

		eng, err := p.factory()
		if err != nil {
			p.mu.Lock()
			p.built--
			p.mu.Unlock()
			return nil, err
		}
		return eng, nil
	}
	p.mu.Unlock()

	select {
	case eng := <-p.idle:
		return eng, nil
	case <-ctx.Done():
		return nil, domain.WrapError(ctx.Err(), domain.EINTERNAL, "renderservice.pool", "timed out waiting for a render engine")
	}
}

// Release returns an engine for reuse.
func (p *Pool) Release(eng Engine) {
	if eng == nil {
		return
	}
	select {
	case p.idle <- eng:
	default:
		// Released more engines than the pool tracks; drop it.
		_ = eng.Close()
	}
}

// Close tears down all idle engines. In-flight engines are closed by
// their eventual Release once the channel is drained by the caller.
func (p *Pool) Close() {
	for {
		select {
		case eng := <-p.idle:
			_ = eng.Close()
		default:
			return
		}
	}
}
