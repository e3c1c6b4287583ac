package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-session-service/internal/response"
)

// actorPool runs every mutation for a designer on one goroutine. Actors are
// started on first use and exit after idleTimeout without work.
type actorPool struct {
	mu          sync.Mutex
	actors      map[uuid.UUID]*designerActor
	idleTimeout time.Duration
	wg          sync.WaitGroup
	closed      bool
	quit        chan struct{}
}

type designerActor struct {
	jobs    chan func()
	pending int
}

func newActorPool(idleTimeout time.Duration) *actorPool {
	if idleTimeout <= 0 {
		idleTimeout = time.Minute
	}
	return &actorPool{
		actors:      make(map[uuid.UUID]*designerActor),
		idleTimeout: idleTimeout,
		quit:        make(chan struct{}),
	}
}

var errPoolClosed = errors.New("session registry is closed")

// do runs fn on the designer's actor and waits for it. fn always runs to
// completion once queued so a caller never loses track of a written row.
// Failing to queue is a retryable transport error wrapping the cause.
func (p *actorPool) do(ctx context.Context, designerID uuid.UUID, fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return response.NewTransportError("queue designer mutation", errPoolClosed)
	}
	a, ok := p.actors[designerID]
	if !ok {
		a = &designerActor{jobs: make(chan func())}
		p.actors[designerID] = a
		p.wg.Add(1)
		go p.run(designerID, a)
	}
	a.pending++
	p.mu.Unlock()

	done := make(chan struct{})
	job := func() {
		defer close(done)
		fn()
	}

	select {
	case a.jobs <- job:
	case <-ctx.Done():
		p.mu.Lock()
		a.pending--
		p.mu.Unlock()
		return response.NewTransportError("queue designer mutation", ctx.Err())
	}

	<-done
	return nil
}

func (p *actorPool) run(designerID uuid.UUID, a *designerActor) {
	defer p.wg.Done()

	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()
	quit := p.quit

	// exitIfDrained removes the actor when nothing is queued for it.
	exitIfDrained := func(force bool) bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		if a.pending == 0 && (force || p.closed) {
			delete(p.actors, designerID)
			return true
		}
		return false
	}

	for {
		select {
		case job := <-a.jobs:
			job()
			p.mu.Lock()
			a.pending--
			p.mu.Unlock()
			if exitIfDrained(false) {
				return
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.idleTimeout)
		case <-idle.C:
			if exitIfDrained(true) {
				return
			}
			idle.Reset(p.idleTimeout)
		case <-quit:
			if exitIfDrained(true) {
				return
			}
			quit = nil
		}
	}
}

func (p *actorPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.actors)
}

// close refuses new work and waits for running actors to drain and exit.
func (p *actorPool) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.quit)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
