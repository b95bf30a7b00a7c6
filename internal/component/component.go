// Package component is a small, self-contained adaptation of the familiar
// module/component + module/irrecoverable packages, trimmed down
// to what engine/reorg's polling Driver needs: a worker that can be
// started, reports readiness, and propagates a fatal error instead of
// panicking or calling log.Fatal from inside a goroutine.
//
// The full-sized packages this is grounded on additionally interoperate
// with a repo-wide `module.ReadyDoneAware`/`module.Startable` interface set
// used by dozens of unrelated node components; that generality has no
// counterpart in a standalone module, so Component/Startable/ReadyDoneAware
// are redeclared locally instead of imported from a larger module package.
package component

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// ErrComponentShutdown is returned by a component which has already shut down.
var ErrComponentShutdown = fmt.Errorf("component: already shut down")

// ErrMultipleStartup is the panic value if Start is called more than once.
var ErrMultipleStartup = fmt.Errorf("component: Start called more than once")

// Startable can be started with a SignalerContext.
type Startable interface {
	Start(SignalerContext)
}

// ReadyDoneAware exposes channels that close on startup and shutdown completion.
type ReadyDoneAware interface {
	Ready() <-chan struct{}
	Done() <-chan struct{}
}

// Component is a startable, ready/done-aware unit of work.
type Component interface {
	Startable
	ReadyDoneAware
}

// ReadyFunc is called by a ComponentWorker to signal it has finished
// initializing and is ready to do work.
type ReadyFunc func()

// ComponentWorker is one worker routine of a ComponentManager. It must call
// ready() once, and should return promptly when ctx is cancelled.
type ComponentWorker func(ctx SignalerContext, ready ReadyFunc)

// ComponentManagerBuilder assembles a ComponentManager from worker routines.
type ComponentManagerBuilder interface {
	AddWorker(ComponentWorker) ComponentManagerBuilder
	Build() *ComponentManager
}

type builder struct {
	workers []ComponentWorker
}

// NewComponentManagerBuilder returns a new ComponentManagerBuilder.
func NewComponentManagerBuilder() ComponentManagerBuilder {
	return &builder{}
}

func (b *builder) AddWorker(w ComponentWorker) ComponentManagerBuilder {
	b.workers = append(b.workers, w)
	return b
}

func (b *builder) Build() *ComponentManager {
	return &ComponentManager{
		started:        atomic.NewBool(false),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
		workersDone:    make(chan struct{}),
		shutdownSignal: make(chan struct{}),
		workers:        b.workers,
	}
}

var _ Component = (*ComponentManager)(nil)

// ComponentManager runs a fixed set of worker routines and implements
// Component on their behalf. Ready() closes once every worker has called
// its ReadyFunc; Done() closes once every worker has returned, whether
// because the parent context was cancelled or because a worker threw an
// irrecoverable error.
type ComponentManager struct {
	started        *atomic.Bool
	ready          chan struct{}
	done           chan struct{}
	workersDone    chan struct{}
	shutdownSignal chan struct{}

	workers []ComponentWorker
}

// Start launches all worker routines. Start must be called at most once.
func (c *ComponentManager) Start(parent SignalerContext) {
	if !c.started.CAS(false, true) {
		panic(ErrMultipleStartup)
	}

	ctx, cancel := context.WithCancel(parent)
	signalerCtx, errChan := withSignaler(ctx)

	go func() {
		<-ctx.Done()
		close(c.shutdownSignal)
	}()

	go func() {
		defer func() {
			<-c.workersDone
			close(c.done)
		}()
		if err := waitError(ctx, errChan, c.workersDone); err != nil {
			cancel()
			parent.Throw(err)
		}
	}()

	var workersReady sync.WaitGroup
	var workersDone sync.WaitGroup
	workersReady.Add(len(c.workers))
	workersDone.Add(len(c.workers))

	for _, worker := range c.workers {
		worker := worker
		go func() {
			defer workersDone.Done()
			var once sync.Once
			worker(signalerCtx, func() {
				once.Do(workersReady.Done)
			})
		}()
	}

	go func() {
		workersReady.Wait()
		close(c.ready)
	}()
	go func() {
		workersDone.Wait()
		close(c.workersDone)
	}()
}

// Ready returns a channel closed once every worker has signalled readiness.
func (c *ComponentManager) Ready() <-chan struct{} {
	return c.ready
}

// Done returns a channel closed once every worker has returned.
func (c *ComponentManager) Done() <-chan struct{} {
	return c.done
}

// ShutdownSignal returns a channel closed once shutdown has begun, either
// because the parent context was cancelled or a worker threw. The channel
// exists from Build on; before Start it is never closed.
func (c *ComponentManager) ShutdownSignal() <-chan struct{} {
	return c.shutdownSignal
}
