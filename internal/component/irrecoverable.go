package component

import (
	"context"
)

// SignalerContext is a context.Context that can additionally propagate a
// fatal error to whoever is supervising it, in place of panic or log.Fatal.
type SignalerContext interface {
	context.Context
	Throw(err error)
	sealed()
}

type signalerContext struct {
	context.Context
	errors chan<- error
}

func (s signalerContext) sealed() {}

// Throw sends err to the supervisor, or gives up once the context is done,
// and then returns; the caller should return promptly after it. The
// supervisor is expected to cancel the context that this goroutine (and its
// siblings) are running under.
func (s signalerContext) Throw(err error) {
	select {
	case s.errors <- err:
	case <-s.Context.Done():
	}
}

// withSignaler derives a SignalerContext from ctx, along with the channel
// that a supervisor should select on to observe a thrown error.
func withSignaler(ctx context.Context) (SignalerContext, <-chan error) {
	errs := make(chan error, 1)
	return signalerContext{Context: ctx, errors: errs}, errs
}

// NewRootSignalerContext derives a top-level SignalerContext from ctx, for a
// caller that owns a Component directly (rather than nesting it inside
// another ComponentManager, which derives its own SignalerContext for its
// workers). The returned channel receives at most one error, thrown by the
// Component or one of its descendants.
func NewRootSignalerContext(ctx context.Context) (SignalerContext, <-chan error) {
	return withSignaler(ctx)
}

// waitError blocks until either an error arrives on errChan, ctx is done, or
// workersDone closes because every worker returned on its own, returning the
// error in the first case and nil otherwise (after a final non-blocking
// check for a race where an error and one of the other conditions happened
// at once).
func waitError(ctx context.Context, errChan <-chan error, workersDone <-chan struct{}) error {
	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	case <-workersDone:
	}
	select {
	case err := <-errChan:
		return err
	default:
		return nil
	}
}
