package detect

import "context"

// Future is the promise-style handle returned by DetectAsync.
type Future struct {
	done     chan struct{}
	entities []Entity
	err      error
}

// DetectAsync runs Detect on its own goroutine. The call runs to completion
// or failure under ctx; Wait only bounds how long the caller waits.
func (n *Normalizer) DetectAsync(ctx context.Context, text string, opts *Options) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.entities, f.err = n.Detect(ctx, text, opts)
	}()
	return f
}

func (f *Future) Done() <-chan struct{} { return f.done }

func (f *Future) Wait(ctx context.Context) ([]Entity, error) {
	select {
	case <-f.done:
		return f.entities, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
