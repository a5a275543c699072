package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from ctx1 that is also canceled when ctx2
// is. Values, including the chromedp target, come from ctx1; ctx2 usually
// carries the operation deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)
	stop := context.AfterFunc(ctx2, cancel)
	return combinedCtx, func() {
		stop()
		cancel()
	}
}

// valueOnlyContext keeps the parent's values but drops its deadline and
// cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that inherits values from ctx but is not canceled
// when ctx is. Cleanup that must outlive the operation uses it.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
