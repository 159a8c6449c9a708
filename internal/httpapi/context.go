package httpapi

import (
	"context"
	"net/http"
	"time"
)

// serverBaseCtx is canceled on process shutdown; long-running handlers
// (load, chat) stop with it even if the client stays connected.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level context. nil resets it.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts returns a context canceled when either a or b is done. The
// cancel func must be called to release the watcher goroutine.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(b)
	go func() {
		select {
		case <-a.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// operationContext bounds a load or chat by the request, the process and,
// when positive, timeout.
func operationContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := joinContexts(serverBaseCtx, r.Context())
	if timeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		tcancel()
		cancel()
	}
}
