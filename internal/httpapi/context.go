package httpapi

import "context"

// serverBaseCtx is canceled on shutdown; in-flight handlers observe it.
var serverBaseCtx = context.Background()

// SetBaseContext installs the process-level context. Nil restores Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// joinContexts derives from req (keeping its values and deadline) and is
// also canceled when base is done. cancel must be called when the handler
// returns.
func joinContexts(base, req context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(req)
	stop := context.AfterFunc(base, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
