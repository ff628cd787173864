package thread

import "context"

type ctxKey struct{}

/// WithThread returns a context carrying t, for passing the calling thread
/// into blocking kobj capability methods (Reader.Read, Locker.Lock, ...)
/// without a hidden per-goroutine lookup.
func WithThread(ctx context.Context, t *Thread) context.Context {
	return context.WithValue(ctx, ctxKey{}, t)
}

/// FromContext returns the Thread carried by ctx, if any.
func FromContext(ctx context.Context) (*Thread, bool) {
	t, ok := ctx.Value(ctxKey{}).(*Thread)
	return t, ok
}
