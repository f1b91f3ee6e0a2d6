package summarize

import "context"

// ProgressFunc receives one call per attempted file during SummarizeAll,
// with err nil on success. Calls arrive from worker goroutines; the
// function must be safe for concurrent use.
type ProgressFunc func(path string, err error)

type progressKey struct{}

// WithProgress returns a context under which SummarizeAll reports each
// file's outcome to fn.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, progressKey{}, fn)
}

// ProgressFrom extracts the reporter from ctx. The result is never nil,
// so callers can invoke it unconditionally.
func ProgressFrom(ctx context.Context) ProgressFunc {
	if ctx != nil {
		if fn, ok := ctx.Value(progressKey{}).(ProgressFunc); ok && fn != nil {
			return fn
		}
	}
	return func(string, error) {}
}
