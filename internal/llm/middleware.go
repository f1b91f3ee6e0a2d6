package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Middleware decorates a Client to inject cross-cutting concerns
// (rate limiting, retries, logging).
type Middleware func(Client) Client

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner Client, mws ...Middleware) Client {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// -------- Rate limiting --------

// RateLimit throttles calls through a token-bucket limiter.
// If rps <= 0, the limiter is disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next Client) Client {
		return &rateLimited{next: next, rl: newRPSLimiter(rps, burst)}
	}
}

type rateLimited struct {
	next Client
	rl   *rpsLimiter
}

func (c *rateLimited) Name() string { return c.next.Name() }

func (c *rateLimited) Close() error {
	c.rl.Stop()
	return c.next.Close()
}

func (c *rateLimited) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return nil, err
	}
	return c.next.GenerateJSON(ctx, prompt, input)
}

func (c *rateLimited) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return "", err
	}
	return c.next.GenerateText(ctx, prompt, input)
}

// -------- Retry with exponential backoff --------

// Retry retries up to maxAttempts with exponential backoff starting at
// baseDelay. Permanent errors are not retried; if the context is canceled
// the retry loop stops immediately, including mid-backoff.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next Client) Client {
		return &retrying{next: next, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	next Client
	max  int
	base time.Duration
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	var raw json.RawMessage
	err := r.do(ctx, func() error {
		var e error
		raw, e = r.next.GenerateJSON(ctx, prompt, input)
		return e
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (r *retrying) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	var txt string
	err := r.do(ctx, func() error {
		var e error
		txt, e = r.next.GenerateText(ctx, prompt, input)
		return e
	})
	if err != nil {
		return "", err
	}
	return txt, nil
}

func (r *retrying) do(ctx context.Context, call func() error) error {
	var last error
	for i := 0; i < r.max; i++ {
		err := call()
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		last = err
		if i == r.max-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.base * time.Duration(1<<i)):
		}
	}
	return last
}

// -------- Logging --------

// WithLogging logs call duration and errors. Pass nil to use slog.Default().
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Client) Client {
		return &logging{next: next, log: logger}
	}
}

type logging struct {
	next Client
	log  *slog.Logger
}

func (l *logging) Name() string { return l.next.Name() }
func (l *logging) Close() error { return l.next.Close() }

func (l *logging) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	start := time.Now()
	raw, err := l.next.GenerateJSON(ctx, prompt, input)
	l.report(ctx, "json", len(prompt), start, err)
	return raw, err
}

func (l *logging) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	start := time.Now()
	txt, err := l.next.GenerateText(ctx, prompt, input)
	l.report(ctx, "text", len(prompt), start, err)
	return txt, err
}

func (l *logging) report(ctx context.Context, kind string, promptLen int, start time.Time, err error) {
	attrs := []any{
		"model", l.next.Name(),
		"kind", kind,
		"prompt_bytes", promptLen,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		l.log.ErrorContext(ctx, "model call failed", append(attrs, "err", err)...)
		return
	}
	l.log.DebugContext(ctx, "model call", attrs...)
}
