package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedClient fails a fixed number of times before succeeding.
type scriptedClient struct {
	calls    atomic.Int32
	failures int
	err      error
}

func (s *scriptedClient) Name() string { return "scripted" }
func (s *scriptedClient) Close() error { return nil }

func (s *scriptedClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if int(s.calls.Add(1)) <= s.failures {
		return nil, s.err
	}
	return json.RawMessage(`{}`), nil
}

func (s *scriptedClient) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	if int(s.calls.Add(1)) <= s.failures {
		return "", s.err
	}
	return "ok", nil
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	inner := &scriptedClient{failures: 2, err: Transient(errors.New("rate limited"))}
	cli := Wrap(inner, Retry(3, time.Millisecond))

	raw, err := cli.GenerateJSON(context.Background(), "p", nil)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(raw))
	require.EqualValues(t, 3, inner.calls.Load())
}

func TestRetryExhaustsAttempts(t *testing.T) {
	inner := &scriptedClient{failures: 10, err: errors.New("boom")}
	cli := Wrap(inner, Retry(3, time.Millisecond))

	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	require.Error(t, err)
	require.EqualValues(t, 3, inner.calls.Load())
}

func TestRetryDoesNotRetryPermanentErrors(t *testing.T) {
	inner := &scriptedClient{failures: 10, err: Permanent(ErrInvalidJSON)}
	cli := Wrap(inner, Retry(3, time.Millisecond))

	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	require.Error(t, err)
	require.True(t, IsPermanent(err))
	require.EqualValues(t, 1, inner.calls.Load())
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	inner := &scriptedClient{failures: 10, err: errors.New("boom")}
	cli := Wrap(inner, Retry(5, 50*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cli.GenerateJSON(ctx, "p", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.EqualValues(t, 1, inner.calls.Load())
}

func TestRateLimitSpacing(t *testing.T) {
	// rps=10, burst=1: the second call should wait roughly 100ms.
	inner := &scriptedClient{}
	cli := Wrap(inner, RateLimit(10, 1))
	t.Cleanup(func() { _ = cli.Close() })

	ctx := context.Background()
	start := time.Now()
	_, err := cli.GenerateJSON(ctx, "p", nil)
	require.NoError(t, err)
	_, err = cli.GenerateJSON(ctx, "p", nil)
	require.NoError(t, err)

	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimitHonorsContext(t *testing.T) {
	inner := &scriptedClient{}
	cli := Wrap(inner, RateLimit(0.1, 1))
	t.Cleanup(func() { _ = cli.Close() })

	ctx := context.Background()
	_, err := cli.GenerateJSON(ctx, "p", nil)
	require.NoError(t, err)

	// Bucket is now empty and refills every 10s; a short deadline must fire.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = cli.GenerateJSON(short, "p", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWrapOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Client) Client {
			return &tagged{next: next, name: name, order: &order}
		}
	}

	inner := &scriptedClient{}
	cli := Wrap(inner, tag("outer"), tag("inner"))
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"outer", "inner"}, order)
}

type tagged struct {
	next  Client
	name  string
	order *[]string
}

func (tg *tagged) Name() string { return tg.next.Name() }
func (tg *tagged) Close() error { return tg.next.Close() }

func (tg *tagged) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	*tg.order = append(*tg.order, tg.name)
	return tg.next.GenerateJSON(ctx, prompt, input)
}

func (tg *tagged) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	*tg.order = append(*tg.order, tg.name)
	return tg.next.GenerateText(ctx, prompt, input)
}

func TestStripFences(t *testing.T) {
	require.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, StripFences("```\n{\"a\":1}\n```"))
	require.Equal(t, `{"a":1}`, StripFences(`{"a":1}`))
}
