package platform

import (
	"context"
	"errors"
	"log/slog"
)

// RetryAttempts is how often a device call is tried before its last
// error is returned.
const RetryAttempts = 5

// retryingClient wraps every call of an inner client with the retry
// policy of the device transport.
type retryingClient struct {
	inner  Client
	logger *slog.Logger
}

// WithRetry wraps a client so transient call failures are retried.
// NOT_FOUND, INVALID_ARGUMENT and UNIMPLEMENTED fail immediately; other
// statuses are tried RetryAttempts times and the last error wins.
func WithRetry(inner Client, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &retryingClient{inner: inner, logger: logger}
}

func (c *retryingClient) retry(ctx context.Context, op string, call func() error) error {
	var last error
	for attempt := 1; attempt <= RetryAttempts; attempt++ {
		last = call()
		if last == nil {
			return nil
		}
		var se *StatusError
		if errors.As(last, &se) && !se.Retryable() {
			return last
		}
		if ctx.Err() != nil {
			return last
		}
		if attempt < RetryAttempts {
			c.logger.Warn("device call failed, retrying",
				"op", op, "attempt", attempt, "of", RetryAttempts-1, "code", Code(last))
		}
	}
	return last
}

func (c *retryingClient) Connect(ctx context.Context) error {
	return c.retry(ctx, "connect", func() error { return c.inner.Connect(ctx) })
}

func (c *retryingClient) Close() error { return c.inner.Close() }

func (c *retryingClient) LoadProgram(ctx context.Context, prog CellProgram) error {
	return c.retry(ctx, "load_program", func() error { return c.inner.LoadProgram(ctx, prog) })
}

func (c *retryingClient) Start(ctx context.Context, shots int) error {
	return c.retry(ctx, "start", func() error { return c.inner.Start(ctx, shots) })
}

func (c *retryingClient) State(ctx context.Context) (RunState, error) {
	var state RunState
	err := c.retry(ctx, "state", func() error {
		var err error
		state, err = c.inner.State(ctx)
		return err
	})
	return state, err
}

func (c *retryingClient) Stop(ctx context.Context) error {
	return c.retry(ctx, "stop", func() error { return c.inner.Stop(ctx) })
}

func (c *retryingClient) Databoxes(ctx context.Context, mode DataMode) ([]Databox, error) {
	var boxes []Databox
	err := c.retry(ctx, "databoxes", func() error {
		var err error
		boxes, err = c.inner.Databoxes(ctx, mode)
		return err
	})
	return boxes, err
}

func (c *retryingClient) Capabilities(ctx context.Context) (Capabilities, error) {
	var caps Capabilities
	err := c.retry(ctx, "capabilities", func() error {
		var err error
		caps, err = c.inner.Capabilities(ctx)
		return err
	})
	return caps, err
}
