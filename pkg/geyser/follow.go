package geyser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
)

// Handler receives each update delivered by Follow. The session is passed so
// the handler can replace filters; Follow resubscribes with the last
// accepted set. Returning an error stops Follow with that error.
type Handler func(s *Session, u *SubscribeUpdate) error

type handlerError struct{ err error }

func (e *handlerError) Error() string { return e.err.Error() }
func (e *handlerError) Unwrap() error { return e.err }

// Follow consumes a subscription until ctx is done or handler fails,
// opening a new session with the last-known FilterSet whenever the current
// one ends with a retryable error or a server half-close. Attempts back off
// exponentially from ReconnectMinDelay to ReconnectMaxDelay; the attempt
// count resets once a session delivers an update. ProtocolErrors and
// invalid filters are returned immediately.
func (c *Client) Follow(ctx context.Context, fs FilterSet, handler Handler) error {
	if err := fs.Validate(); err != nil {
		return err
	}

	filters := fs
	attempt := 0
	backoff := c.config.ReconnectMinDelay

	for {
		s, err := c.SubscribeWith(ctx, filters)
		if err == nil {
			if c.config.OnConnect != nil {
				c.config.OnConnect()
			}
			if attempt > 0 {
				c.logger.Info("resubscribed", zap.Int("attempt", attempt), zap.String("session", s.ID()))
				if c.config.OnReconnect != nil {
					c.config.OnReconnect(attempt)
				}
			}

			var received bool
			received, err = consume(ctx, s, handler)
			filters = s.Filters()
			_ = s.Close()

			var herr *handlerError
			if errors.As(err, &herr) {
				return herr.err
			}
			if received {
				attempt = 0
				backoff = c.config.ReconnectMinDelay
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrClosed) {
			return err
		}
		if !errors.Is(err, io.EOF) && !IsRetryable(err) {
			return err
		}

		if c.config.OnDisconnect != nil {
			c.config.OnDisconnect(err)
		}

		attempt++
		if c.config.MaxReconnects > 0 && attempt > c.config.MaxReconnects {
			return fmt.Errorf("%w: last error: %v", ErrMaxReconnects, err)
		}

		c.logger.Warn("subscription lost, resubscribing",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.config.ReconnectMaxDelay)
	}
}

func consume(ctx context.Context, s *Session, handler Handler) (received bool, err error) {
	for {
		u, err := s.Next(ctx)
		if err != nil {
			return received, err
		}
		received = true
		if err := handler(s, u); err != nil {
			return received, &handlerError{err: err}
		}
	}
}
