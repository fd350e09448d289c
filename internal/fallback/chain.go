package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// #region chain
// Chain tries backends in preference order and answers with the first one
// that produces a valid suggestion. Each attempt gets its own timeout.
type Chain struct {
	backends []Backend
	timeout  time.Duration
}

// NewChain returns nil for no backends and the backend itself for one.
func NewChain(timeout time.Duration, backends ...Backend) Backend {
	switch len(backends) {
	case 0:
		return nil
	case 1:
		return backends[0]
	}
	return &Chain{backends: backends, timeout: timeout}
}

func (c *Chain) Name() string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return strings.Join(names, ">")
}

// Len is the number of backends tried at most.
func (c *Chain) Len() int { return len(c.backends) }

// Close closes every member that holds a connection.
func (c *Chain) Close() error {
	var errs []error
	for _, b := range c.backends {
		if cl, ok := b.(interface{ Close() error }); ok {
			errs = append(errs, cl.Close())
		}
	}
	return errors.Join(errs...)
}

func (c *Chain) Analyze(ctx context.Context, p Prompt) (Suggestion, error) {
	var errs []error
	for _, b := range c.backends {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("%w: %v", ErrBackendUnavailable, ctx.Err()))
			break
		}
		s, err := c.attempt(ctx, b, p)
		if err == nil {
			if s.Backend == "" {
				s.Backend = b.Name()
			}
			return s, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
	}
	return Suggestion{}, errors.Join(errs...)
}

// attempt abandons a backend that outlives its timeout, the same way the
// analyzer does.
func (c *Chain) attempt(ctx context.Context, b Backend, p Prompt) (Suggestion, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	type reply struct {
		s   Suggestion
		err error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("%w: backend panic: %v", ErrBackendUnavailable, r)}
			}
		}()
		s, err := b.Analyze(ctx, p)
		ch <- reply{s: s, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if !errors.Is(r.err, ErrBackendUnavailable) && !errors.Is(r.err, ErrMalformedResponse) {
				r.err = fmt.Errorf("%w: %v", ErrBackendUnavailable, r.err)
			}
			return Suggestion{}, r.err
		}
		if err := r.s.validate(); err != nil {
			return Suggestion{}, err
		}
		return r.s, nil
	case <-ctx.Done():
		return Suggestion{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, ctx.Err())
	}
}

// #endregion chain
