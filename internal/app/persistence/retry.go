package persistence

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/PabloGalante/nutria-agent/internal/domain"
)

// backoff retries a store write with exponential delays and ±25% jitter.
type backoff struct {
	attempts   int
	base       time.Duration
	max        time.Duration
	multiplier float64
}

func (b backoff) run(ctx context.Context, fn func() error) error {
	var lastErr error
	delay := b.base

	for attempt := 0; attempt < b.attempts; attempt++ {
		if attempt > 0 {
			wait := time.Duration(float64(delay) * (0.75 + rand.Float64()*0.5))
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay = time.Duration(float64(delay) * b.multiplier)
			if b.max > 0 && delay > b.max {
				delay = b.max
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !retriable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("gave up after %d attempts: %w", b.attempts, lastErr)
}

// retriable is true unless retrying cannot change the outcome.
func retriable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, domain.ErrNotFound):
		return false
	case domain.IsCode(err, domain.CodeInvalidInput), domain.IsCode(err, domain.CodeNotFound):
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied,
			codes.Unauthenticated, codes.FailedPrecondition:
			return false
		}
	}
	return true
}
