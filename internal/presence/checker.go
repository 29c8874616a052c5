package presence

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagecache-warmer/internal/metrics"
	"github.com/JakeFAU/pagecache-warmer/internal/warmer"
)

// Checker composes backends in a fixed order.
type Checker struct {
	backends []Backend
	format   KeyFormat
	logger   *zap.Logger
}

// NewChecker returns a Checker that tries backends in the given order.
func NewChecker(format KeyFormat, logger *zap.Logger, backends ...Backend) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Checker{
		backends: backends,
		format:   format,
		logger:   logger.Named("presence"),
	}
}

// IsCached checks every tier for key and short-circuits on the first hit.
// Tier failures are recorded on the status and degrade to a miss.
func (c *Checker) IsCached(ctx context.Context, key string) warmer.PresenceStatus {
	status := warmer.PresenceStatus{Key: key}
	id := c.format.ID(key)

	var errs []error
	for _, backend := range c.backends {
		hit, err := c.lookup(ctx, backend, id)
		if err != nil {
			c.logger.Warn("presence tier failed",
				zap.String("source", string(backend.Source())),
				zap.String("id", id),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%w: %s: %w", warmer.ErrPresenceCheck, backend.Source(), err))
			continue
		}
		if hit {
			status.Cached = true
			status.Source = backend.Source()
			status.Err = errors.Join(errs...)
			metrics.ObservePresence(string(backend.Source()))
			return status
		}
	}

	status.Err = errors.Join(errs...)
	if status.Err != nil {
		metrics.ObservePresence("error")
	} else {
		metrics.ObservePresence("miss")
	}
	return status
}

func (c *Checker) lookup(ctx context.Context, backend Backend, id string) (hit bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			hit = false
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return backend.Lookup(ctx, id)
}
