// Package aggregator composes fetchers, retry, pricing and the TTL caches
// into the pipelines served by the HTTP handlers.
package aggregator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/paaavkata/market-dashboard/services/price-api/internal/cache"
	"github.com/paaavkata/market-dashboard/shared/pkg/retry"
)

// Publisher receives every freshly stored pipeline result.
type Publisher interface {
	Publish(kind string, data any, timestamp time.Time)
}

// Snapshot is a pipeline result and the time it was fetched. Stale is set
// only when an expired entry was served because a refresh failed.
type Snapshot[T any] struct {
	Data      T
	Timestamp time.Time
	Stale     bool
}

type Options struct {
	Retry retry.Policy
	// ServeStaleOnError answers with an expired entry when the refresh
	// fails. When false an expired entry is never served.
	ServeStaleOnError bool
	Publisher         Publisher
	Clock             cache.Clock
	RetryOptions      []retry.Option
}

type pipeline[T any] struct {
	name       string
	kind       string
	cache      *cache.Cache[T]
	group      singleflight.Group
	load       func(ctx context.Context) (T, error)
	serveStale bool
	publisher  Publisher
	logger     *logrus.Logger
}

func newPipeline[T any](name, kind string, ttl time.Duration, opts Options, logger *logrus.Logger, load func(ctx context.Context) (T, error)) *pipeline[T] {
	return &pipeline[T]{
		name:       name,
		kind:       kind,
		cache:      cache.New[T](ttl, opts.Clock),
		load:       load,
		serveStale: opts.ServeStaleOnError,
		publisher:  opts.Publisher,
		logger:     logger,
	}
}

func (p *pipeline[T]) Name() string {
	return p.name
}

func (p *pipeline[T]) State() cache.State {
	return p.cache.State()
}

func (p *pipeline[T]) get(ctx context.Context) (Snapshot[T], error) {
	if entry, ok := p.cache.Get(); ok {
		return Snapshot[T]{Data: entry.Data, Timestamp: entry.Timestamp}, nil
	}
	return p.fetch(ctx, false)
}

// fetch loads and stores a new entry. Concurrent callers share one upstream
// call; unless force is set a fresh entry stored by an earlier flight is
// returned instead of loading again.
func (p *pipeline[T]) fetch(ctx context.Context, force bool) (Snapshot[T], error) {
	// The shared flight must outlive any single caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)

	value, err, shared := p.group.Do(p.name, func() (any, error) {
		if !force {
			if entry, ok := p.cache.Get(); ok {
				return entry, nil
			}
		}

		start := time.Now()
		data, err := p.load(flightCtx)
		if err != nil {
			return nil, err
		}

		entry := p.cache.Set(data)
		p.logger.WithFields(logrus.Fields{
			"pipeline":    p.name,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("Pipeline cache refreshed")

		if p.publisher != nil {
			p.publisher.Publish(p.kind, entry.Data, entry.Timestamp)
		}
		return entry, nil
	})

	if err != nil {
		if p.serveStale {
			if entry, ok := p.cache.Peek(); ok {
				p.logger.WithError(err).WithFields(logrus.Fields{
					"pipeline":  p.name,
					"cached_at": entry.Timestamp,
				}).Warn("Refresh failed, serving stale entry")
				return Snapshot[T]{Data: entry.Data, Timestamp: entry.Timestamp, Stale: true}, nil
			}
		}
		return Snapshot[T]{}, err
	}

	if shared {
		p.logger.WithField("pipeline", p.name).Debug("Joined in-flight refresh")
	}

	entry := value.(cache.Entry[T])
	return Snapshot[T]{Data: entry.Data, Timestamp: entry.Timestamp}, nil
}

func retryNotifier(logger *logrus.Logger, name string) retry.Option {
	return retry.WithNotify(func(attempt int, err error, wait time.Duration) {
		logger.WithError(err).WithFields(logrus.Fields{
			"pipeline": name,
			"attempt":  attempt,
			"wait_ms":  wait.Milliseconds(),
		}).Warn("Upstream fetch failed, retrying")
	})
}
