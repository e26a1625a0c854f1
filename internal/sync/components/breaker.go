package components

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/kilang-desa-murni/salesintel/internal/lake/domain"
	"github.com/kilang-desa-murni/salesintel/pkg/errors"
	"github.com/kilang-desa-murni/salesintel/pkg/logger"
	"github.com/kilang-desa-murni/salesintel/pkg/resilience"
)

// BreakerConnector wraps a Connector with a circuit breaker and an
// outbound rate limiter: a source system that is down stops being hammered
// across consecutive batches, and a healthy one is never flooded past the
// configured request rate. Both guard the network-facing operations; an
// open breaker fails fast with a connection error until the cool-down
// elapses, the limiter blocks until a token frees up.
type BreakerConnector struct {
	inner   Connector
	cb      *gobreaker.CircuitBreaker
	limiter *resilience.RateLimiter
	log     *logger.Logger
}

// NewBreakerConnector wraps inner. maxFailures is the consecutive-failure
// count that trips the breaker; rateLimit caps outbound calls per second
// (zero selects the limiter default).
func NewBreakerConnector(inner Connector, maxFailures uint32, rateLimit int, log *logger.Logger) *BreakerConnector {
	settings := gobreaker.Settings{
		Name:    inner.SourceName() + "-connector",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("connector breaker state change")
		},
	}
	return &BreakerConnector{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(settings),
		limiter: resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Name: inner.SourceName() + "-connector",
			Rate: rateLimit,
		}),
		log: log,
	}
}

func (b *BreakerConnector) execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConnectionError, "rate limit wait interrupted")
	}
	result, err := b.cb.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, errors.Wrap(err, errors.ErrCodeConnectionError, "source circuit open")
	}
	return result, err
}

// Connect dials the source through the breaker.
func (b *BreakerConnector) Connect(ctx context.Context) error {
	_, err := b.execute(ctx, func() (interface{}, error) {
		return nil, b.inner.Connect(ctx)
	})
	return err
}

// Disconnect closes the source connection. Never counted by the breaker.
func (b *BreakerConnector) Disconnect(ctx context.Context) error {
	return b.inner.Disconnect(ctx)
}

// TestConnection probes the source. Probes bypass the breaker so operators
// can always observe the real source state.
func (b *BreakerConnector) TestConnection(ctx context.Context) ConnectionStatus {
	return b.inner.TestConnection(ctx)
}

// FetchRecords opens a record stream through the breaker; each Next call is
// also guarded, so a source dying mid-stream trips it.
func (b *BreakerConnector) FetchRecords(ctx context.Context, entityType domain.EntityType, since *time.Time, batchSize int) (RecordStream, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.FetchRecords(ctx, entityType, since, batchSize)
	})
	if err != nil {
		return nil, err
	}
	return &breakerStream{inner: result.(RecordStream), b: b}, nil
}

// FetchRecord fetches a single record through the breaker.
func (b *BreakerConnector) FetchRecord(ctx context.Context, entityType domain.EntityType, sourceID string) (SourceRecord, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.FetchRecord(ctx, entityType, sourceID)
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.(SourceRecord), nil
}

// GetRecordCount counts source records through the breaker.
func (b *BreakerConnector) GetRecordCount(ctx context.Context, entityType domain.EntityType, since *time.Time) (int64, error) {
	result, err := b.execute(ctx, func() (interface{}, error) {
		return b.inner.GetRecordCount(ctx, entityType, since)
	})
	if err != nil {
		return 0, err
	}
	return result.(int64), nil
}

// SourceName names the wrapped source.
func (b *BreakerConnector) SourceName() string {
	return b.inner.SourceName()
}

type breakerStream struct {
	inner RecordStream
	b     *BreakerConnector
}

func (s *breakerStream) Next(ctx context.Context) (SourceRecord, error) {
	result, err := s.b.execute(ctx, func() (interface{}, error) {
		rec, err := s.inner.Next(ctx)
		if err == ErrEndOfStream {
			// Exhaustion is not a failure; don't let it count against the
			// breaker.
			return nil, nil
		}
		return rec, err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, ErrEndOfStream
	}
	return result.(SourceRecord), nil
}
