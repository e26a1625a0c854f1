package events

import (
	"context"
	"sync"
	"time"

	"github.com/kilang-desa-murni/salesintel/pkg/logger"
)

// OutboxPublisher decorates a Publisher with a transactional-outbox
// fallback: an event the broker refuses is persisted to the outbox instead
// of being dropped, and a background flush loop redelivers unpublished
// entries until the broker accepts them.
type OutboxPublisher struct {
	inner Publisher
	repo  OutboxRepository
	log   *logger.Logger

	flushInterval time.Duration
	stop          chan struct{}
	wg            sync.WaitGroup
}

// NewOutboxPublisher wraps inner with outbox redelivery. flushInterval
// bounds how stale a parked event can get.
func NewOutboxPublisher(inner Publisher, repo OutboxRepository, flushInterval time.Duration, log *logger.Logger) *OutboxPublisher {
	if flushInterval <= 0 {
		flushInterval = time.Minute
	}
	p := &OutboxPublisher{
		inner: inner, repo: repo, log: log,
		flushInterval: flushInterval, stop: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.flushLoop()
	return p
}

// Publish hands the event to the broker, parking it in the outbox when the
// broker is unavailable. The caller's write is never failed by a broker
// outage.
func (p *OutboxPublisher) Publish(ctx context.Context, event *Event) error {
	if err := p.inner.Publish(ctx, event); err != nil {
		entry, marshalErr := NewOutboxEntry(event)
		if marshalErr != nil {
			return marshalErr
		}
		if saveErr := p.repo.Save(ctx, entry); saveErr != nil {
			return saveErr
		}
		p.log.Warn().Err(err).Str("event_id", event.ID).Msg("event parked in outbox for redelivery")
	}
	return nil
}

// PublishBatch publishes each event with the same outbox fallback.
func (p *OutboxPublisher) PublishBatch(ctx context.Context, events []*Event) error {
	for _, event := range events {
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Flush redelivers up to limit unpublished outbox entries now.
func (p *OutboxPublisher) Flush(ctx context.Context, limit int) error {
	entries, err := p.repo.GetUnpublished(ctx, limit)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		event, err := Unmarshal(entry.Payload)
		if err != nil {
			p.log.Error().Err(err).Str("outbox_id", entry.ID).Msg("undecodable outbox entry dropped")
			if err := p.repo.Delete(ctx, entry.ID); err != nil {
				return err
			}
			continue
		}
		if err := p.inner.Publish(ctx, event); err != nil {
			// Broker still down; try again next flush.
			return err
		}
		if err := p.repo.MarkPublished(ctx, entry.ID); err != nil {
			return err
		}
	}
	return nil
}

func (p *OutboxPublisher) flushLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.flushInterval)
			if err := p.Flush(ctx, 100); err != nil {
				p.log.Warn().Err(err).Msg("outbox flush incomplete")
			}
			cancel()
		}
	}
}

// Close stops the flush loop and closes the wrapped publisher.
func (p *OutboxPublisher) Close() error {
	close(p.stop)
	p.wg.Wait()
	return p.inner.Close()
}
