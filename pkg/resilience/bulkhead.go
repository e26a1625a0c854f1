// Package resilience provides resilience patterns for the sales-intelligence data-integration core.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ============================================================================
// Bulkhead Errors
// ============================================================================

var (
	// ErrBulkheadFull is returned when the bulkhead is full.
	ErrBulkheadFull = errors.New("bulkhead full")

	// ErrBulkheadTimeout is returned when waiting for a slot times out.
	ErrBulkheadTimeout = errors.New("bulkhead timeout")
)

// ============================================================================
// Bulkhead Configuration
// ============================================================================

// BulkheadConfig configures the bulkhead.
type BulkheadConfig struct {
	// Name of the bulkhead for identification.
	Name string

	// MaxConcurrent is the maximum number of concurrent calls.
	MaxConcurrent int

	// MaxWait is the maximum time to wait for a slot.
	MaxWait time.Duration

	// OnFull is called when the bulkhead is full.
	OnFull func(name string)

	// OnAcquire is called when a slot is acquired.
	OnAcquire func(name string)

	// OnRelease is called when a slot is released.
	OnRelease func(name string)
}

// DefaultBulkheadConfig returns default bulkhead configuration.
func DefaultBulkheadConfig(name string) BulkheadConfig {
	return BulkheadConfig{
		Name:          name,
		MaxConcurrent: 10,
		MaxWait:       0, // No waiting by default
	}
}

// ============================================================================
// Bulkhead
// ============================================================================

// Bulkhead limits concurrent access to a resource.
type Bulkhead struct {
	name          string
	maxConcurrent int
	maxWait       time.Duration
	semaphore     chan struct{}
	onFull        func(string)
	onAcquire     func(string)
	onRelease     func(string)
	mu            sync.Mutex
	active        int
	waiting       int
}

// NewBulkhead creates a new bulkhead.
func NewBulkhead(config BulkheadConfig) *Bulkhead {
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	return &Bulkhead{
		name:          config.Name,
		maxConcurrent: config.MaxConcurrent,
		maxWait:       config.MaxWait,
		semaphore:     make(chan struct{}, config.MaxConcurrent),
		onFull:        config.OnFull,
		onAcquire:     config.OnAcquire,
		onRelease:     config.OnRelease,
	}
}

// Execute runs the function with bulkhead protection.
func (b *Bulkhead) Execute(fn func() error) error {
	if err := b.acquire(); err != nil {
		return err
	}
	defer b.release()

	return fn()
}

// ExecuteWithContext runs the function with context and bulkhead protection.
func (b *Bulkhead) ExecuteWithContext(ctx context.Context, fn func(context.Context) error) error {
	if err := b.acquireWithContext(ctx); err != nil {
		return err
	}
	defer b.release()

	return fn(ctx)
}

// acquire acquires a slot from the bulkhead.
func (b *Bulkhead) acquire() error {
	if b.maxWait == 0 {
		// Non-blocking acquire
		select {
		case b.semaphore <- struct{}{}:
			b.mu.Lock()
			b.active++
			b.mu.Unlock()

			if b.onAcquire != nil {
				b.onAcquire(b.name)
			}
			return nil
		default:
			if b.onFull != nil {
				b.onFull(b.name)
			}
			return ErrBulkheadFull
		}
	}

	// Blocking acquire with timeout
	b.mu.Lock()
	b.waiting++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.waiting--
		b.mu.Unlock()
	}()

	select {
	case b.semaphore <- struct{}{}:
		b.mu.Lock()
		b.active++
		b.mu.Unlock()

		if b.onAcquire != nil {
			b.onAcquire(b.name)
		}
		return nil
	case <-time.After(b.maxWait):
		if b.onFull != nil {
			b.onFull(b.name)
		}
		return ErrBulkheadTimeout
	}
}

// acquireWithContext acquires a slot with context cancellation.
func (b *Bulkhead) acquireWithContext(ctx context.Context) error {
	if b.maxWait == 0 {
		// Non-blocking acquire
		select {
		case b.semaphore <- struct{}{}:
			b.mu.Lock()
			b.active++
			b.mu.Unlock()

			if b.onAcquire != nil {
				b.onAcquire(b.name)
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
			if b.onFull != nil {
				b.onFull(b.name)
			}
			return ErrBulkheadFull
		}
	}

	// Blocking acquire with timeout and context
	b.mu.Lock()
	b.waiting++
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.waiting--
		b.mu.Unlock()
	}()

	var timer <-chan time.Time
	if b.maxWait > 0 {
		timer = time.After(b.maxWait)
	}

	select {
	case b.semaphore <- struct{}{}:
		b.mu.Lock()
		b.active++
		b.mu.Unlock()

		if b.onAcquire != nil {
			b.onAcquire(b.name)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer:
		if b.onFull != nil {
			b.onFull(b.name)
		}
		return ErrBulkheadTimeout
	}
}

// release releases a slot back to the bulkhead.
func (b *Bulkhead) release() {
	<-b.semaphore

	b.mu.Lock()
	b.active--
	b.mu.Unlock()

	if b.onRelease != nil {
		b.onRelease(b.name)
	}
}

// ActiveCount returns the number of active calls.
func (b *Bulkhead) ActiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// WaitingCount returns the number of waiting calls.
func (b *Bulkhead) WaitingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.waiting
}

// AvailableSlots returns the number of available slots.
func (b *Bulkhead) AvailableSlots() int {
	return b.maxConcurrent - b.ActiveCount()
}

// ============================================================================
// Rate Limiter
// ============================================================================

// RateLimiter limits the rate of operations.
type RateLimiter struct {
	name       string
	rate       int           // Operations per second
	burst      int           // Maximum burst size
	tokens     float64       // Current tokens
	lastUpdate time.Time     // Last update time
	mu         sync.Mutex
}

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	Name  string
	Rate  int // Operations per second
	Burst int // Maximum burst size
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10
	}
	if config.Burst <= 0 {
		config.Burst = config.Rate
	}

	return &RateLimiter{
		name:       config.Name,
		rate:       config.Rate,
		burst:      config.Burst,
		tokens:     float64(config.Burst),
		lastUpdate: time.Now(),
	}
}

// Allow checks if an operation is allowed.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	if r.tokens >= 1 {
		r.tokens--
		return true
	}

	return false
}

// Wait waits until an operation is allowed.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}

		// Calculate wait time
		waitTime := time.Duration(float64(time.Second) / float64(r.rate))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// refill refills tokens based on elapsed time.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate)
	r.lastUpdate = now

	// Add tokens based on elapsed time
	tokensToAdd := float64(r.rate) * elapsed.Seconds()
	r.tokens += tokensToAdd

	// Cap at burst size
	if r.tokens > float64(r.burst) {
		r.tokens = float64(r.burst)
	}
}

// Execute executes a function with rate limiting.
func (r *RateLimiter) Execute(ctx context.Context, fn func() error) error {
	if err := r.Wait(ctx); err != nil {
		return err
	}
	return fn()
}
