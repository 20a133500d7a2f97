package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while a breaker rejects calls.
var ErrCircuitOpen = eris.New("resilience: circuit open")

// State of a Breaker.
type State int

// Breaker states.
const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker stops calling an upstream after Threshold consecutive transient
// failures and lets a single probe through once Cooldown has passed.
type Breaker struct {
	Name      string
	Threshold int
	Cooldown  time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
	now      func() time.Time
}

// NewBreaker returns a closed breaker. Zero values default to 5 failures and 30s.
func NewBreaker(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{Name: name, Threshold: threshold, Cooldown: cooldown, now: time.Now}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current()
}

func (b *Breaker) current() State {
	if b.state == Open && b.clock().Sub(b.openedAt) >= b.Cooldown {
		return HalfOpen
	}
	return b.state
}

func (b *Breaker) clock() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}

// Call runs fn unless the breaker is open.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.acquire(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current() {
	case Open:
		return eris.Wrap(ErrCircuitOpen, b.Name)
	case HalfOpen:
		if b.probing {
			return eris.Wrap(ErrCircuitOpen, b.Name)
		}
		b.state = HalfOpen
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil || !IsTransient(err) {
		if b.state != Closed {
			zap.L().Info("circuit closed", zap.String("service", b.Name))
		}
		b.state = Closed
		b.failures = 0
		return
	}

	b.failures++
	if b.state == HalfOpen || b.failures >= b.Threshold {
		if b.state != Open {
			zap.L().Warn("circuit opened", zap.String("service", b.Name), zap.Int("failures", b.failures))
		}
		b.state = Open
		b.openedAt = b.clock()
	}
}
