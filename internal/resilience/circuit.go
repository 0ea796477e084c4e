package resilience

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the breaker refuses a call to the gateway.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	// HalfOpen lets a single probe through after the cool-off.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Breaker trips when the failure ratio over the observed calls reaches the
// threshold. While half-open only one probe is in flight at a time; calls that
// arrive during the probe are refused.
type Breaker struct {
	mu       sync.Mutex
	state    State
	failed   int
	total    int
	probing  bool
	openedAt time.Time

	minCalls     int
	failureRatio float64
	coolOff      time.Duration
	target       string
	logger       zerolog.Logger
	now          func() time.Time
}

// NewBreaker returns a closed breaker. minCalls is the number of outcomes
// needed before the ratio is evaluated.
func NewBreaker(minCalls int, failureRatio float64, coolOff time.Duration) *Breaker {
	if minCalls < 1 {
		minCalls = 1
	}
	switch {
	case failureRatio <= 0:
		failureRatio = 0.5
	case failureRatio > 1:
		failureRatio = 1
	}
	if coolOff <= 0 {
		coolOff = 30 * time.Second
	}
	return &Breaker{
		minCalls:     minCalls,
		failureRatio: failureRatio,
		coolOff:      coolOff,
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
}

// WithTarget names the guarded dependency in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = strings.TrimSpace(target)
	b.publishState()
	return b
}

// WithLogger sets the fallback logger for transitions when the context carries none.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. An open breaker whose cool-off
// has elapsed moves to half-open and admits the caller as the probe.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.now().Sub(b.openedAt) < b.coolOff {
			return false
		}
		b.moveTo(ctx, HalfOpen)
		b.probing = true
		return true
	default:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	}
}

// Report records the outcome of an admitted call.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		return
	case HalfOpen:
		b.probing = false
		if success {
			b.moveTo(ctx, Closed)
		} else {
			b.moveTo(ctx, Open)
		}
		return
	}

	b.total++
	if !success {
		b.failed++
	}
	if b.total < b.minCalls {
		return
	}
	if float64(b.failed)/float64(b.total) >= b.failureRatio {
		b.moveTo(ctx, Open)
		return
	}
	// decay old outcomes so a long healthy run does not mask a fresh outage
	if b.total >= 2*b.minCalls {
		b.total = (b.total + 1) / 2
		b.failed = (b.failed + 1) / 2
	}
}

func (b *Breaker) moveTo(ctx context.Context, next State) {
	prev := b.state
	b.state = next
	b.failed, b.total = 0, 0
	switch next {
	case Open:
		b.openedAt = b.now()
	case Closed:
		b.openedAt = time.Time{}
	}
	b.publishState()
	if prev == next {
		return
	}

	label := b.label()
	BreakerTransitions.WithLabelValues(label, prev.String(), next.String()).Inc()
	if next == Open {
		BreakerOpenedTotal.WithLabelValues(label).Inc()
	}

	logger := b.logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	ev := logger.Warn()
	if next == Closed {
		ev = logger.Info()
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		ev = ev.Str("trace_id", sc.TraceID().String())
	}
	ev.Str("target", label).Str("from_state", prev.String()).Str("to_state", next.String()).Msg("breaker transition")
}

func (b *Breaker) publishState() {
	BreakerState.WithLabelValues(b.label()).Set(float64(b.state))
}

func (b *Breaker) label() string {
	if b.target == "" {
		return "default"
	}
	return b.target
}

// Backoff returns base doubled per attempt, spread by up to jitter (0.2 is ±20%).
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base << uint(attempt-1)
	if jitter <= 0 {
		return d
	}
	spread := float64(d) * jitter
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
