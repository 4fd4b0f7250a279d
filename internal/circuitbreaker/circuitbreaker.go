// Package circuitbreaker keeps the push dispatcher from hammering a push
// provider that is already failing.
//
//	closed    --Threshold consecutive failures-->  open
//	open      --Cooldown elapsed, next Allow--->   half-open
//	half-open --trial succeeds----------------->   closed
//	half-open --trial fails-------------------->   open
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/StackHorizon-ProxoCoris/backend-mobileapp/internal/metrics"
)

// State is the position of a Breaker in its cycle. The numeric values are
// what the citizen_circuit_state gauge reports.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned instead of calling a provider the breaker has
// given up on.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config tunes a Breaker.
type Config struct {
	// Name labels logs and metrics, e.g. "expo".
	Name string

	// Threshold is the number of consecutive failed chunks that opens the circuit.
	Threshold int

	// Cooldown is how long the circuit stays open before a trial chunk is let through.
	Cooldown time.Duration

	// Trials is how many chunks may be in flight while half-open.
	Trials int
}

// DefaultConfig opens after five failed chunks and retries after 30s.
func DefaultConfig(name string) Config {
	return Config{
		Name:      name,
		Threshold: 5,
		Cooldown:  30 * time.Second,
		Trials:    1,
	}
}

// Breaker counts consecutive push gateway failures and short-circuits calls
// once the provider looks down.
type Breaker struct {
	mu     sync.Mutex
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	state    State
	failures int
	openedAt time.Time
	inTrial  int
}

// New creates a closed Breaker. Zero Config fields take DefaultConfig values.
func New(cfg Config, logger *zap.Logger) *Breaker {
	def := DefaultConfig(cfg.Name)
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Trials <= 0 {
		cfg.Trials = def.Trials
	}

	b := &Breaker{
		cfg:    cfg,
		logger: logger.With(zap.String("breaker", cfg.Name)),
		now:    time.Now,
	}
	metrics.SetCircuitState(cfg.Name, int(StateClosed))
	return b
}

// Allow reports whether the next chunk may be sent. Every true must be
// followed by Success or Failure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			metrics.RecordCircuitRejection(b.cfg.Name)
			return false
		}
		b.setState(StateHalfOpen)
		b.inTrial = 1
		b.logger.Info("push gateway cool-down elapsed, sending trial chunk")
		return true

	case StateHalfOpen:
		if b.inTrial >= b.cfg.Trials {
			metrics.RecordCircuitRejection(b.cfg.Name)
			return false
		}
		b.inTrial++
		return true

	default:
		return true
	}
}

// Success resets the failure streak and closes a half-open circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateHalfOpen {
		b.setState(StateClosed)
		b.logger.Info("push gateway recovered, circuit closed")
	}
}

// Failure extends the streak. It opens a closed circuit at Threshold and
// reopens a half-open one immediately.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++

	switch b.state {
	case StateClosed:
		if b.failures >= b.cfg.Threshold {
			b.open()
			b.logger.Warn("push gateway failing, circuit opened",
				zap.Int("failures", b.failures),
				zap.Duration("cooldown", b.cfg.Cooldown),
			)
		}
	case StateHalfOpen:
		b.open()
		b.logger.Warn("trial chunk failed, circuit reopened")
	}
}

// abandon returns a trial slot taken by Allow whose call ended without a
// verdict, e.g. because the caller gave up.
func (b *Breaker) abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.inTrial > 0 {
		b.inTrial--
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Check fails while the circuit is open so /health can surface a dead push
// provider. Half-open counts as healthy: a trial is already under way.
func (b *Breaker) Check(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	retryIn := b.cfg.Cooldown - b.now().Sub(b.openedAt)
	if retryIn < 0 {
		retryIn = 0
	}
	return fmt.Errorf("%w: %s after %d failures, trial in %s",
		ErrCircuitOpen, b.cfg.Name, b.failures, retryIn.Round(time.Second))
}

// open must be called with mu held.
func (b *Breaker) open() {
	b.openedAt = b.now()
	b.setState(StateOpen)
}

// setState must be called with mu held.
func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.logger.Debug("circuit state change",
		zap.String("from", b.state.String()),
		zap.String("to", s.String()),
	)
	b.state = s
	b.inTrial = 0
	metrics.SetCircuitState(b.cfg.Name, int(s))
}
