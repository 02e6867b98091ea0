package provider

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/zone_strangler/internal/logging"
	"github.com/eddiefleurent/zone_strangler/internal/models"
)

// RetryConfig bounds every provider call.
type RetryConfig struct {
	CallTimeout time.Duration // per attempt
	MaxRetries  int           // attempts after the first
	RetryGap    time.Duration // minimum wait between attempts
}

// DefaultRetryConfig is a 15s deadline with three retries one second apart.
var DefaultRetryConfig = RetryConfig{
	CallTimeout: 15 * time.Second,
	MaxRetries:  3,
	RetryGap:    time.Second,
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips after 60% failures over at least five calls.
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  3,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

// StatusError is returned by the HTTP adapters for non-2xx answers.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

type guard struct {
	name   string
	cfg    RetryConfig
	cb     CircuitBreakerSettings
	logger *logrus.Entry

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker // keyed by symbol
}

func newGuard(name string, cfg RetryConfig, cb CircuitBreakerSettings, logger *logrus.Logger) *guard {
	if logger == nil {
		logger = logging.Discard()
	}
	return &guard{
		name:     name,
		cfg:      cfg,
		cb:       cb,
		logger:   logger.WithField("provider", name),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// breaker returns the symbol's breaker, creating it on first use. An
// outage on one index never blocks calls for another.
func (g *guard) breaker(symbol string) *gobreaker.CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.breakers[symbol]; ok {
		return b
	}
	cb := g.cb
	entry := g.logger.WithField("symbol", symbol)
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        g.name + ":" + symbol,
		MaxRequests: cb.MaxRequests,
		Interval:    cb.Interval,
		Timeout:     cb.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < cb.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cb.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			entry.Warnf("circuit breaker %s state changed from %s to %s", name, from, to)
		},
		// An honest empty answer is not an outage
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoData)
		},
	})
	g.breakers[symbol] = b
	return b
}

// call runs fn through the breaker with a per-attempt deadline, retrying
// transient failures. ErrNoData is returned as is; everything else that
// cannot be recovered becomes ErrProviderUnavailable.
func call[T any](ctx context.Context, g *guard, symbol, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := g.cfg.MaxRetries + 1
	breaker := g.breaker(symbol)

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%w: %s canceled: %v", ErrProviderUnavailable, op, ctx.Err())
		}

		res, err := breaker.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
			defer cancel()
			return fn(callCtx)
		})
		if err == nil {
			v, _ := res.(T)
			return v, nil
		}
		if errors.Is(err, ErrNoData) {
			return zero, err
		}
		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}

		g.logger.WithError(err).Debugf("%s attempt %d/%d failed", op, attempt, attempts)
		if !isTransientError(err) || attempt == attempts {
			break
		}

		select {
		case <-time.After(g.cfg.RetryGap + jitter(g.cfg.RetryGap/4)):
		case <-ctx.Done():
			return zero, fmt.Errorf("%w: %s canceled during backoff: %v", ErrProviderUnavailable, op, ctx.Err())
		}
	}

	g.logger.WithError(lastErr).Warnf("%s gave up", op)
	return zero, fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, op, lastErr)
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status == 429 || se.Status >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"eof",
		"network",
		"dns",
		"tcp",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// ResilientChain wraps a ChainProvider with deadline, retry and circuit breaker.
type ResilientChain struct {
	inner ChainProvider
	guard *guard
}

// NewResilientChain wraps p.
func NewResilientChain(p ChainProvider, cfg RetryConfig, cb CircuitBreakerSettings, logger *logrus.Logger) *ResilientChain {
	return &ResilientChain{inner: p, guard: newGuard("chain", cfg, cb, logger)}
}

// ListExpiries wraps the underlying call.
func (r *ResilientChain) ListExpiries(ctx context.Context, symbol string) ([]time.Time, error) {
	return call(ctx, r.guard, symbol, "list expiries "+symbol, func(ctx context.Context) ([]time.Time, error) {
		return r.inner.ListExpiries(ctx, symbol)
	})
}

// FetchChain wraps the underlying call.
func (r *ResilientChain) FetchChain(ctx context.Context, symbol string) (*Chain, error) {
	return call(ctx, r.guard, symbol, "fetch chain "+symbol, func(ctx context.Context) (*Chain, error) {
		return r.inner.FetchChain(ctx, symbol)
	})
}

// ResilientHistory wraps a HistoryProvider the same way.
type ResilientHistory struct {
	inner HistoryProvider
	guard *guard
}

// NewResilientHistory wraps p.
func NewResilientHistory(p HistoryProvider, cfg RetryConfig, cb CircuitBreakerSettings, logger *logrus.Logger) *ResilientHistory {
	return &ResilientHistory{inner: p, guard: newGuard("history", cfg, cb, logger)}
}

// FetchDaily wraps the underlying call.
func (r *ResilientHistory) FetchDaily(ctx context.Context, symbol string, period Period) ([]models.Candle, error) {
	return call(ctx, r.guard, symbol, "fetch daily "+symbol, func(ctx context.Context) ([]models.Candle, error) {
		return r.inner.FetchDaily(ctx, symbol, period)
	})
}

var (
	_ ChainProvider   = (*ResilientChain)(nil)
	_ HistoryProvider = (*ResilientHistory)(nil)
)
