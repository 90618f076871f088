package websocket

import (
	"sync"
	"time"

	"dm-chat-service/pkg/logger"
)

const (
	defaultBreakerThreshold = 3
	defaultBreakerTimeout   = 30 * time.Second
)

// relayBreaker stops publishing to the room relay after repeated failures.
// While open, fan-out stays on this instance. After the timeout one publish
// is let through and its outcome decides whether the circuit closes.
type relayBreaker struct {
	mu sync.Mutex

	threshold   int
	openTimeout time.Duration

	consecutiveErrors int
	errorCount        int
	lastError         error
	lastErrorTime     time.Time

	circuitOpen      bool
	circuitResetTime time.Time

	now    func() time.Time
	logger *logger.Logger
}

func newRelayBreaker(threshold int, openTimeout time.Duration, log *logger.Logger) *relayBreaker {
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}
	if openTimeout <= 0 {
		openTimeout = defaultBreakerTimeout
	}
	return &relayBreaker{
		threshold:   threshold,
		openTimeout: openTimeout,
		now:         time.Now,
		logger:      log,
	}
}

// allow reports whether a publish should be attempted
func (b *relayBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.circuitOpen {
		return true
	}
	// half-open: one probe per timeout window
	if b.now().After(b.circuitResetTime) {
		b.circuitResetTime = b.now().Add(b.openTimeout)
		return true
	}
	return false
}

func (b *relayBreaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveErrors = 0
	if b.circuitOpen {
		b.circuitOpen = false
		b.logger.Info("Room relay circuit closed", "downtime", b.now().Sub(b.lastErrorTime))
	}
}

func (b *relayBreaker) failure(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastError = err
	b.lastErrorTime = b.now()
	b.errorCount++
	b.consecutiveErrors++

	if !b.circuitOpen && b.consecutiveErrors >= b.threshold {
		b.circuitOpen = true
		b.circuitResetTime = b.now().Add(b.openTimeout)
		b.logger.Warn("Room relay circuit opened",
			"consecutiveErrors", b.consecutiveErrors,
			"until", b.circuitResetTime,
			"error", err,
		)
	}
}

func (b *relayBreaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.circuitOpen
}

// stats is a snapshot for diagnostics
func (b *relayBreaker) stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	return map[string]interface{}{
		"errorCount":        b.errorCount,
		"consecutiveErrors": b.consecutiveErrors,
		"lastErrorTime":     b.lastErrorTime,
		"circuitOpen":       b.circuitOpen,
		"circuitResetTime":  b.circuitResetTime,
	}
}
