package transport

import (
	"context"
	"sync"
	"time"
)

// Keep-alive constants.
const (
	// DefaultPingInterval is the default interval between pings.
	DefaultPingInterval = 30 * time.Second

	// DefaultPongTimeout is the default timeout waiting for a pong response.
	DefaultPongTimeout = 10 * time.Second

	// DefaultMaxMissedPongs is the default number of missed pongs before
	// the connection is considered dead.
	DefaultMaxMissedPongs = 2
)

// KeepAliveConfig configures keep-alive behavior.
type KeepAliveConfig struct {
	// PingInterval is the interval between pings.
	PingInterval time.Duration

	// PongTimeout is the timeout waiting for a pong response.
	PongTimeout time.Duration

	// MaxMissedPongs is the number of missed pongs before disconnect.
	MaxMissedPongs int
}

// DefaultKeepAliveConfig returns the default keep-alive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		PingInterval:   DefaultPingInterval,
		PongTimeout:    DefaultPongTimeout,
		MaxMissedPongs: DefaultMaxMissedPongs,
	}
}

// DetectionDelay is the longest a dead connection can go unnoticed.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	return c.PingInterval*time.Duration(c.MaxMissedPongs) + c.PongTimeout
}

// PingFunc sends a ping command and blocks until the matching pong arrives
// or ctx expires.
type PingFunc func(ctx context.Context) error

// KeepAlive monitors connection liveness with application-level pings.
type KeepAlive struct {
	config    KeepAliveConfig
	ping      PingFunc
	onTimeout func()

	mu           sync.Mutex
	running      bool
	stopCh       chan struct{}
	doneCh       chan struct{}
	missedPongs  int
	lastPingTime time.Time
	lastPongTime time.Time
	lastLatency  time.Duration
}

// KeepAliveStats contains keep-alive statistics.
type KeepAliveStats struct {
	LastPingTime time.Time
	LastPongTime time.Time
	LastLatency  time.Duration
	MissedPongs  int
}

// NewKeepAlive creates a keep-alive monitor. onTimeout is called once when
// MaxMissedPongs consecutive pings fail.
func NewKeepAlive(config KeepAliveConfig, ping PingFunc, onTimeout func()) *KeepAlive {
	if config.PingInterval == 0 {
		config.PingInterval = DefaultPingInterval
	}
	if config.PongTimeout == 0 {
		config.PongTimeout = DefaultPongTimeout
	}
	if config.MaxMissedPongs == 0 {
		config.MaxMissedPongs = DefaultMaxMissedPongs
	}

	return &KeepAlive{
		config:    config,
		ping:      ping,
		onTimeout: onTimeout,
	}
}

// Start begins the monitoring loop.
func (ka *KeepAlive) Start(ctx context.Context) {
	ka.mu.Lock()
	if ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = true
	ka.stopCh = make(chan struct{})
	ka.doneCh = make(chan struct{})
	stopCh, doneCh := ka.stopCh, ka.doneCh
	ka.mu.Unlock()

	go ka.loop(ctx, stopCh, doneCh)
}

// Stop stops monitoring and waits for the loop to exit.
func (ka *KeepAlive) Stop() {
	ka.mu.Lock()
	if !ka.running {
		ka.mu.Unlock()
		return
	}
	ka.running = false
	close(ka.stopCh)
	doneCh := ka.doneCh
	ka.mu.Unlock()

	<-doneCh
}

// IsRunning returns true if monitoring is active.
func (ka *KeepAlive) IsRunning() bool {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return ka.running
}

// Stats returns current keep-alive statistics.
func (ka *KeepAlive) Stats() KeepAliveStats {
	ka.mu.Lock()
	defer ka.mu.Unlock()
	return KeepAliveStats{
		LastPingTime: ka.lastPingTime,
		LastPongTime: ka.lastPongTime,
		LastLatency:  ka.lastLatency,
		MissedPongs:  ka.missedPongs,
	}
}

func (ka *KeepAlive) loop(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(ka.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if ka.handleTick(ctx, stopCh) {
				return
			}
		}
	}
}

// handleTick sends one ping and reports whether the connection is dead.
func (ka *KeepAlive) handleTick(ctx context.Context, stopCh chan struct{}) bool {
	pingCtx, cancel := context.WithTimeout(ctx, ka.config.PongTimeout)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-pingCtx.Done():
		}
	}()

	start := time.Now()
	ka.mu.Lock()
	ka.lastPingTime = start
	ka.mu.Unlock()

	err := ka.ping(pingCtx)

	select {
	case <-stopCh:
		return true
	default:
	}
	if ctx.Err() != nil {
		return true
	}

	ka.mu.Lock()
	if err == nil {
		now := time.Now()
		ka.lastPongTime = now
		ka.lastLatency = now.Sub(start)
		ka.missedPongs = 0
		ka.mu.Unlock()
		return false
	}

	ka.missedPongs++
	dead := ka.missedPongs >= ka.config.MaxMissedPongs
	ka.mu.Unlock()

	if dead && ka.onTimeout != nil {
		ka.onTimeout()
	}
	return dead
}
