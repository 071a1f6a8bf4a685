package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hassbridge/hassbridge-go/pkg/transport"
)

// Connection errors.
var (
	// ErrInsufficientPrivilege indicates the authenticated user is not an
	// administrator. Terminal.
	ErrInsufficientPrivilege = errors.New("insufficient privilege")

	// ErrNotConnected indicates an operation needs a CONNECTED session.
	ErrNotConnected = errors.New("not connected")

	// ErrSupervisorClosed indicates the supervisor was shut down.
	ErrSupervisorClosed = errors.New("supervisor closed")
)

// DefaultInitialDelay is the wait before the very first connect attempt.
const DefaultInitialDelay = 5 * time.Second

// IsRetryable reports whether the supervisor retries after err.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrInsufficientPrivilege) {
		return false
	}
	return transport.IsRetryable(err)
}

// Session is one established connection cycle.
type Session interface {
	// Done is closed when the session has ended.
	Done() <-chan struct{}

	// Err returns why the session ended.
	Err() error

	// Close ends the session.
	Close() error
}

// ConnectFunc performs one complete connect attempt (handshake plus
// post-auth checks) and returns the running session.
type ConnectFunc func(ctx context.Context) (Session, error)

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	// InitialDelay is waited once before the first attempt. Zero uses
	// DefaultInitialDelay; SkipInitialDelay disables it.
	InitialDelay     time.Duration
	SkipInitialDelay bool

	// Backoff computes the delay between attempts (default fixed 5s).
	Backoff *Backoff

	// Logger for operational logs (default slog.Default()).
	Logger *slog.Logger
}

// Supervisor drives connect attempts until a session is up, waits for the
// session to end, and starts over. It stops on a terminal error or Close.
// At most one attempt or retry timer is outstanding at any time.
type Supervisor struct {
	config  SupervisorConfig
	machine *Machine
	connect ConnectFunc
	backoff *Backoff
	logger  *slog.Logger

	mu        sync.Mutex
	running   bool
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
	connected chan struct{}
	terminal  error

	onRetry func(attempt int, delay time.Duration, cause error)
}

// NewSupervisor creates a supervisor driving machine through connect.
func NewSupervisor(config SupervisorConfig, machine *Machine, connect ConnectFunc) *Supervisor {
	if config.InitialDelay == 0 {
		config.InitialDelay = DefaultInitialDelay
	}
	backoff := config.Backoff
	if backoff == nil {
		backoff = NewBackoff()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Supervisor{
		config:  config,
		machine: machine,
		connect: connect,
		backoff: backoff,
		logger:  logger,
	}
}

// OnRetry sets a callback invoked whenever a retry is scheduled.
func (s *Supervisor) OnRetry(fn func(attempt int, delay time.Duration, cause error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRetry = fn
}

// Start launches the supervisor loop if it is not already running. A loop
// that stopped on a terminal error is started afresh.
func (s *Supervisor) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
}

func (s *Supervisor) startLocked() {
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	s.connected = make(chan struct{})
	s.terminal = nil

	delay := s.config.InitialDelay
	if s.config.SkipInitialDelay || s.started {
		delay = 0
	}
	s.started = true

	go s.run(ctx, delay, s.done, s.connected)
}

// Connect starts the supervisor if needed and waits until a session is
// CONNECTED or the loop stops on a terminal error. Retryable failures are
// retried in the background while Connect waits. Cancelling ctx abandons
// the wait but not the supervisor.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.startLocked()
	done, connected := s.done, s.connected
	s.mu.Unlock()

	select {
	case <-connected:
		return nil
	case <-done:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.terminal != nil {
			return s.terminal
		}
		return ErrSupervisorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop, closes the current session and waits for the loop
// to exit.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

// Running reports whether the loop is active.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Err returns the terminal error that stopped the loop, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminal
}

func (s *Supervisor) run(ctx context.Context, delay time.Duration, done, connected chan struct{}) {
	var terminal error
	defer func() {
		s.mu.Lock()
		s.running = false
		s.terminal = terminal
		s.mu.Unlock()
		close(done)
	}()

	if delay > 0 {
		s.logger.Debug("delaying first connect", "delay", delay)
		if !sleep(ctx, delay) {
			return
		}
	}

	var connectedOnce sync.Once
	for {
		if err := s.machine.Transition(StateConnecting, nil); err != nil {
			s.logger.Error("cannot start attempt", "error", err)
			terminal = err
			return
		}

		sess, err := s.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				_ = s.machine.Transition(StateDisconnected, nil)
				return
			}
			_ = s.machine.Transition(StateError, err)
			if !IsRetryable(err) {
				s.logger.Error("connect failed, not retrying", "error", err)
				terminal = err
				return
			}
			if !s.wait(ctx, err) {
				return
			}
			continue
		}

		s.backoff.Reset()
		_ = s.machine.Transition(StateConnected, nil)
		connectedOnce.Do(func() { close(connected) })

		select {
		case <-sess.Done():
		case <-ctx.Done():
			_ = sess.Close()
			<-sess.Done()
			_ = s.machine.Transition(StateDisconnected, nil)
			return
		}

		cause := sess.Err()

		if cause != nil && !IsRetryable(cause) {
			_ = s.machine.Transition(StateError, cause)
			s.logger.Error("session ended, not retrying", "error", cause)
			terminal = cause
			return
		}
		_ = s.machine.Transition(StateDisconnected, cause)

		if !s.wait(ctx, cause) {
			return
		}
	}
}

// wait sleeps for the next backoff delay. It returns false if ctx ended.
func (s *Supervisor) wait(ctx context.Context, cause error) bool {
	delay := s.backoff.Next()
	attempt := s.backoff.Attempts()

	s.mu.Lock()
	onRetry := s.onRetry
	s.mu.Unlock()
	if onRetry != nil {
		onRetry(attempt, delay, cause)
	}
	s.logger.Info("retrying connection", "attempt", attempt, "delay", delay, "cause", cause)

	return sleep(ctx, delay)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
