package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hassbridge/hassbridge-go/pkg/interaction"
	"github.com/hassbridge/hassbridge-go/pkg/subscription"
	"github.com/hassbridge/hassbridge-go/pkg/transport"
	"github.com/hassbridge/hassbridge-go/pkg/wire"
)

var (
	// errKeepAliveTimeout ends a session whose pings went unanswered.
	errKeepAliveTimeout = fmt.Errorf("%w: keep-alive timeout", transport.ErrConnectionLost)

	errClosedLocally = errors.New("closed locally")
)

// hubSession is one authenticated connection cycle: the socket, the command
// client multiplexed over it, its reader goroutine and the keep-alive.
// It satisfies connection.Session.
type hubSession struct {
	conn      transport.FrameConn
	client    *interaction.Client
	keepAlive *transport.KeepAlive
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// newHubSession binds a session to parent: cancelling parent aborts every
// command issued on the session's context.
func newHubSession(parent context.Context, conn transport.FrameConn, requestTimeout time.Duration, logger *slog.Logger) *hubSession {
	client := interaction.NewClient(conn)
	client.SetTimeout(requestTimeout)

	ctx, cancel := context.WithCancel(parent)
	return &hubSession{
		conn:   conn,
		client: client,
		logger: logger.With("conn_id", conn.ID()),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// start launches the reader goroutine.
func (s *hubSession) start() {
	go s.readLoop()
}

// startKeepAlive begins pinging the hub. A dead connection is closed, which
// ends the reader and with it the session.
func (s *hubSession) startKeepAlive(config transport.KeepAliveConfig) {
	ka := transport.NewKeepAlive(config, s.client.Ping, func() {
		s.logger.Warn("hub stopped answering pings")
		s.fail(errKeepAliveTimeout)
	})
	s.mu.Lock()
	s.keepAlive = ka
	s.mu.Unlock()
	ka.Start(s.ctx)
}

func (s *hubSession) readLoop() {
	defer s.finish()

	for {
		frame, err := s.conn.ReadFrame()
		if err != nil {
			if errors.Is(err, transport.ErrMalformedFrame) {
				s.logger.Debug("dropping malformed frame", "error", err)
				continue
			}
			s.fail(err)
			return
		}
		if err := s.client.HandleFrame(frame); err != nil {
			s.logger.Debug("unrouted frame", "type", frame.Type, "id", frame.ID, "error", err)
		}
	}
}

// fail records the first cause and tears the socket down.
func (s *hubSession) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()

	s.cancel()
	_ = s.conn.Close()
}

func (s *hubSession) finish() {
	s.cancel()
	s.mu.Lock()
	ka := s.keepAlive
	s.mu.Unlock()
	if ka != nil {
		ka.Stop()
	}
	_ = s.client.Close()
	close(s.done)
}

// Done is closed once the reader has exited and the session is cleaned up.
func (s *hubSession) Done() <-chan struct{} {
	return s.done
}

// Err returns why the session ended. A session closed locally has no error.
func (s *hubSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(s.err, errClosedLocally) {
		return nil
	}
	return s.err
}

// Close ends the session.
func (s *hubSession) Close() error {
	s.fail(errClosedLocally)
	return nil
}

// sessionSubscriber adapts the session's command client to the
// multiplexer.
type sessionSubscriber struct {
	client *interaction.Client
}

func (s sessionSubscriber) SubscribeEvents(ctx context.Context, eventType string, handler interaction.EventHandler) (subscription.Handle, error) {
	sub, err := s.client.SubscribeEvents(ctx, eventType, handler)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

var _ subscription.Subscriber = sessionSubscriber{}

// eventHandler adapts an enqueue function to interaction.EventHandler.
func eventHandler(enqueue func(*wire.EventMessage)) interaction.EventHandler {
	return func(_ uint64, event *wire.EventMessage) {
		enqueue(event)
	}
}
