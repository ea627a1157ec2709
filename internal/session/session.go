package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/autowhitelist/internal/protocol"
	"github.com/rickgao/autowhitelist/internal/router"
)

// noCloseFrame tells teardown the peer is already gone.
const noCloseFrame = 0

// Session drives a single upgraded WebSocket connection.
type Session struct {
	cfg    Config
	conn   *websocket.Conn
	router Router
	logger *slog.Logger

	id    router.ConnID
	state atomic.Int32

	// Unix nanoseconds of the last ping or pong from the peer.
	lastHeartbeat atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a session for an upgraded connection. Run must be called to
// register it with the router.
func New(cfg Config, conn *websocket.Conn, r Router, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = defaults.HeartbeatTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}

	return &Session{
		cfg:    cfg,
		conn:   conn,
		router: r,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run serves the connection until it closes. The returned error is the reason
// the session ended; a clean close by the peer or ctx cancellation returns nil.
func (s *Session) Run(ctx context.Context) error {
	id, out, err := s.router.Connect(ctx)
	if err != nil {
		s.state.Store(int32(StateClosed))
		s.conn.Close()
		return fmt.Errorf("register connection: %w", err)
	}
	s.id = id
	s.logger = s.logger.With("conn_id", id, "remote", s.conn.RemoteAddr().String())

	s.touch()
	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	s.conn.SetPingHandler(func(data string) error {
		s.touch()
		err := s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.cfg.WriteTimeout))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	s.conn.SetPongHandler(func(string) error {
		s.touch()
		return nil
	})

	s.logger.Debug("session opened")

	frames := make(chan inbound)
	go s.readLoop(frames)

	code, cause := s.loop(ctx, out, frames)
	s.teardown(code, cause)
	return cause
}

// loop is the session's single select. It returns the close code to send
// and the reason for closing.
func (s *Session) loop(ctx context.Context, out <-chan string, frames <-chan inbound) (int, error) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	heartbeat := time.NewTimer(s.cfg.HeartbeatTimeout)
	defer heartbeat.Stop()

	verifyBy := time.Now().Add(s.cfg.HeartbeatTimeout)
	verifyTimer := time.NewTimer(s.cfg.HeartbeatTimeout)
	defer verifyTimer.Stop()
	deadline := verifyTimer.C

	// nil until verified
	var outbound <-chan string

	for {
		select {
		case <-ctx.Done():
			return websocket.CloseGoingAway, nil

		case f := <-frames:
			if f.err != nil {
				if websocket.IsCloseError(f.err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return noCloseFrame, nil
				}
				return noCloseFrame, fmt.Errorf("read: %w", f.err)
			}
			// Only the first text frame while unverified is a credential.
			if s.State() != StateUnverified || f.msgType != websocket.TextMessage {
				continue
			}
			if code, err := s.verify(ctx, f.data, verifyBy); err != nil {
				if ctx.Err() != nil {
					return websocket.CloseGoingAway, nil
				}
				return code, err
			}
			outbound = out
			deadline = nil

		case payload, ok := <-outbound:
			if !ok {
				return websocket.CloseGoingAway, ErrRouterClosed
			}
			if err := s.write(protocol.Notification(payload)); err != nil {
				return noCloseFrame, fmt.Errorf("write notification: %w", err)
			}

		case <-ticker.C:
			writeBy := time.Now().Add(s.cfg.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, writeBy); err != nil {
				return noCloseFrame, fmt.Errorf("write ping: %w", err)
			}

		case <-heartbeat.C:
			// Fires at the earliest possible expiry; re-arm if the peer was
			// heard from since.
			if wait := time.Until(s.lastSeen().Add(s.cfg.HeartbeatTimeout)); wait > 0 {
				heartbeat.Reset(wait)
				continue
			}
			s.logger.Warn("heartbeat missed",
				"last_heartbeat", s.lastSeen(),
				"timeout", s.cfg.HeartbeatTimeout,
			)
			return websocket.CloseGoingAway, ErrHeartbeatTimeout

		case <-deadline:
			s.logger.Warn("verification deadline passed", "timeout", s.cfg.HeartbeatTimeout)
			return websocket.ClosePolicyViolation, ErrVerifyTimeout
		}
	}
}

// verify handles the hello frame. A nil error means the session is now
// verified. The router call is bounded by the verification deadline.
func (s *Session) verify(ctx context.Context, data []byte, verifyBy time.Time) (int, error) {
	hello, err := protocol.DecodeHello(data)
	if err != nil {
		s.logger.Warn("invalid hello", "error", err)
		return websocket.ClosePolicyViolation, fmt.Errorf("%w: %v", ErrBadHello, err)
	}

	vctx, cancel := context.WithDeadline(ctx, verifyBy)
	defer cancel()

	name, err := s.router.Verify(vctx, hello.Key, s.id)
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		s.logger.Warn("verification deadline passed during lookup", "timeout", s.cfg.HeartbeatTimeout)
		return websocket.ClosePolicyViolation, ErrVerifyTimeout
	case errors.Is(err, router.ErrUnknownKey):
		if werr := s.write(protocol.UnknownKey()); werr != nil {
			s.logger.Debug("failed to send rejection", "error", werr)
		}
		return websocket.ClosePolicyViolation, err
	case errors.Is(err, router.ErrDuplicateKey):
		if werr := s.write(protocol.DuplicateKey()); werr != nil {
			s.logger.Debug("failed to send rejection", "error", werr)
		}
		return websocket.ClosePolicyViolation, err
	default:
		return websocket.CloseInternalServerErr, fmt.Errorf("verify: %w", err)
	}

	if err := s.write(protocol.Verified(name)); err != nil {
		return noCloseFrame, fmt.Errorf("write ack: %w", err)
	}
	s.state.Store(int32(StateVerified))
	s.logger.Info("session verified", "server_name", name)

	return 0, nil
}

// write sends one text frame. It takes an encoder's results directly.
func (s *Session) write(data []byte, err error) error {
	if err != nil {
		return err
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop forwards reads to Run until the connection fails.
func (s *Session) readLoop(frames chan<- inbound) {
	for {
		msgType, data, err := s.conn.ReadMessage()
		select {
		case frames <- inbound{msgType: msgType, data: data, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// teardown releases the router binding and closes the socket. Safe to call
// more than once.
func (s *Session) teardown(code int, cause error) {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)

		s.router.Disconnect(s.id)

		if code != noCloseFrame {
			msg := websocket.FormatCloseMessage(code, "")
			s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		s.conn.Close()

		if cause != nil {
			s.logger.Info("session closed", "reason", cause)
		} else {
			s.logger.Debug("session closed")
		}
	})
}

func (s *Session) touch() {
	s.lastHeartbeat.Store(time.Now().UnixNano())
}

func (s *Session) lastSeen() time.Time {
	return time.Unix(0, s.lastHeartbeat.Load())
}
