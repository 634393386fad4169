// Package session implements the Session state machine (spec §4.D): the
// outbound WebSocket handshake, its read/write loops, keep-alive, and
// graceful shutdown.
package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relayforge/relayforge/internal/core/domain"
	"github.com/relayforge/relayforge/internal/logger"
	"github.com/relayforge/relayforge/internal/metrics"
	"github.com/relayforge/relayforge/internal/wire"
)

const writeWait = 5 * time.Second

// Dispatcher receives every decoded inbound frame. The read loop owns
// decoding; it hands the result off and moves straight back to reading.
type Dispatcher interface {
	Dispatch(msg domain.ServerMessage)
}

// Session is either Connecting (inside Connect), Open (Run in progress), or
// Closed (Run has returned). There is no path back to Open once Closed.
type Session struct {
	conn   *websocket.Conn
	connID string

	outbound *outboundQueue
	shutdown chan struct{}
	closeOne sync.Once

	inactivityTimeout time.Duration
	dispatcher        Dispatcher
	log               *logger.StyledLogger

	open atomic.Bool
	wg   sync.WaitGroup
}

// Connect performs the handshake against base (e.g. "wss://controlplane.example.com")
// using token, and returns an unstarted Session on success. Call Run to
// start the read/write loops.
func Connect(ctx context.Context, base string, token domain.ProxyToken, dispatcher Dispatcher, inactivityTimeout time.Duration, log *logger.StyledLogger) (*Session, error) {
	url := toWebsocketURL(token.HandshakeURL(base))

	header := http.Header{}
	header.Set(domain.AuthHeaderName, token.Token)

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, domain.NewSessionError(domain.SessionErrHandshake, fmt.Errorf("http error: %s", resp.Status))
		}
		return nil, domain.NewSessionError(domain.SessionErrHandshake, err)
	}

	connID := resp.Header.Get(domain.ConnIDHeaderName)
	if connID == "" {
		_ = conn.Close()
		return nil, domain.NewSessionError(domain.SessionErrHandshake, fmt.Errorf("missing %s header", domain.ConnIDHeaderName))
	}

	s := &Session{
		conn:              conn,
		connID:            connID,
		outbound:          newOutboundQueue(),
		shutdown:          make(chan struct{}),
		inactivityTimeout: inactivityTimeout,
		dispatcher:        dispatcher,
		log:               log.With("conn_id", connID),
	}

	conn.SetPingHandler(func(appData string) error {
		s.log.Debug("ping received")
		return conn.WriteControl(websocket.PongMessage, nil, time.Now().Add(writeWait))
	})

	return s, nil
}

func toWebsocketURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return u
	}
}

// ConnID returns the control plane's connection identifier for this session.
func (s *Session) ConnID() string { return s.connID }

// IsOpen reports whether this session is currently Open (spec §4.D).
func (s *Session) IsOpen() bool { return s.open.Load() }

// SendInitial writes msg directly to the transport, bypassing the outbound
// queue. It must only be called before Run starts the write loop: the
// Supervisor uses it to send the opening SetDataSources frame and confirm it
// succeeded before starting the Dispatcher (spec §4.F, §5 ordering
// guarantees).
func (s *Session) SendInitial(msg domain.ProxyMessage) error {
	data, err := wire.Encode(msg)
	if err != nil {
		return domain.NewSessionError(domain.SessionErrEncode, err)
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return domain.NewSessionError(domain.SessionErrTransport, err)
	}
	return nil
}

// Close tears down the transport without running the read/write loops. Used
// when a Session is abandoned before Run (e.g. SendInitial failed).
func (s *Session) Close() {
	s.gracefulClose()
}

// Publish enqueues msg on the outbound queue; it never blocks. Safe to call
// from any goroutine, including after the session has closed (the message
// is simply never sent, per invariant I5).
func (s *Session) Publish(msg domain.ProxyMessage) {
	if !s.open.Load() {
		return
	}
	s.outbound.push(msg)
}

// RequestShutdown raises the shared shutdown signal. Safe to call multiple
// times and from multiple goroutines.
func (s *Session) RequestShutdown() {
	s.closeOne.Do(func() { close(s.shutdown) })
}

// Run starts the read and write loops and blocks until both exit, then
// performs a graceful close. Run returns once the session is Closed.
func (s *Session) Run(ctx context.Context) {
	s.open.Store(true)
	metrics.SessionOpen.Set(1)

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()

	go func() {
		select {
		case <-ctx.Done():
			s.RequestShutdown()
		case <-s.shutdown:
		}
		// Unblock a readLoop parked in ReadMessage so it sees the shutdown.
		_ = s.conn.SetReadDeadline(time.Now())
	}()

	s.wg.Wait()

	s.open.Store(false)
	metrics.SessionOpen.Set(0)
	s.gracefulClose()
}

func (s *Session) readLoop() {
	defer s.wg.Done()
	defer s.RequestShutdown()

	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Warn("session read loop ending", "err", err)
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			sm, decodeErr := wire.Decode(data)
			if decodeErr != nil {
				s.log.Warn("malformed server frame, continuing", "err", decodeErr)
				continue
			}
			s.dispatcher.Dispatch(sm)
		case websocket.CloseMessage:
			return
		default:
			s.log.Debug("ignoring non-binary frame", "type", mt)
		}
	}
}

func (s *Session) writeLoop() {
	defer s.wg.Done()
	defer s.RequestShutdown()

	timer := time.NewTimer(s.inactivityTimeout)
	defer timer.Stop()

	for {
		if msg, ok := s.outbound.tryPop(); ok {
			if !s.send(msg) {
				return
			}
			resetTimer(timer, s.inactivityTimeout)
			continue
		}

		select {
		case <-s.shutdown:
			return
		case <-s.outbound.notify:
			continue
		case <-timer.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				s.log.Warn("keep-alive ping failed", "err", err)
				return
			}
			resetTimer(timer, s.inactivityTimeout)
		}
	}
}

// send encodes and writes msg. An encode error is logged and the message is
// dropped (session survives); a transport write error is fatal.
func (s *Session) send(msg domain.ProxyMessage) bool {
	data, err := wire.Encode(msg)
	if err != nil {
		s.log.Warn("failed to encode outbound message, dropping", "kind", msg.Kind, "err", err)
		return true
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		s.log.Warn("session write failed", "err", err)
		return false
	}
	return true
}

func (s *Session) gracefulClose() {
	deadline := time.Now().Add(writeWait)
	_ = s.conn.WriteControl(websocket.CloseMessage, []byte{}, deadline)
	_ = s.conn.Close()
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
