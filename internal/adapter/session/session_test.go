package session

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/relayforge/relayforge/internal/core/domain"
	"github.com/relayforge/relayforge/internal/logger"
	"github.com/relayforge/relayforge/theme"
)

// encodeInvokeProxyRequest builds the raw wire bytes of a server->proxy
// invoke_proxy_request frame. wire.Encode only produces ProxyMessage
// (proxy->server) frames, so tests standing in for the control plane side
// build the envelope directly.
func encodeInvokeProxyRequest(t *testing.T, opID domain.OpId, dataSourceName string, payload []byte) []byte {
	t.Helper()
	raw, err := msgpack.Marshal(map[string]any{
		"type":             string(domain.ServerMessageInvoke),
		"op_id":            opID.String(),
		"data_source_name": dataSourceName,
		"payload":          payload,
	})
	require.NoError(t, err)
	return raw
}

type recordingDispatcher struct {
	mu       sync.Mutex
	received []domain.ServerMessage
}

func (d *recordingDispatcher) Dispatch(msg domain.ServerMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.received = append(d.received, msg)
}

func (d *recordingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.received)
}

func testLogger() *logger.StyledLogger {
	return logger.NewStyledLogger(slog.New(slog.DiscardHandler), theme.Default(), false)
}

// newEchoServer rejects requests without the auth header, upgrades the rest
// with a conn-id response header, and hands each server-side conn to the
// test through the returned channel without reading from it - tests drive
// behaviour from the server side via that conn.
func newEchoServer(t *testing.T, connID string) (*httptest.Server, chan *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(domain.AuthHeaderName) == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		header := http.Header{}
		header.Set(domain.ConnIDHeaderName, connID)
		conn, err := upgrader.Upgrade(w, r, header)
		require.NoError(t, err)
		conns <- conn
	}))
	return srv, conns
}

func TestConnect_MissingConnIDIsFatal(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer srv.Close()

	token := domain.ProxyToken{Token: "secret"}
	_, err := Connect(context.Background(), "http://"+srv.Listener.Addr().String(), token, &recordingDispatcher{}, 45*time.Second, testLogger())
	require.Error(t, err)

	var sessErr *domain.SessionError
	require.ErrorAs(t, err, &sessErr)
	assert.Equal(t, domain.SessionErrHandshake, sessErr.Kind)
}

func TestSession_DecodesBinaryFramesAndDispatches(t *testing.T) {
	srv, conns := newEchoServer(t, "conn-123")
	defer srv.Close()

	dispatcher := &recordingDispatcher{}
	token := domain.ProxyToken{Token: "secret"}
	sess, err := Connect(context.Background(), "http://"+srv.Listener.Addr().String(), token, dispatcher, 45*time.Second, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "conn-123", sess.ConnID())

	serverConn := <-conns

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()

	frame := encodeInvokeProxyRequest(t, domain.OpId{}, "ds-1", []byte("payload"))
	require.NoError(t, serverConn.WriteMessage(websocket.BinaryMessage, frame))

	require.Eventually(t, func() bool { return dispatcher.count() >= 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.False(t, sess.IsOpen())
}

func TestSession_PublishDrainsToTransport(t *testing.T) {
	srv, conns := newEchoServer(t, "conn-456")
	defer srv.Close()

	dispatcher := &recordingDispatcher{}
	token := domain.ProxyToken{Token: "secret"}
	sess, err := Connect(context.Background(), "http://"+srv.Listener.Addr().String(), token, dispatcher, 45*time.Second, testLogger())
	require.NoError(t, err)

	serverConn := <-conns

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sess.Run(ctx)

	opID := domain.OpId{}
	sess.Publish(domain.InvokeProxyResponseMessage(opID, []byte("payload")))

	serverConn.SetReadDeadline(time.Now().Add(time.Second))
	mt, data, err := serverConn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.NotEmpty(t, data)
}

func TestSession_KeepAlivePingsAfterInactivity(t *testing.T) {
	srv, conns := newEchoServer(t, "conn-ping")
	defer srv.Close()

	dispatcher := &recordingDispatcher{}
	token := domain.ProxyToken{Token: "secret"}
	inactivity := 40 * time.Millisecond
	sess, err := Connect(context.Background(), "http://"+srv.Listener.Addr().String(), token, dispatcher, inactivity, testLogger())
	require.NoError(t, err)

	serverConn := <-conns

	pings := make(chan string, 4)
	serverConn.SetPingHandler(func(appData string) error {
		pings <- appData
		return nil
	})
	go func() {
		for {
			if _, _, err := serverConn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		sess.Run(ctx)
		close(done)
	}()

	select {
	case payload := <-pings:
		assert.Equal(t, "ping", payload)
	case <-time.After(time.Second):
		t.Fatal("expected a keep-alive ping after the inactivity timeout elapsed")
	}

	cancel()
	<-done
}

func TestSession_PublishAfterCloseIsNoop(t *testing.T) {
	srv, conns := newEchoServer(t, "conn-789")
	defer srv.Close()

	dispatcher := &recordingDispatcher{}
	token := domain.ProxyToken{Token: "secret"}
	sess, err := Connect(context.Background(), "http://"+srv.Listener.Addr().String(), token, dispatcher, 45*time.Second, testLogger())
	require.NoError(t, err)
	<-conns

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sess.Run(ctx)

	assert.False(t, sess.IsOpen())
	sess.Publish(domain.InvokeProxyResponseMessage(domain.OpId{}, []byte("dropped")))
	assert.Equal(t, 0, sess.outbound.items.Len())
}
