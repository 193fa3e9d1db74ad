package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/letterpet/client-go/internal/wire"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// acceptFunc runs one server-side websocket session per request.
type acceptFunc func(ctx context.Context, r *http.Request, ws *websocket.Conn)

func newSocketServer(t *testing.T, fn acceptFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			t.Errorf("accept failed: %v", err)
			return
		}
		fn(r.Context(), r, ws)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialSendsUsernameQueryParam(t *testing.T) {
	t.Parallel()

	gotUser := make(chan string, 1)
	srv := newSocketServer(t, func(ctx context.Context, r *http.Request, ws *websocket.Conn) {
		gotUser <- r.URL.Query().Get("username")
		_ = ws.Close(websocket.StatusNormalClosure, "done")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, wsURL(srv), "alice")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()

	select {
	case u := <-gotUser:
		if u != "alice" {
			t.Errorf("expected username alice, got %q", u)
		}
	case <-ctx.Done():
		t.Fatal("server never saw the handshake")
	}
}

func TestDialFailureMeansNeverEstablished(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no socket here", http.StatusNotFound)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Dial(ctx, wsURL(srv), "alice"); err == nil {
		t.Fatal("expected dial error against a non-upgrading endpoint")
	}
}

func TestMessageRoundTripOverLoopback(t *testing.T) {
	t.Parallel()

	// The server decodes the outbound request and pushes it back as a
	// NewMessage event, the way the real backend relays messages.
	srv := newSocketServer(t, func(ctx context.Context, r *http.Request, ws *websocket.Conn) {
		_, frame, err := ws.Read(ctx)
		if err != nil {
			return
		}
		req, err := wire.DecodeMessageRequest(frame)
		if err != nil {
			t.Errorf("server decode failed: %v", err)
			return
		}
		out, err := wire.EncodeServerEvent(&wire.ServerEvent{
			Type: wire.EventNewMessage,
			Message: &wire.MessageWire{
				Text:      req.Text,
				ChatID:    req.ChatID,
				Username:  r.URL.Query().Get("username"),
				ID:        "m1",
				Timestamp: time.Now().UnixMilli(),
			},
		})
		if err != nil {
			t.Errorf("server encode failed: %v", err)
			return
		}
		if err := ws.Write(ctx, websocket.MessageText, out); err != nil {
			t.Errorf("server write failed: %v", err)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, wsURL(srv), "alice")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer func() { _ = conn.Close() }()

	frame, err := wire.EncodeMessageRequest("hi", "c1")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := conn.Send(ctx, frame); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	for inbound := range conn.Frames(ctx) {
		ev, err := wire.DecodeServerEvent(inbound)
		if err != nil {
			t.Fatalf("decode event failed: %v", err)
		}
		if ev.Type != wire.EventNewMessage {
			t.Fatalf("expected NewMessage, got %q", ev.Type)
		}
		if ev.Message.Text != "hi" || ev.Message.ChatID != "c1" || ev.Message.Username != "alice" {
			t.Errorf("round trip mismatch: %+v", ev.Message)
		}
		return
	}
	t.Fatal("connection ended before the echoed event arrived")
}

func TestServerDropEmitsSingleDisconnected(t *testing.T) {
	t.Parallel()

	srv := newSocketServer(t, func(ctx context.Context, r *http.Request, ws *websocket.Conn) {
		// Abrupt teardown, no close handshake.
		_ = ws.CloseNow()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, wsURL(srv), "alice")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	for range conn.Frames(ctx) {
		t.Fatal("no frames expected")
	}

	select {
	case ev := <-conn.Lifecycle():
		if ev.Kind != Disconnected {
			t.Errorf("expected Disconnected, got %v", ev.Kind)
		}
		if ev.Cause == nil {
			t.Error("expected a cause on Disconnected")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no lifecycle event emitted")
	}

	// The notification is terminal and must not repeat.
	select {
	case ev := <-conn.Lifecycle():
		t.Errorf("unexpected second lifecycle event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseEmitsClosedNormallyExactlyOnce(t *testing.T) {
	t.Parallel()

	srv := newSocketServer(t, func(ctx context.Context, r *http.Request, ws *websocket.Conn) {
		// Hold the session open until the client closes.
		_, _, _ = ws.Read(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, wsURL(srv), "alice")
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		for range conn.Frames(ctx) {
			t.Error("no frames expected")
		}
		close(done)
	}()

	if err := conn.Close(); err != nil {
		t.Logf("close returned %v", err)
	}

	select {
	case ev := <-conn.Lifecycle():
		if ev.Kind != ClosedNormally {
			t.Errorf("expected ClosedNormally, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no lifecycle event emitted")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("frame stream did not terminate after close")
	}

	select {
	case ev := <-conn.Lifecycle():
		t.Errorf("unexpected second lifecycle event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
