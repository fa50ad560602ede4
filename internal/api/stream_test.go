package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/watermon/internal/access"
	"github.com/AaronLay10/watermon/internal/events"
)

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

func dialWS(t *testing.T, serverURL string, header http.Header) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("failed to connect (status %d): %v", status, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) events.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var m events.Message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	return m
}

func basicHeader(user, pass string) http.Header {
	req := httptest.NewRequest("GET", "/", nil)
	req.SetBasicAuth(user, pass)
	return http.Header{"Authorization": req.Header["Authorization"]}
}

func TestWebSocketAdminGreeting(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	server := httptest.NewServer(env.handler)
	defer server.Close()

	conn := dialWS(t, server.URL, nil)

	if m := readMessage(t, conn); m.Type != events.TypeConnected {
		t.Errorf("expected connected, got %s", m.Type)
	}
	if m := readMessage(t, conn); m.Type != events.TypeSystemUpdate {
		t.Errorf("expected system_update, got %s", m.Type)
	}

	waitFor(t, time.Second, func() bool { return env.hub.SubscriberCount() == 1 }, "subscriber registered")

	if err := env.hub.Broadcast(events.AlertsResolved(env.manager.View(access.Admin("a")))); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if m := readMessage(t, conn); m.Type != events.TypeAlertsResolved {
		t.Errorf("expected alerts_resolved, got %s", m.Type)
	}
}

func TestWebSocketMechanicScoped(t *testing.T) {
	env := newTestEnv(t, testAccounts(t), nil)
	server := httptest.NewServer(env.handler)
	defer server.Close()

	conn := dialWS(t, server.URL, basicHeader("M002", "m2pass"))
	if m := readMessage(t, conn); m.Type != events.TypeConnected {
		t.Fatalf("expected connected, got %s", m.Type)
	}
	waitFor(t, time.Second, func() bool { return env.hub.SubscriberCount() == 1 }, "subscriber registered")

	// First leak goes to M001, second to M002. The mechanic stream
	// carries only M002's notice.
	env.leak("S3-TAP1", "S4-TAP2")

	m := readMessage(t, conn)
	if m.Type != events.TypeMechanicUpdate || m.MechanicID != "M002" {
		t.Fatalf("expected mechanic_update for M002, got %s/%s", m.Type, m.MechanicID)
	}
	data, _ := m.Data.(map[string]any)
	if data["type"] != events.NoticeNewAssignment {
		t.Errorf("notice type = %v", data["type"])
	}
}

func TestWebSocketRequiresAuth(t *testing.T) {
	env := newTestEnv(t, testAccounts(t), nil)
	server := httptest.NewServer(env.handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail without credentials")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %v", resp)
	}
}

func TestWebSocketKeepalive(t *testing.T) {
	env := newTestEnv(t, nil, func(o *Options) { o.Keepalive = 50 * time.Millisecond })
	server := httptest.NewServer(env.handler)
	defer server.Close()

	conn := dialWS(t, server.URL, nil)
	readMessage(t, conn) // connected
	readMessage(t, conn) // system_update

	if m := readMessage(t, conn); m.Type != events.TypePing {
		t.Errorf("expected ping, got %s", m.Type)
	}
}

func TestWebSocketClosedOnShutdown(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	server := httptest.NewServer(env.handler)
	defer server.Close()

	conn := dialWS(t, server.URL, nil)
	readMessage(t, conn)
	readMessage(t, conn)
	waitFor(t, time.Second, func() bool { return env.hub.SubscriberCount() == 1 }, "subscriber registered")

	env.hub.CloseAll()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
	waitFor(t, time.Second, func() bool { return env.hub.SubscriberCount() == 0 }, "subscriber removed")
}

func TestWebSocketDisconnectUnsubscribes(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	server := httptest.NewServer(env.handler)
	defer server.Close()

	conn := dialWS(t, server.URL, nil)
	readMessage(t, conn)
	waitFor(t, time.Second, func() bool { return env.hub.SubscriberCount() == 1 }, "subscriber registered")

	conn.Close()
	waitFor(t, 2*time.Second, func() bool { return env.hub.SubscriberCount() == 0 }, "subscriber removed")
}

func TestSSEStream(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	server := httptest.NewServer(env.handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/stream")
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "data: ") {
				lines <- strings.TrimPrefix(line, "data: ")
			}
		}
		close(lines)
	}()

	next := func() events.Message {
		t.Helper()
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream ended")
			}
			var m events.Message
			if err := json.Unmarshal([]byte(line), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			return m
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for event")
		}
		return events.Message{}
	}

	if m := next(); m.Type != events.TypeConnected {
		t.Errorf("expected connected, got %s", m.Type)
	}
	if m := next(); m.Type != events.TypeSystemUpdate {
		t.Errorf("expected system_update, got %s", m.Type)
	}

	waitFor(t, time.Second, func() bool { return env.hub.SubscriberCount() == 1 }, "subscriber registered")
	if _, err := env.manager.Simulate(access.Admin("a"), "TANK-S1", true); err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[next().Type] = true
	}
	if !seen[events.TypeLeakDetected] || !seen[events.TypeMechanicUpdate] {
		t.Errorf("expected leak_detected and mechanic_update, got %v", seen)
	}
}
