package sync

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func startTCP(t *testing.T, hub *Hub) (*Server, string) {
	t.Helper()
	verify := func(token string) (string, error) {
		if token == "good" {
			return "u1", nil
		}
		return "", errors.New("bad token")
	}
	srv := NewServer("127.0.0.1:0", hub, verify)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Close() })
	return srv, ln.Addr().String()
}

func readLine(t *testing.T, conn net.Conn, r *bufio.Reader) string {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return strings.TrimSpace(line)
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for hub.Stats().TCPClients != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d tcp clients, have %+v", n, hub.Stats())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTCPServerStreamsAfterAuth(t *testing.T) {
	hub := NewHub()
	_, addr := startTCP(t, hub)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	if _, err := conn.Write([]byte(`{"type":"auth","token":"good"}` + "\n")); err != nil {
		t.Fatal(err)
	}
	if line := readLine(t, conn, r); !strings.Contains(line, `"welcome"`) || !strings.Contains(line, `"u1"`) {
		t.Fatalf("welcome: %s", line)
	}
	waitForClients(t, hub, 1)

	hub.Publish(ChangeEvent{Type: EventAnimeChange, UID: "u1", DocID: "a1", Seq: 7, Doc: json.RawMessage(`{"id":"a1"}`)})
	var ev ChangeEvent
	if err := json.Unmarshal([]byte(readLine(t, conn, r)), &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Seq != 7 || ev.DocID != "a1" {
		t.Fatalf("event %+v", ev)
	}

	_ = conn.Close()
	waitForClients(t, hub, 0)
}

func TestTCPServerRejectsBadToken(t *testing.T) {
	hub := NewHub()
	_, addr := startTCP(t, hub)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	_, _ = conn.Write([]byte(`{"type":"auth","token":"nope"}` + "\n"))
	if line := readLine(t, conn, r); !strings.Contains(line, "invalid token") {
		t.Fatalf("expected rejection, got %s", line)
	}
	if hub.Stats().TCPClients != 0 {
		t.Fatal("rejected client was registered")
	}
}

func TestTCPServerCloseDisconnectsClients(t *testing.T) {
	hub := NewHub()
	srv, addr := startTCP(t, hub)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	_, _ = conn.Write([]byte(`{"type":"auth","token":"good"}` + "\n"))
	readLine(t, conn, r)

	if err := srv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := r.ReadString('\n'); err == nil {
		t.Fatal("connection still open after Close")
	}
}
