package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"neocore/internal/console"
)

// pumpingQueue runs submitted lines straight through a console, standing in
// for the engine goroutine.
type pumpingQueue struct {
	console *console.Console
}

func (q pumpingQueue) Submit(_ context.Context, line string) (console.ExecResponse, error) {
	return q.console.Exec(line), nil
}

type stalledQueue struct{}

func (stalledQueue) Submit(ctx context.Context, _ string) (console.ExecResponse, error) {
	<-ctx.Done()
	return console.ExecResponse{}, ctx.Err()
}

func dial(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewMux(h))
	t.Cleanup(srv.Close)

	parsed, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("failed to parse test server url: %v", err)
	}
	parsed.Scheme = "ws"
	parsed.Path = Path

	conn, resp, err := websocket.DefaultDialer.Dial(parsed.String(), nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, line string) Reply {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		t.Fatalf("write %q: %v", line, err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read reply to %q: %v", line, err)
	}
	var reply Reply
	if err := json.Unmarshal(payload, &reply); err != nil {
		t.Fatalf("decode reply %q: %v", payload, err)
	}
	return reply
}

func TestHandleRunsLinesThroughConsole(t *testing.T) {
	c := console.New(console.Options{})
	conn := dial(t, NewHandler(pumpingQueue{console: c}, HandlerConfig{}))

	first := roundTrip(t, conn, "help")
	if !first.OK || first.Output == "" {
		t.Fatalf("expected help output, got %+v", first)
	}
	if first.Session == "" {
		t.Fatalf("expected a session id")
	}

	second := roundTrip(t, conn, "nope")
	if second.OK || second.Error == "" {
		t.Fatalf("expected an error reply, got %+v", second)
	}
	if second.Session != first.Session {
		t.Fatalf("expected a stable session id, got %q then %q", first.Session, second.Session)
	}
	if got := c.History(); len(got) != 2 {
		t.Fatalf("expected both lines in history, got %v", got)
	}
}

func TestHandleTimesOutWhenEngineStalls(t *testing.T) {
	conn := dial(t, NewHandler(stalledQueue{}, HandlerConfig{ReplyTimeout: 20 * time.Millisecond}))
	reply := roundTrip(t, conn, "help")
	if reply.OK || reply.Error != "engine did not answer in time" {
		t.Fatalf("expected timeout reply, got %+v", reply)
	}
}

func TestHandleWithRealQueue(t *testing.T) {
	c := console.New(console.Options{})
	q := console.NewQueue(4)
	conn := dial(t, NewHandler(q, HandlerConfig{}))

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				q.Pump(4, c.Exec)
			}
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	reply := roundTrip(t, conn, "quit")
	if !reply.OK || reply.Output != "exit requested" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if !c.TakeExitRequested() {
		t.Fatalf("expected quit to reach the console")
	}
}
