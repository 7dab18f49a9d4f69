package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"cinegen-server/modules/common/model"
	"cinegen-server/modules/workflow"
)

var errUnknown = errors.New("unknown session")

func lookupFor(states map[string]workflow.State) Lookup {
	return func(_ context.Context, id string) (workflow.State, error) {
		st, ok := states[id]
		if !ok {
			return workflow.State{}, errUnknown
		}
		return st, nil
	}
}

func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?session=" + session
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_InitialStateAndPublish(t *testing.T) {
	hub := NewHub(lookupFor(map[string]workflow.State{"s1": workflow.Initial()}), "*")
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, srv, "s1")

	first := readMessage(t, conn)
	if first.Type != "state" || first.SessionID != "s1" || first.State == nil {
		t.Fatalf("unexpected initial message: %+v", first)
	}
	if first.State.Step != model.StepIntakeImage || first.State.StepLabel != "Visual Style" {
		t.Errorf("initial view = %+v", first.State)
	}

	waitFor(t, func() bool { return hub.Metrics().ActiveConnections == 1 })

	next, err := workflow.SubmitVisualStyle(workflow.Initial(), model.VisualStyleTemplate{ArtStyle: "noir"})
	if err != nil {
		t.Fatal(err)
	}
	hub.Publish("s1", next)
	hub.Publish("other", next)

	pushed := readMessage(t, conn)
	if pushed.State == nil || pushed.State.Step != model.StepIntakeScript || pushed.State.VisualStyle.ArtStyle != "noir" {
		t.Errorf("pushed view = %+v", pushed.State)
	}
}

func TestHub_RequestState(t *testing.T) {
	hub := NewHub(lookupFor(map[string]workflow.State{"s1": workflow.Initial()}), "*")
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, srv, "s1")
	readMessage(t, conn)

	if err := conn.WriteJSON(map[string]string{"type": "request_state"}); err != nil {
		t.Fatal(err)
	}
	msg := readMessage(t, conn)
	if msg.Type != "state" || msg.State == nil {
		t.Errorf("unexpected reply: %+v", msg)
	}
}

func TestHub_RejectsUnknownSession(t *testing.T) {
	hub := NewHub(lookupFor(nil), "*")

	rec := httptest.NewRecorder()
	hub.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws?session=ghost", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	hub.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHub_RoomRemovedWhenLastClientLeaves(t *testing.T) {
	hub := NewHub(lookupFor(map[string]workflow.State{"s1": workflow.Initial()}), "*")
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, srv, "s1")
	readMessage(t, conn)
	waitFor(t, func() bool { return hub.Metrics().ActiveRooms == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.Metrics().ActiveRooms == 0 })
	if hub.Metrics().TotalConnections != 1 {
		t.Errorf("total connections = %d", hub.Metrics().TotalConnections)
	}
}

func TestHub_CloseSession(t *testing.T) {
	hub := NewHub(lookupFor(map[string]workflow.State{"s1": workflow.Initial()}), "*")
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	conn := dial(t, srv, "s1")
	readMessage(t, conn)
	waitFor(t, func() bool { return hub.Metrics().ActiveConnections == 1 })

	hub.CloseSession("s1")
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to be closed")
	}
}

func TestMessageEncoding(t *testing.T) {
	data, err := stateMessage("s1", workflow.Initial())
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	state := raw["state"].(map[string]any)
	if _, ok := state["scenes"].([]any); !ok {
		t.Errorf("scenes should encode as an empty list, got %v", state["scenes"])
	}
	if state["isProcessing"] != false {
		t.Errorf("isProcessing = %v", state["isProcessing"])
	}
}

func TestHub_CommitDuringConnectIsNotLost(t *testing.T) {
	script, err := workflow.SubmitVisualStyle(workflow.Initial(), model.VisualStyleTemplate{ArtStyle: "noir"})
	if err != nil {
		t.Fatal(err)
	}
	configure, err := workflow.SubmitScriptStyle(script, model.ScriptStyleTemplate{NarrativeTone: "wry"})
	if err != nil {
		t.Fatal(err)
	}

	t.Run("commit before the client joins", func(t *testing.T) {
		var hub *Hub
		calls := 0
		hub = NewHub(func(context.Context, string) (workflow.State, error) {
			calls++
			if calls == 1 {
				// lands after the existence check, before the client is registered
				hub.Publish("s1", script)
				return workflow.Initial(), nil
			}
			return script, nil
		}, "*")
		srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
		defer srv.Close()

		msg := readMessage(t, dial(t, srv, "s1"))
		if msg.State == nil || msg.State.Step != model.StepIntakeScript {
			t.Errorf("client started from a stale state: %+v", msg.State)
		}
	})

	t.Run("commit after the snapshot is read", func(t *testing.T) {
		var hub *Hub
		calls := 0
		hub = NewHub(func(context.Context, string) (workflow.State, error) {
			calls++
			if calls == 2 {
				hub.Publish("s1", configure)
			}
			return script, nil
		}, "*")
		srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
		defer srv.Close()

		conn := dial(t, srv, "s1")
		msg := readMessage(t, conn)
		if msg.State == nil || msg.State.Step != model.StepConfigureProject {
			t.Fatalf("expected the published commit, got %+v", msg.State)
		}

		// the older snapshot must not follow the newer commit
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		var extra Message
		if err := conn.ReadJSON(&extra); err == nil {
			t.Errorf("unexpected message after the commit: %+v", extra.State)
		}
	})
}
