package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"

	"overlay-builder/core"
	"overlay-builder/scene"
	"overlay-builder/stores/memory"

	socketio "github.com/zishang520/socket.io/v2/socket"
)

type fakeRegistry struct {
	mu      sync.Mutex
	touched []string
	err     error
}

func (f *fakeRegistry) ListRooms(ctx context.Context) ([]core.Room, error) {
	return nil, nil
}

func (f *fakeRegistry) TouchRoom(ctx context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, roomID)
	return f.err
}

func TestRoomTracking(t *testing.T) {
	reg := &fakeRegistry{}
	h := NewHub(reg, nil)
	defer h.Close()

	h.setRoomSize("project-a", 2)
	h.setRoomSize("project-b", 1)
	rooms := h.ActiveRooms()
	if rooms["project-a"] != 2 || rooms["project-b"] != 1 {
		t.Errorf("ActiveRooms() = %v", rooms)
	}

	// The returned map is a copy.
	rooms["project-a"] = 99
	if h.ActiveRooms()["project-a"] != 2 {
		t.Error("ActiveRooms() exposed internal map")
	}

	h.setRoomSize("project-a", 0)
	if _, ok := h.ActiveRooms()["project-a"]; ok {
		t.Error("empty room still listed")
	}
	if len(reg.touched) != 2 {
		t.Errorf("TouchRoom called %d times, want 2", len(reg.touched))
	}
}

func TestRoomTrackingRegistryError(t *testing.T) {
	h := NewHub(&fakeRegistry{err: errors.New("db down")}, nil)
	defer h.Close()

	h.setRoomSize("project-a", 1)
	if h.ActiveRooms()["project-a"] != 1 {
		t.Error("registry failure dropped the room")
	}
}

func TestSceneChangedWithoutClients(t *testing.T) {
	h := NewHub(nil, nil)
	defer h.Close()
	h.SceneChanged("project-a", []scene.Change{{Op: scene.OpAdd, IDs: []string{"rect-1"}}})
}

func TestExtractAck(t *testing.T) {
	var gotErr error
	var gotPayload map[string]any
	callback := func(err error, payload map[string]any) {
		gotErr = err
		gotPayload = payload
	}

	ack, args := extractAck([]any{"room", callback})
	if ack == nil {
		t.Fatal("extractAck() did not find callback")
	}
	if len(args) != 1 || args[0] != "room" {
		t.Errorf("args = %v", args)
	}

	ack(nil, map[string]any{"status": "ok"})
	if gotErr != nil || gotPayload["status"] != "ok" {
		t.Errorf("ack delivered err=%v payload=%v", gotErr, gotPayload)
	}

	if ack, args := extractAck([]any{"room", "data"}); ack != nil || len(args) != 2 {
		t.Error("extractAck() treated non-function as callback")
	}
	if ack, args := extractAck(nil); ack != nil || len(args) != 0 {
		t.Error("extractAck() on empty args")
	}
}

func TestWrapAckSingleParameter(t *testing.T) {
	var got any
	ack := wrapAck(func(v any) { got = v })

	ack(errors.New("boom"), map[string]any{"status": "error"})
	if err, ok := got.(error); !ok || err.Error() != "boom" {
		t.Errorf("single-param ack got %v, want error", got)
	}

	ack(nil, map[string]any{"status": "ok"})
	if m, ok := got.(map[string]any); !ok || m["status"] != "ok" {
		t.Errorf("single-param ack got %v, want payload", got)
	}
}

func TestParseBroadcastArgs(t *testing.T) {
	payload := map[string]any{"__collabMessageId": "m-1"}
	roomID, gotPayload, metadata, ack := parseBroadcastArgs([]any{"project-a", payload, "meta"})
	if roomID != "project-a" || metadata != "meta" || ack != nil {
		t.Errorf("parseBroadcastArgs() = %q, %v, %v", roomID, metadata, ack)
	}
	if gotPayload == nil {
		t.Error("payload lost")
	}

	if roomID, _, _, _ := parseBroadcastArgs([]any{"only-room"}); roomID != "" {
		t.Errorf("short args gave room %q", roomID)
	}
}

func TestMakeBroadcastAckPayload(t *testing.T) {
	ok := makeBroadcastAckPayload(map[string]any{"__collabMessageId": "m-1"}, nil)
	if ok["status"] != "ok" || ok["messageId"] != "m-1" {
		t.Errorf("ok payload = %v", ok)
	}

	failed := makeBroadcastAckPayload("plain", errors.New("nope"))
	if failed["status"] != "error" || failed["error"] != "nope" {
		t.Errorf("error payload = %v", failed)
	}
	if _, has := failed["messageId"]; has {
		t.Error("messageId set for payload without id")
	}
}

func TestTokenFrom(t *testing.T) {
	tests := []struct {
		name string
		hs   *socketio.Handshake
		want string
	}{
		{"nil handshake", nil, ""},
		{"auth payload", &socketio.Handshake{Auth: map[string]any{"token": "from-auth"}}, "from-auth"},
		{"query fallback", &socketio.Handshake{Query: map[string][]string{"token": {"from-query"}}}, "from-query"},
		{"auth wins", &socketio.Handshake{
			Auth:  map[string]any{"token": "from-auth"},
			Query: map[string][]string{"token": {"from-query"}},
		}, "from-auth"},
		{"missing", &socketio.Handshake{Auth: map[string]any{"other": 1}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tokenFrom(tt.hs); got != tt.want {
				t.Errorf("tokenFrom() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthorizeRoom(t *testing.T) {
	store := memory.NewStore(10)
	if err := store.Save(context.Background(), &core.Project{ID: "p1", UserID: "owner", Name: "Overlay"}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	h := NewHub(nil, store)
	defer h.Close()

	if err := h.authorizeRoom(context.Background(), "owner", "p1"); err != nil {
		t.Errorf("owner denied: %v", err)
	}
	if err := h.authorizeRoom(context.Background(), "intruder", "p1"); err == nil {
		t.Error("foreign user allowed into room")
	}
	if err := h.authorizeRoom(context.Background(), "owner", "missing"); err == nil {
		t.Error("missing project allowed")
	}

	open := NewHub(nil, nil)
	defer open.Close()
	if err := open.authorizeRoom(context.Background(), "anyone", "p1"); err != nil {
		t.Errorf("hub without store denied: %v", err)
	}
}
