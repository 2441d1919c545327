package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sharecast/relay/internal/config"
	"github.com/sharecast/relay/internal/gate"
	"github.com/sharecast/relay/internal/hub"
	"github.com/sharecast/relay/internal/service"
	"github.com/sharecast/relay/internal/state"
)

func TestDocUnknownIDRefused(t *testing.T) {
	f := newFixture(t)
	ws := f.dialDoc(t, "no-such-doc", memberToken(t, "u1", "alice"))
	expectRefusal(t, ws, CloseNotFound)
}

func TestDocContentSync(t *testing.T) {
	f := newFixture(t)
	f.docs.Put("doc-1", "hello world")

	a := f.dialDoc(t, "doc-1", memberToken(t, "u1", "alice"))
	st := expect(t, a, TypeDocState)
	if st["content"] != "hello world" || st["doc_id"] != "doc-1" {
		t.Fatalf("doc_state %v", st)
	}

	b := f.dialDoc(t, "doc-1", memberToken(t, "u2", "bob"))
	expect(t, b, TypeDocState)
	expect(t, a, TypeUserJoined)

	// Edits fan out to everyone but the author.
	send(t, a, map[string]any{"type": TypeContentUpdate, "content": "hello go"})
	ev := expect(t, b, TypeContentUpdate)
	if ev["content"] != "hello go" || ev["user_id"] != "u1" {
		t.Fatalf("content_update %v", ev)
	}
	expectNone(t, a, TypeContentUpdate)

	// Cursors carry position and author.
	send(t, b, map[string]any{"type": TypeCursorUpdate, "x": 0.25, "y": 0.5})
	cur := expect(t, a, TypeCursorUpdate)
	if cur["username"] != "bob" || cur["x"] != 0.25 {
		t.Fatalf("cursor_update %v", cur)
	}

	// Save flushes the latest cached content and acknowledges to everyone,
	// the saver included.
	send(t, b, map[string]any{"type": TypeSave})
	for _, ws := range []*websocket.Conn{a, b} {
		saved := expect(t, ws, TypeSaved)
		if saved["doc_id"] != "doc-1" {
			t.Fatalf("saved %v", saved)
		}
	}
	content, err := f.docs.Load(context.Background(), "doc-1")
	if err != nil || content != "hello go" {
		t.Fatalf("persisted content %q, err %v", content, err)
	}
}

func TestDocLateJoinerSeesUnsavedEdits(t *testing.T) {
	f := newFixture(t)
	f.docs.Put("doc-2", "v1")

	a := f.dialDoc(t, "doc-2", memberToken(t, "u1", "alice"))
	expect(t, a, TypeDocState)
	send(t, a, map[string]any{"type": TypeContentUpdate, "content": "v2 unsaved"})

	// The read loop handles one frame at a time, so a pong guarantees the
	// edit was applied.
	send(t, a, map[string]any{"type": TypePing})
	expect(t, a, TypePong)

	// The edit never hit the store, but the echo cache serves it to the
	// late joiner.
	if content, err := f.docs.Load(context.Background(), "doc-2"); err != nil || content != "v1" {
		t.Fatalf("store content %q, err %v", content, err)
	}

	b := f.dialDoc(t, "doc-2", memberToken(t, "u2", "bob"))
	st := expect(t, b, TypeDocState)
	if st["content"] != "v2 unsaved" {
		t.Fatalf("late joiner content %v", st["content"])
	}
}

func TestDocRoomOnlyTypesAreUngoverned(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.Rate.Chat = config.BucketLimits{Limit: 1, Window: time.Minute, BurstLimit: 1, BurstWindow: time.Second}
	store := state.NewMemoryStore(time.Hour, time.Hour)
	docs := service.NewDocs()
	docs.Put("doc-9", "seed")
	g := gate.New(gate.NewHMACVerifier(testSecret), store, service.NewRooms())
	ctl := NewDocController(hub.NewRegistry(2), g, NewGovernor(cfg.Rate), docs, store, cfg)

	router := gin.New()
	router.GET("/ws/doc/:doc_id", func(c *gin.Context) { ctl.Handle(c.Request.Context(), c) })
	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/doc/doc-9?token=" + memberToken(t, "u1", "alice")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	expect(t, ws, TypeDocState)

	// Chat is a room-only type here: dropped as unknown, never admitted
	// against the tight chat budget, so no rate-limit reply comes back.
	for i := 0; i < 3; i++ {
		send(t, ws, map[string]any{"type": TypeChat, "message": "hi"})
	}
	expectNone(t, ws, TypeRateLimited)

	// Governed document types still flow.
	send(t, ws, map[string]any{"type": TypeContentUpdate, "content": "edited"})
	send(t, ws, map[string]any{"type": TypeSave})
	saved := expect(t, ws, TypeSaved)
	if saved["doc_id"] != "doc-9" {
		t.Fatalf("saved %v", saved)
	}
}

func TestDocPingPong(t *testing.T) {
	f := newFixture(t)
	f.docs.Put("doc-3", "")

	a := f.dialDoc(t, "doc-3", memberToken(t, "u1", "alice"))
	expect(t, a, TypeDocState)
	send(t, a, map[string]any{"type": TypePing})
	expect(t, a, TypePong)
}
