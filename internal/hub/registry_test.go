package hub

import (
	"errors"
	"sync"
	"testing"

	"github.com/sharecast/relay/internal/domain"
)

type fakeHandle struct {
	mu     sync.Mutex
	sent   [][]byte
	fail   bool
	closed bool
}

func (h *fakeHandle) TrySend(payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail {
		return errors.New("broken pipe")
	}
	h.sent = append(h.sent, payload)
	return nil
}

func (h *fakeHandle) Shutdown() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

func (h *fakeHandle) Close() {
	h.Shutdown()
}

func (h *fakeHandle) sentCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sent)
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func attach(t *testing.T, r *Registry, roomID domain.RoomID, id domain.Identity, host domain.Identity, maxViewers int) *fakeHandle {
	t.Helper()
	h := &fakeHandle{}
	err := r.Attach(roomID, &Session{Identity: id, Username: string(id), Handle: h}, host, maxViewers)
	if err != nil {
		t.Fatalf("Attach(%s): %v", id, err)
	}
	return h
}

func TestPresenceEcho(t *testing.T) {
	r := NewRegistry(2)
	attach(t, r, "room", "alice", "alice", 3)

	parts := r.Participants("room")
	if len(parts) != 1 || parts[0].Identity != "alice" {
		t.Fatalf("expected [alice], got %+v", parts)
	}

	r.Detach("room", "alice")
	if parts := r.Participants("room"); len(parts) != 0 {
		t.Fatalf("expected empty room, got %+v", parts)
	}
}

func TestDetachIsIdempotent(t *testing.T) {
	r := NewRegistry(2)
	attach(t, r, "room", "alice", "alice", 3)

	r.Detach("room", "alice")
	r.Detach("room", "alice")
	r.Detach("room", "ghost")
	r.Detach("no-such-room", "alice")
}

func TestViewerCapacityCheckAndSet(t *testing.T) {
	r := NewRegistry(2)
	host := domain.Identity("host")
	attach(t, r, "room", host, host, 2)
	attach(t, r, "room", "g1", host, 2)
	attach(t, r, "room", "g2", host, 2)

	err := r.Attach("room", &Session{Identity: "g3", Handle: &fakeHandle{}}, host, 2)
	if !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}

	// The host never consumes a viewer slot, and an attached viewer may
	// re-attach without hitting the cap.
	if err := r.Attach("room", &Session{Identity: "g1", Handle: &fakeHandle{}}, host, 2); err != nil {
		t.Fatalf("re-attach of g1: %v", err)
	}
}

func TestReattachForceClosesStaleHandle(t *testing.T) {
	r := NewRegistry(2)
	old := attach(t, r, "room", "alice", "alice", 3)

	fresh := &fakeHandle{}
	if err := r.Attach("room", &Session{Identity: "alice", Handle: fresh}, "alice", 3); err != nil {
		t.Fatalf("re-attach: %v", err)
	}
	if !old.isClosed() {
		t.Fatalf("expected stale handle to be closed")
	}
	if parts := r.Participants("room"); len(parts) != 1 {
		t.Fatalf("expected one participant after re-attach, got %+v", parts)
	}
}

func TestAttachEvictsPriorRoomPresence(t *testing.T) {
	r := NewRegistry(2)
	old := attach(t, r, "room-a", "alice", "alice", 3)

	fresh := &fakeHandle{}
	if err := r.Attach("room-b", &Session{Identity: "alice", Handle: fresh}, "alice", 3); err != nil {
		t.Fatalf("attach to second room: %v", err)
	}
	if r.Present("room-a", "alice") {
		t.Fatal("identity still present in the first room")
	}
	if !r.Present("room-b", "alice") {
		t.Fatal("identity missing from the new room")
	}
	if !old.isClosed() {
		t.Fatal("expected the displaced handle to be closed")
	}
	// The displaced connection's cleanup must not disturb the new entry.
	if r.DetachIf("room-a", "alice", old) {
		t.Fatal("stale cleanup detached something")
	}
	if !r.Present("room-b", "alice") {
		t.Fatal("new presence lost to the stale cleanup")
	}
}

func TestRefusedAttachEvictsNothing(t *testing.T) {
	r := NewRegistry(2)
	host := domain.Identity("host")
	old := attach(t, r, "room-a", "g1", "other-host", 3)
	attach(t, r, "room-b", host, host, 1)
	attach(t, r, "room-b", "g2", host, 1)

	err := r.Attach("room-b", &Session{Identity: "g1", Handle: &fakeHandle{}}, host, 1)
	if !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
	if !r.Present("room-a", "g1") || old.isClosed() {
		t.Fatal("refused join must leave the prior presence untouched")
	}
}

func TestDocChannelPresenceIsIndependent(t *testing.T) {
	r := NewRegistry(2)
	roomHandle := attach(t, r, "room-a", "alice", "alice", 3)
	docHandle := attach(t, r, "doc:d1", "alice", "", 0)

	if !r.Present("room-a", "alice") || !r.Present("doc:d1", "alice") {
		t.Fatal("room and document presence must coexist")
	}
	if roomHandle.isClosed() || docHandle.isClosed() {
		t.Fatal("neither namespace may evict the other")
	}

	// A second document attach does evict the first one.
	attach(t, r, "doc:d2", "alice", "", 0)
	if r.Present("doc:d1", "alice") || !docHandle.isClosed() {
		t.Fatal("second document attach must displace the first")
	}
	if !r.Present("room-a", "alice") {
		t.Fatal("room presence lost to a document attach")
	}
}

func TestLastDetachCascadeClears(t *testing.T) {
	r := NewRegistry(2)
	attach(t, r, "room", "alice", "alice", 3)

	if !r.TryAddPresenter("room", "alice", "alice", domain.ShareScreen) {
		t.Fatalf("TryAddPresenter failed")
	}
	r.AddSharedFile("room", domain.SharedFile{ID: "f1", Name: "deck.pdf"})
	r.SetDocument("room", "content")

	r.Detach("room", "alice")

	if got := r.Presenters("room"); len(got) != 0 {
		t.Fatalf("presenters not cleared: %+v", got)
	}
	if got := r.SharedFiles("room"); len(got) != 0 {
		t.Fatalf("shared files not cleared: %+v", got)
	}
	if _, ok := r.Document("room"); ok {
		t.Fatalf("document cache not cleared")
	}
}

func TestUnicastMiss(t *testing.T) {
	r := NewRegistry(2)
	h := attach(t, r, "room", "alice", "alice", 3)

	if r.Unicast("room", "nobody", "offer", []byte("{}")) {
		t.Fatalf("expected unicast to absent target to report not delivered")
	}
	if h.sentCount() != 0 {
		t.Fatalf("other connections must be unaffected by a unicast miss")
	}
	if !r.Unicast("room", "alice", "offer", []byte("{}")) {
		t.Fatalf("expected unicast to present target to succeed")
	}
}

func TestBroadcastExcludesAndAccumulatesFailures(t *testing.T) {
	r := NewRegistry(2)
	host := domain.Identity("host")
	sender := attach(t, r, "room", host, host, 3)
	ok := attach(t, r, "room", "g1", host, 3)

	broken := &fakeHandle{fail: true}
	if err := r.Attach("room", &Session{Identity: "g2", Handle: broken}, host, 3); err != nil {
		t.Fatalf("Attach g2: %v", err)
	}

	failed := r.Broadcast("room", "chat", []byte("{}"), host)
	if len(failed) != 1 || failed[0] != "g2" {
		t.Fatalf("expected [g2] failed, got %+v", failed)
	}
	if sender.sentCount() != 0 {
		t.Fatalf("excluded sender must not receive the broadcast")
	}
	if ok.sentCount() != 1 {
		t.Fatalf("expected g1 to receive exactly one message, got %d", ok.sentCount())
	}

	// Write failure must not evict the connection; its own read loop does.
	if !r.Present("room", "g2") {
		t.Fatalf("failed handle must stay attached")
	}
}
