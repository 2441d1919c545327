package hub

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sharecast/relay/internal/domain"
)

func TestPresenterLimitUnderConcurrency(t *testing.T) {
	const attempts = 8
	r := NewRegistry(2)
	host := domain.Identity("host")
	attach(t, r, "room", host, host, attempts)
	for i := 0; i < attempts; i++ {
		id := domain.Identity(fmt.Sprintf("user-%d", i))
		attach(t, r, "room", id, host, attempts)
	}

	var admitted, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := domain.Identity(fmt.Sprintf("user-%d", i))
			if r.TryAddPresenter("room", id, string(id), domain.ShareScreen) {
				admitted.Add(1)
			} else {
				rejected.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if admitted.Load() != 2 {
		t.Fatalf("expected exactly 2 admitted, got %d", admitted.Load())
	}
	if rejected.Load() != attempts-2 {
		t.Fatalf("expected %d rejected, got %d", attempts-2, rejected.Load())
	}
	if got := r.Presenters("room"); len(got) != 2 {
		t.Fatalf("presenter set overshot the limit: %+v", got)
	}
}

func TestPresenterUpdateDoesNotConsumeSlot(t *testing.T) {
	r := NewRegistry(2)
	attach(t, r, "room", "a", "a", 5)

	if !r.TryAddPresenter("room", "a", "a", domain.ShareScreen) {
		t.Fatalf("first add failed")
	}
	if !r.TryAddPresenter("room", "a", "a", domain.ShareCamera) {
		t.Fatalf("update of an existing presenter must be allowed")
	}

	got := r.Presenters("room")
	if len(got) != 1 || got[0].Kind != domain.ShareCamera {
		t.Fatalf("expected one camera presenter, got %+v", got)
	}
}

func TestRemovePresenterIdempotent(t *testing.T) {
	r := NewRegistry(2)
	attach(t, r, "room", "a", "a", 5)
	r.TryAddPresenter("room", "a", "a", domain.ShareScreen)

	r.RemovePresenter("room", "a")
	r.RemovePresenter("room", "a")
	r.RemovePresenter("room", "ghost")

	if got := r.Presenters("room"); len(got) != 0 {
		t.Fatalf("expected empty presenter set, got %+v", got)
	}
}

func TestDetachRemovesPresenter(t *testing.T) {
	r := NewRegistry(2)
	host := domain.Identity("host")
	attach(t, r, "room", host, host, 5)
	attach(t, r, "room", "a", host, 5)
	r.TryAddPresenter("room", "a", "a", domain.ShareScreen)

	r.Detach("room", "a")

	if got := r.Presenters("room"); len(got) != 0 {
		t.Fatalf("detach must cascade presenter removal, got %+v", got)
	}
}
