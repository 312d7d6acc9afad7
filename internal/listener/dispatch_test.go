package listener

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"escrowScope/internal/model"
	"escrowScope/internal/storage"
)

type recordingApplier struct {
	mu     sync.Mutex
	order  map[string][]string
	failOn string
}

func newRecordingApplier() *recordingApplier {
	return &recordingApplier{order: make(map[string][]string)}
}

func (a *recordingApplier) Apply(_ context.Context, ev model.Event) (storage.Result, error) {
	time.Sleep(time.Duration(rand.Intn(200)) * time.Microsecond)
	meta := ev.Meta()
	if meta.Ref == a.failOn {
		return storage.Applied, errors.New("connection reset")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.order[meta.EscrowID] = append(a.order[meta.EscrowID], meta.Ref)
	return storage.Applied, nil
}

func (a *recordingApplier) refs(escrow string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.order[escrow]...)
}

func accepted(escrow, ref string) model.Event {
	return model.Accepted{EventMeta: model.EventMeta{Chain: model.ChainBase, EscrowID: escrow, Ref: ref}}
}

func TestDispatcherKeepsPerEscrowOrder(t *testing.T) {
	applier := newRecordingApplier()
	d := NewDispatcher(applier, 4, 8, nil, nil)
	defer d.Close()

	var (
		events []model.Event
		want   = make(map[string][]string)
	)
	for i := 0; i < 50; i++ {
		for _, escrow := range []string{"1", "2", "3", "4", "5"} {
			ref := fmt.Sprintf("%s-%02d", escrow, i)
			events = append(events, accepted(escrow, ref))
			want[escrow] = append(want[escrow], ref)
		}
	}

	if err := d.Apply(context.Background(), events); err != nil {
		t.Fatalf("apply: %v", err)
	}
	for escrow, refs := range want {
		if got := applier.refs(escrow); !reflect.DeepEqual(got, refs) {
			t.Fatalf("escrow %s order mismatch:\n got %v\nwant %v", escrow, got, refs)
		}
	}
}

func TestDispatcherFailureDoesNotStopBatch(t *testing.T) {
	applier := newRecordingApplier()
	applier.failOn = "b-1"
	d := NewDispatcher(applier, 2, 1, nil, nil)
	defer d.Close()

	events := []model.Event{accepted("a", "a-1"), accepted("b", "b-1"), accepted("c", "c-1")}
	err := d.Apply(context.Background(), events)
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if got := applier.refs("a"); len(got) != 1 {
		t.Fatalf("sibling event not applied: %v", got)
	}
	if got := applier.refs("c"); len(got) != 1 {
		t.Fatalf("sibling event not applied: %v", got)
	}
}
