//go:build integration

package state

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// getNATSURL returns the NATS URL from environment or default.
func getNATSURL() string {
	if url := os.Getenv("NATS_URL"); url != "" {
		return url
	}
	return nats.DefaultURL
}

func newTestNATSStore(t *testing.T, bucket string) *NATSStore {
	conn, err := nats.Connect(getNATSURL())
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := NewNATSStore(ctx, NATSStoreConfig{Conn: conn, Bucket: bucket})
	if err != nil {
		conn.Close()
		t.Fatalf("NewNATSStore failed: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
		conn.Close()
	})
	return store
}

func TestNATSStore_PutGetDelete(t *testing.T) {
	s := newTestNATSStore(t, "test-taskparty-kv")
	ctx := context.Background()

	if err := s.Put(ctx, "match.T.player.p1", []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, err := s.Get(ctx, "match.T.player.p1")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	if err := s.Delete(ctx, "match.T.player.p1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "match.T.player.p1"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNATSStore_Progress(t *testing.T) {
	ps := NewProgressStore(newTestNATSStore(t, "test-taskparty-progress"))
	ctx := context.Background()
	defer ps.Forget(ctx, "T2")

	if err := ps.Save(ctx, "T2", Progress{PlayerID: "p1", Completed: []string{"wires"}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	p, err := ps.Load(ctx, "T2", "p1")
	if err != nil || len(p.Completed) != 1 {
		t.Fatalf("Load = %+v, %v", p, err)
	}

	ids, err := ps.Players(ctx, "T2")
	if err != nil || len(ids) != 1 || ids[0] != "p1" {
		t.Errorf("Players = %v, %v", ids, err)
	}
}
