package game

import (
	"context"
	"testing"
	"time"

	"github.com/vinayprograms/taskparty/channel"
	"github.com/vinayprograms/taskparty/client"
	"github.com/vinayprograms/taskparty/task"
	"github.com/vinayprograms/taskparty/transport"
)

// skeld has one plain task and one that needs a confirmation scan.
var skeld = []task.Descriptor{
	{ID: "wires", ClassID: "scan"},
	{ID: "fuel", ClassID: "scan", RequireConfirmationScan: true},
}

func newRegistry(t *testing.T) *task.Registry {
	t.Helper()
	reg := task.NewRegistry(task.WithAckTimeout(time.Second))
	err := reg.Register("scan", func(task.Descriptor) (task.Behavior, error) {
		return task.Passive{}, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func newMatch(t *testing.T, descs []task.Descriptor, opts ...Option) *Coordinator {
	t.Helper()
	catalog, err := newRegistry(t).Load(descs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c := NewCoordinator("TEST01", "skeld", catalog, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return c
}

// player is a connected device driving the match through the client facade.
type player struct {
	*client.GameManager
	id     string
	device *channel.Channel
}

func join(t *testing.T, c *Coordinator, id string, opts ...client.Option) *player {
	t.Helper()
	p, err := tryJoin(t, c, id, opts...)
	if err != nil {
		t.Fatalf("Join(%s): %v", id, err)
	}
	return p
}

func tryJoin(t *testing.T, c *Coordinator, id string, opts ...client.Option) (*player, error) {
	t.Helper()
	a, b := transport.NewPipe(transport.DefaultConfig())
	server := channel.New(a)
	device := channel.New(b)
	gm := client.New(device, opts...)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := c.Join(ctx, id, "name-"+id, server); err != nil {
		cancel()
		return nil, err
	}
	go server.Run(ctx)
	go device.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-server.Done()
		<-device.Done()
	})
	return &player{GameManager: gm, id: id, device: device}, nil
}

// disconnect drops the player's connection.
func (p *player) disconnect() {
	p.device.Close()
}

func (p *player) request(taskID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.RequestTask(ctx, taskID)
}

// start requests taskID and waits until the pairing is active.
func (p *player) start(t *testing.T, c *Coordinator, taskID string) {
	t.Helper()
	if err := p.request(taskID); err != nil {
		t.Fatalf("RequestTask(%s): %v", taskID, err)
	}
	tk, _ := c.Catalog().Get(taskID)
	eventually(t, taskID+" active", func() bool { return tk.State(p.id) == task.Active })
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func session(t *testing.T, c *Coordinator, id string) *Session {
	t.Helper()
	s, ok := c.Session(id)
	if !ok {
		t.Fatalf("no session for %s", id)
	}
	return s
}
