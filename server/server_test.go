package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vinayprograms/taskparty/channel"
	"github.com/vinayprograms/taskparty/client"
	gerrors "github.com/vinayprograms/taskparty/errors"
	"github.com/vinayprograms/taskparty/game"
	"github.com/vinayprograms/taskparty/ratelimit"
	"github.com/vinayprograms/taskparty/task"
	"github.com/vinayprograms/taskparty/task/kinds"
	"github.com/vinayprograms/taskparty/transport"
)

const testMap = `{
  "name": "skeld",
  "tasks": [
    {"id": "wires", "type": "scan"},
    {"id": "fuel", "type": "scan", "requireConfirmationScan": true}
  ]
}`

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	return newTestServerWith(t, Config{WebSocket: transport.DefaultWebSocketConfig()})
}

func newTestServerWith(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	reg := task.NewRegistry(task.WithAckTimeout(time.Second))
	if err := kinds.Register(reg, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}
	mgr := game.NewManager(reg, game.WithSettings(game.Settings{ReconnectGrace: time.Second, ReportTimeout: time.Second}))
	maps := func() (*task.Map, error) { return task.ParseMap([]byte(testMap)) }

	s := New(cfg, mgr, maps, nil)
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.OnShutdown(ctx)
		mgr.Shutdown(ctx)
		hs.Close()
	})
	return s, hs
}

func createMatch(t *testing.T, hs *httptest.Server, body string) (int, createResponse) {
	t.Helper()
	resp, err := http.Post(hs.URL+"/matches", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /matches: %v", err)
	}
	defer resp.Body.Close()
	var out createResponse
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func connect(t *testing.T, hs *httptest.Server, code, player string) *client.GameManager {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/ws?match=" + code + "&player=" + player + "&name=" + player
	wt, err := transport.DialWebSocket(ctx, url, transport.DefaultWebSocketConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	ch := channel.New(wt)
	gm := client.New(ch)

	runCtx, stop := context.WithCancel(context.Background())
	go ch.Run(runCtx)
	t.Cleanup(func() {
		stop()
		<-ch.Done()
	})
	return gm
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// --- Unit Tests ---

func TestCreateAndListMatches(t *testing.T) {
	_, hs := newTestServer(t)

	status, created := createMatch(t, hs, "")
	if status != http.StatusCreated || len(created.Code) != 6 || created.Map != "skeld" {
		t.Fatalf("create = %d %+v", status, created)
	}

	resp, err := http.Get(hs.URL + "/matches")
	if err != nil {
		t.Fatalf("GET /matches: %v", err)
	}
	defer resp.Body.Close()
	var list []game.MatchInfo
	json.NewDecoder(resp.Body).Decode(&list)
	if len(list) != 1 || list[0].Code != created.Code {
		t.Errorf("list = %+v", list)
	}
}

func TestCreateWithBadMap(t *testing.T) {
	_, hs := newTestServer(t)

	status, _ := createMatch(t, hs, `{"name":"x","tasks":[{"id":"a","type":"reactor"}]}`)
	if status != http.StatusBadRequest {
		t.Errorf("unknown type status = %d, want 400", status)
	}
	status, _ = createMatch(t, hs, `{"name":"x","tasks":[`)
	if status != http.StatusBadRequest {
		t.Errorf("malformed map status = %d, want 400", status)
	}
}

func TestUnknownMatch(t *testing.T) {
	_, hs := newTestServer(t)
	resp, err := http.Get(hs.URL + "/matches/NOPE42")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	if body["code"] != string(gerrors.ErrCodeNotFound) {
		t.Errorf("error body = %v", body)
	}

	ws, err := http.Get(hs.URL + "/ws?match=NOPE42&player=p1")
	if err != nil {
		t.Fatalf("GET /ws: %v", err)
	}
	ws.Body.Close()
	if ws.StatusCode != http.StatusNotFound {
		t.Errorf("ws status = %d, want 404", ws.StatusCode)
	}
}

func TestPlayerCompletesTaskOverWebSocket(t *testing.T) {
	s, hs := newTestServer(t)
	_, created := createMatch(t, hs, "")

	p1 := connect(t, hs, created.Code, "p1")
	p2 := connect(t, hs, created.Code, "p2")
	eventually(t, "roster", func() bool { return len(p1.Roster()) == 2 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p1.RequestTask(ctx, "wires"); err != nil {
		t.Fatalf("RequestTask: %v", err)
	}
	match, _ := s.manager.Get(created.Code)
	wires, _ := match.Catalog().Get("wires")
	eventually(t, "pairing active", func() bool { return wires.State("p1") == task.Active })
	if err := p1.Finish(false); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	eventually(t, "bar on p2", func() bool { return p2.TaskBar() == 0.25 })
	if err := p1.RequestTask(ctx, "wires"); !gerrors.Is(err, gerrors.ErrCodeTaskCompleted) {
		t.Errorf("repeat request = %v, want TASK_ALREADY_COMPLETED", err)
	}
}

func TestKillPlayerOverHTTP(t *testing.T) {
	_, hs := newTestServer(t)
	_, created := createMatch(t, hs, "")
	p1 := connect(t, hs, created.Code, "p1")
	eventually(t, "joined", func() bool { return len(p1.Roster()) == 1 })

	url := hs.URL + "/matches/" + created.Code + "/players/p1/alive"
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(`{"alive":false}`))
	if err != nil {
		t.Fatalf("POST alive: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	eventually(t, "dead in roster", func() bool {
		r := p1.Roster()
		return len(r) == 1 && !r[0].Alive
	})

	resp, err = http.Post(hs.URL+"/matches/"+created.Code+"/meeting/end", "application/json", nil)
	if err != nil {
		t.Fatalf("POST meeting/end: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("end meeting while playing = %d, want 409", resp.StatusCode)
	}
}

func TestCreateIsThrottledPerClient(t *testing.T) {
	_, hs := newTestServerWith(t, Config{
		WebSocket:   transport.DefaultWebSocketConfig(),
		CreateLimit: ratelimit.Config{Burst: 2, Window: time.Hour},
	})

	for i := 0; i < 2; i++ {
		if status, _ := createMatch(t, hs, ""); status != http.StatusCreated {
			t.Fatalf("create %d status = %d", i, status)
		}
	}
	if status, _ := createMatch(t, hs, ""); status != http.StatusTooManyRequests {
		t.Errorf("third create status = %d, want 429", status)
	}
}
