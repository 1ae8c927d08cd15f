package game

import (
	"context"
	"crypto/rand"
	"math/big"
	"sort"
	"sync"

	gerrors "github.com/vinayprograms/taskparty/errors"
	"github.com/vinayprograms/taskparty/task"
)

const (
	codeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength = 6
)

// MatchInfo summarises a match for listings.
type MatchInfo struct {
	Code    string  `json:"code"`
	Map     string  `json:"map"`
	Players int     `json:"players"`
	Phase   string  `json:"phase"`
	TaskBar float64 `json:"taskBar"`
}

// Manager holds the running matches by join code. Matches are removed when
// their last player has left.
type Manager struct {
	registry *task.Registry
	opts     []Option
	o        options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	matches map[string]*Coordinator
}

// NewManager creates a manager that builds match catalogs from registry.
// opts apply to every match.
func NewManager(registry *task.Registry, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry: registry,
		opts:     opts,
		o:        buildOptions(opts),
		ctx:      ctx,
		cancel:   cancel,
		matches:  make(map[string]*Coordinator),
	}
}

// Create starts a match on m under a fresh join code. A map that fails to
// load aborts creation.
func (m *Manager) Create(mp *task.Map) (*Coordinator, error) {
	if mp == nil {
		return nil, gerrors.InvalidInput("no map")
	}
	catalog, err := m.registry.Load(mp.Tasks)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return nil, gerrors.Internal("manager is shut down")
	}
	code := generateCode(codeLength)
	for m.matches[code] != nil {
		code = generateCode(codeLength)
	}

	c := NewCoordinator(code, mp.Name, catalog, m.opts...)
	c.onEmpty = m.Remove
	m.matches[code] = c

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		c.Run(m.ctx)
	}()
	return c, nil
}

// Get returns the match with the given code.
func (m *Manager) Get(code string) (*Coordinator, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.matches[code]
	return c, ok
}

// List returns all running matches, sorted by code.
func (m *Manager) List() []MatchInfo {
	m.mu.RLock()
	matches := make([]*Coordinator, 0, len(m.matches))
	for _, c := range m.matches {
		matches = append(matches, c)
	}
	m.mu.RUnlock()

	out := make([]MatchInfo, 0, len(matches))
	for _, c := range matches {
		snap, err := c.Snapshot()
		if err != nil {
			continue
		}
		out = append(out, MatchInfo{
			Code:    snap.ID,
			Map:     snap.Map,
			Players: len(snap.Players),
			Phase:   snap.Phase,
			TaskBar: snap.TaskBar,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Remove ends a match and forgets its stored progress. It does not wait
// for the match to stop.
func (m *Manager) Remove(code string) {
	m.mu.Lock()
	c, ok := m.matches[code]
	delete(m.matches, code)
	m.mu.Unlock()
	if !ok {
		return
	}
	c.Stop()

	if m.o.progress == nil {
		return
	}
	go func() {
		<-c.Done()
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := m.o.progress.Forget(ctx, code); err != nil {
			m.o.log.Warn("progress_forget_failed", map[string]interface{}{"match": code, "error": err.Error()})
		}
	}()
}

// Shutdown stops every match and waits for them to end. Stored progress
// is kept.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.cancel()
	m.matches = make(map[string]*Coordinator)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return gerrors.Wrap(ctx.Err(), "wait for matches")
	}
}

func generateCode(n int) string {
	b := make([]byte, n)
	limit := big.NewInt(int64(len(codeChars)))
	for i := range b {
		idx, _ := rand.Int(rand.Reader, limit)
		b[i] = codeChars[idx.Int64()]
	}
	return string(b)
}
