package game

import (
	"math/rand/v2"
	"sort"

	"github.com/vinayprograms/taskparty/protocol"
)

// Snapshot is a point-in-time view of a match.
type Snapshot struct {
	ID       string                 `json:"id"`
	Map      string                 `json:"map"`
	Phase    string                 `json:"phase"`
	Reporter string                 `json:"reporter,omitempty"`
	TaskBar  float64                `json:"taskBar"`
	Seq      uint64                 `json:"seq"`
	Tasks    []string               `json:"tasks"`
	Players  []protocol.RosterEntry `json:"players"`
}

// taskBar is the fraction of alive players' required tasks that are done.
// A match with no required tasks has a bar of zero.
func taskBar(sessions []*Session) float64 {
	var total, done int
	for _, s := range sessions {
		s.mu.Lock()
		if s.alive {
			for _, id := range s.required {
				total++
				if s.completed[id] {
					done++
				}
			}
		}
		s.mu.Unlock()
	}
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total)
}

// assignTasks picks n of ids, keeping map order. n <= 0 picks all.
func assignTasks(ids []string, n int) []string {
	if n <= 0 || n >= len(ids) {
		return append([]string(nil), ids...)
	}
	picked := rand.Perm(len(ids))[:n]
	sort.Ints(picked)
	out := make([]string, n)
	for i, idx := range picked {
		out[i] = ids[idx]
	}
	return out
}
