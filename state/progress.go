package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Progress is what survives of a player when their session is gone.
type Progress struct {
	PlayerID  string    `json:"player_id"`
	Name      string    `json:"name,omitempty"`
	Alive     bool      `json:"alive"`
	Required  []string  `json:"required"`
	Completed []string  `json:"completed"`
	Updated   time.Time `json:"updated"`
}

// ProgressStore stores Progress records in a Store.
type ProgressStore struct {
	kv Store
}

// NewProgressStore wraps kv.
func NewProgressStore(kv Store) *ProgressStore {
	return &ProgressStore{kv: kv}
}

// ProgressKey is the key of one player's progress in a match.
func ProgressKey(matchID, playerID string) string {
	return matchPrefix(matchID) + "player." + playerID
}

func matchPrefix(matchID string) string {
	return "match." + matchID + "."
}

// Save writes p, stamping Updated.
func (s *ProgressStore) Save(ctx context.Context, matchID string, p Progress) error {
	p.Updated = time.Now().UTC()
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	return s.kv.Put(ctx, ProgressKey(matchID, p.PlayerID), data)
}

// Load reads a player's progress. Returns ErrNotFound if none was saved.
func (s *ProgressStore) Load(ctx context.Context, matchID, playerID string) (*Progress, error) {
	data, err := s.kv.Get(ctx, ProgressKey(matchID, playerID))
	if err != nil {
		return nil, err
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode progress %s/%s: %w", matchID, playerID, err)
	}
	return &p, nil
}

// Players lists the players with saved progress in a match.
func (s *ProgressStore) Players(ctx context.Context, matchID string) ([]string, error) {
	prefix := matchPrefix(matchID) + "player."
	keys, err := s.kv.Keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		ids = append(ids, k[len(prefix):])
	}
	return ids, nil
}

// Forget deletes everything stored for a match.
func (s *ProgressStore) Forget(ctx context.Context, matchID string) error {
	keys, err := s.kv.Keys(ctx, matchPrefix(matchID))
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.kv.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
