package task

import (
	"encoding/json"
	"os"

	gerrors "github.com/vinayprograms/taskparty/errors"
)

// Map is a playable map: a name and its task descriptors.
type Map struct {
	Name  string       `json:"name"`
	Tasks []Descriptor `json:"tasks"`
}

// LoadMap reads a map file.
func LoadMap(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gerrors.Wrapf(err, "read map %s", path)
	}
	return ParseMap(data)
}

// ParseMap decodes and validates a map document.
func ParseMap(data []byte) (*Map, error) {
	var m Map
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, gerrors.InvalidInput("invalid map: "+err.Error(), gerrors.WithCause(err))
	}
	if len(m.Tasks) == 0 {
		return nil, gerrors.InvalidInput("map has no tasks")
	}
	for i, d := range m.Tasks {
		if d.ID == "" {
			return nil, gerrors.Newf(gerrors.ErrCodeInvalidInput, "task %d has no id", i)
		}
		if d.ClassID == "" {
			return nil, gerrors.InvalidInput("task has no type", gerrors.WithTaskID(d.ID))
		}
	}
	return &m, nil
}
