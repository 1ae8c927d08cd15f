package task

import (
	"sort"
	"sync"

	gerrors "github.com/vinayprograms/taskparty/errors"
)

// Registry maps task class IDs to behaviour factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	opts      []Option
}

// NewRegistry creates an empty registry. opts apply to every task it builds.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		opts:      opts,
	}
}

// Register adds the factory for classID.
func (r *Registry) Register(classID string, f Factory) error {
	if classID == "" {
		return gerrors.InvalidInput("task type must not be empty")
	}
	if f == nil {
		return gerrors.Newf(gerrors.ErrCodeInvalidInput, "nil factory for task type %q", classID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[classID]; exists {
		return gerrors.Newf(gerrors.ErrCodeInvalidInput, "task type %q already registered", classID)
	}
	r.factories[classID] = f
	return nil
}

// Classes returns the registered class IDs, sorted.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	classes := make([]string, 0, len(r.factories))
	for id := range r.factories {
		classes = append(classes, id)
	}
	sort.Strings(classes)
	return classes
}

// Instantiate builds the task for one descriptor.
func (r *Registry) Instantiate(d Descriptor) (*Task, error) {
	if d.ID == "" {
		return nil, gerrors.InvalidInput("task id must not be empty")
	}

	r.mu.RLock()
	f, ok := r.factories[d.ClassID]
	r.mu.RUnlock()
	if !ok {
		return nil, gerrors.UnknownTaskType(d.ClassID, gerrors.WithTaskID(d.ID))
	}

	b, err := f(d)
	if err != nil {
		return nil, gerrors.Wrapf(err, "build task %s", d.ID)
	}
	return New(d, b, r.opts...), nil
}

// Load builds a catalog from a map's descriptors. Task IDs must be unique.
func (r *Registry) Load(descs []Descriptor) (*Catalog, error) {
	c := &Catalog{tasks: make(map[string]*Task, len(descs))}
	for _, d := range descs {
		if _, dup := c.tasks[d.ID]; dup {
			return nil, gerrors.DuplicateTaskID(d.ID)
		}
		t, err := r.Instantiate(d)
		if err != nil {
			return nil, err
		}
		c.tasks[d.ID] = t
		c.ids = append(c.ids, d.ID)
	}
	return c, nil
}
