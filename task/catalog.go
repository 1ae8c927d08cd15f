package task

// Catalog is the fixed set of tasks of one match.
type Catalog struct {
	tasks map[string]*Task
	ids   []string
}

// Get returns the task with the given ID.
func (c *Catalog) Get(id string) (*Task, bool) {
	t, ok := c.tasks[id]
	return t, ok
}

// IDs returns task IDs in map order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.ids))
	copy(out, c.ids)
	return out
}

// Len returns the number of tasks.
func (c *Catalog) Len() int {
	return len(c.ids)
}

// Abandon releases playerID's in-flight pairing on every task.
func (c *Catalog) Abandon(playerID string) {
	for _, id := range c.ids {
		c.tasks[id].Abandon(playerID)
	}
}
