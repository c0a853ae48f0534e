package route

import "sync"

// Cache holds one compiled Table per project, recompiling only when the
// caller observes a newer route-set version than what is cached -
// avoiding a recompile on every gateway dispatch.
type Cache struct {
	mu     sync.RWMutex
	tables map[string]*Table
}

// NewCache builds an empty Cache.
func NewCache() *Cache {
	return &Cache{tables: make(map[string]*Table)}
}

// Get returns the cached Table for projectID if its version matches want.
func (c *Cache) Get(projectID string, want int64) (*Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tables[projectID]
	if !ok || t.Version() != want {
		return nil, false
	}
	return t, true
}

// Put stores t as the current Table for its project.
func (c *Cache) Put(t *Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[t.projectID] = t
}

// Invalidate drops any cached Table for projectID.
func (c *Cache) Invalidate(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables, projectID)
}
