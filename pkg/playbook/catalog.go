package playbook

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrPlaybookNotFound is returned when no playbook is registered for an
// incident type.
var ErrPlaybookNotFound = errors.New("playbook not found")

// Catalog maps incident-type tags to ordered step sequences.
// Registration is last-write-wins and performs no validation.
type Catalog struct {
	mu        sync.RWMutex
	playbooks map[string][]Step
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{playbooks: make(map[string][]Step)}
}

// NewBuiltinCatalog returns a catalog seeded with the built-in playbooks.
func NewBuiltinCatalog() *Catalog {
	c := NewCatalog()
	for t, steps := range Builtins() {
		c.Register(t, steps)
	}
	return c
}

// Register stores steps for incidentType, replacing any existing entry.
func (c *Catalog) Register(incidentType string, steps []Step) {
	cp := make([]Step, len(steps))
	copy(cp, steps)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.playbooks[incidentType] = cp
}

// Lookup returns the ordered steps for incidentType.
func (c *Catalog) Lookup(incidentType string) ([]Step, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	steps, ok := c.playbooks[incidentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPlaybookNotFound, incidentType)
	}
	cp := make([]Step, len(steps))
	copy(cp, steps)
	return cp, nil
}

// Types returns the registered incident types, sorted.
func (c *Catalog) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.playbooks))
	for t := range c.playbooks {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
