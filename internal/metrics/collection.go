package metrics

import (
	"errors"
	"fmt"
	"path"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Result is one metric's reading: its name, value and auxiliary state.
type Result struct {
	Name   string  `json:"name"`
	Value  Value   `json:"value"`
	Params []Param `json:"params,omitempty"`
}

// Collection is an ordered set of uniquely named metrics fed from the same
// batches. Members share no state; a batch is handed to each member
// independently and possibly in parallel.
type Collection struct {
	mu      sync.RWMutex
	members []Metric
	index   map[string]int
}

// NewCollection creates a collection in the given order.
func NewCollection(ms ...Metric) (*Collection, error) {
	c := &Collection{index: make(map[string]int, len(ms))}
	for _, m := range ms {
		if err := c.Add(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Add appends a metric. Names must be unique within the collection.
func (c *Collection) Add(m Metric) error {
	if m == nil {
		return configError("", "metric", "nil metric")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.index[m.Name()]; dup {
		return configError("", "name", "duplicate metric %q", m.Name())
	}
	c.index[m.Name()] = len(c.members)
	c.members = append(c.members, m)
	return nil
}

// Get looks a member up by name.
func (c *Collection) Get(name string) (Metric, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.members[i], true
}

// Names lists member names in order.
func (c *Collection) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.members))
	for i, m := range c.members {
		names[i] = m.Name()
	}
	return names
}

// Len is the number of members.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

func (c *Collection) list() []Metric {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Metric(nil), c.members...)
}

// Update feeds the batch to every member. A member that rejects the batch
// keeps its previous state; the others still update. All failures are
// returned joined for the caller to report.
func (c *Collection) Update(pred, truth *Tensor) error {
	return updateAll(c.list(), pred, truth)
}

// UpdateMatching feeds the batch to the members whose name matches the
// path.Match pattern.
func (c *Collection) UpdateMatching(pattern string, pred, truth *Tensor) error {
	if _, err := path.Match(pattern, ""); err != nil {
		return configError("", "pattern", "%q: %v", pattern, err)
	}
	var selected []Metric
	for _, m := range c.list() {
		if ok, _ := path.Match(pattern, m.Name()); ok {
			selected = append(selected, m)
		}
	}
	if len(selected) == 0 {
		return configError("", "pattern", "%q matches no metric", pattern)
	}
	return updateAll(selected, pred, truth)
}

func updateAll(ms []Metric, pred, truth *Tensor) error {
	errs := make([]error, len(ms))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range ms {
		g.Go(func() error {
			if err := m.Update(pred, truth); err != nil {
				errs[i] = fmt.Errorf("update %s: %w", m.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Compute reads every member in order.
func (c *Collection) Compute() []Result {
	ms := c.list()
	out := make([]Result, len(ms))
	for i, m := range ms {
		out[i] = Result{Name: m.Name(), Value: m.Compute(), Params: m.Params()}
	}
	return out
}

// Reset returns every member to its initial state.
func (c *Collection) Reset() {
	for _, m := range c.list() {
		m.Reset()
	}
}
