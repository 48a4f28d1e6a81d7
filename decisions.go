package invoiceflow

import "sync"

// DecisionCache holds decisions between their receipt and the step that
// merges them. It is not durable.
type DecisionCache struct {
	mu        sync.RWMutex
	decisions map[string]*Decision
}

// NewDecisionCache returns an empty cache.
func NewDecisionCache() *DecisionCache {
	return &DecisionCache{decisions: map[string]*Decision{}}
}

// Put records the decision for an instance.
func (c *DecisionCache) Put(instanceID string, d *Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *d
	c.decisions[instanceID] = &copied
}

// Lookup implements DecisionSource.
func (c *DecisionCache) Lookup(instanceID string) (*Decision, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.decisions[instanceID]
	if !ok {
		return nil, false
	}
	copied := *d
	return &copied, true
}

// Forget drops the entry for an instance.
func (c *DecisionCache) Forget(instanceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.decisions, instanceID)
}

// Len returns the number of cached decisions.
func (c *DecisionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.decisions)
}

var _ DecisionSource = (*DecisionCache)(nil)
