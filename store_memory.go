package invoiceflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory Store. Safe for concurrent access. Records are
// copied on the way in and out.
type MemoryStore struct {
	mu sync.RWMutex

	instances   map[string]*Instance
	checkpoints map[string]*Checkpoint
	reviews     map[string]*ReviewEntry
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances:   make(map[string]*Instance),
		checkpoints: make(map[string]*Checkpoint),
		reviews:     make(map[string]*ReviewEntry),
	}
}

// ──────────────────────────────────────────────────
// Instances
// ──────────────────────────────────────────────────

func (m *MemoryStore) CreateInstance(_ context.Context, inst *Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[inst.ID]; exists {
		return fmt.Errorf("instance %s already exists", inst.ID)
	}
	inst.Version = 1
	m.instances[inst.ID] = inst.Clone()
	return nil
}

func (m *MemoryStore) GetInstance(_ context.Context, id string) (*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	inst, ok := m.instances[id]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return inst.Clone(), nil
}

func (m *MemoryStore) UpdateInstance(_ context.Context, inst *Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.instances[inst.ID]
	if !ok {
		return ErrInstanceNotFound
	}
	if stored.Version != inst.Version {
		return ErrVersionConflict
	}
	inst.Version++
	m.instances[inst.ID] = inst.Clone()
	return nil
}

func (m *MemoryStore) ListInstances(_ context.Context, opts ListOptions) ([]*Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		if opts.Status != "" && inst.Status != opts.Status {
			continue
		}
		result = append(result, inst.Clone())
	}
	sortNewestFirst(result)
	return paginate(result, opts), nil
}

func (m *MemoryStore) CountInstances(_ context.Context, status Status) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, inst := range m.instances {
		if status == "" || inst.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteInstance(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.instances[id]; !ok {
		return ErrInstanceNotFound
	}
	delete(m.instances, id)
	return nil
}

// ──────────────────────────────────────────────────
// Checkpoints
// ──────────────────────────────────────────────────

func (m *MemoryStore) PutCheckpoint(_ context.Context, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.checkpoints[cp.ID]; exists {
		return nil
	}
	m.checkpoints[cp.ID] = copyCheckpoint(cp)
	return nil
}

func (m *MemoryStore) GetCheckpoint(_ context.Context, id string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[id]
	if !ok {
		return nil, ErrCheckpointNotFound
	}
	return copyCheckpoint(cp), nil
}

func (m *MemoryStore) AttachDecision(_ context.Context, id string, d *Decision) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, ok := m.checkpoints[id]
	if !ok {
		return nil, ErrCheckpointNotFound
	}
	if cp.Decision != nil {
		return nil, ErrAlreadyDecided
	}
	decision := *d
	cp.Decision = &decision
	return copyCheckpoint(cp), nil
}

func (m *MemoryStore) ListCheckpoints(_ context.Context, instanceID string) ([]*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Checkpoint
	for _, cp := range m.checkpoints {
		if cp.InstanceID == instanceID {
			result = append(result, copyCheckpoint(cp))
		}
	}
	sortCheckpointsOldestFirst(result)
	return result, nil
}

func (m *MemoryStore) DeleteCheckpoints(_ context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, cp := range m.checkpoints {
		if cp.InstanceID == instanceID {
			delete(m.checkpoints, id)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Review ledger
// ──────────────────────────────────────────────────

func (m *MemoryStore) AppendReview(_ context.Context, entry *ReviewEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.reviews[entry.CheckpointID]; exists {
		return nil
	}
	m.reviews[entry.CheckpointID] = copyReview(entry)
	return nil
}

func (m *MemoryStore) ListUndecided(_ context.Context) ([]*ReviewEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*ReviewEntry
	for _, entry := range m.reviews {
		if entry.Decision == nil {
			result = append(result, copyReview(entry))
		}
	}
	sortOldestFirst(result)
	return result, nil
}

func (m *MemoryStore) MarkDecided(_ context.Context, checkpointID string, d *Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.reviews[checkpointID]
	if !ok {
		return ErrCheckpointNotFound
	}
	decision := *d
	entry.Decision = &decision
	entry.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) DeleteReviews(_ context.Context, instanceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, entry := range m.reviews {
		if entry.InstanceID == instanceID {
			delete(m.reviews, id)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func copyCheckpoint(cp *Checkpoint) *Checkpoint {
	c := *cp
	if cp.Decision != nil {
		d := *cp.Decision
		c.Decision = &d
	}
	if cp.StateSnapshot != nil {
		c.StateSnapshot = append([]byte(nil), cp.StateSnapshot...)
	}
	return &c
}

func copyReview(entry *ReviewEntry) *ReviewEntry {
	e := *entry
	if entry.Decision != nil {
		d := *entry.Decision
		e.Decision = &d
	}
	return &e
}

func sortNewestFirst(items []*Instance) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func sortCheckpointsOldestFirst(items []*Checkpoint) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

func sortOldestFirst(entries []*ReviewEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CheckpointID < entries[j].CheckpointID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
}
