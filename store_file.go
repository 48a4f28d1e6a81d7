package invoiceflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

var _ Store = (*FileStore)(nil)

// FileStore is a Store that keeps one JSON file per record:
//
//	<dir>/instances/<instance_id>.json
//	<dir>/checkpoints/<checkpoint_id>.json
//	<dir>/reviews/<checkpoint_id>.json
//
// Writes go to a temporary file that is renamed into place. The version check
// is enforced with an in-process lock, so a directory must not be shared by
// two processes.
type FileStore struct {
	dataDir string
	mu      sync.Mutex
}

// NewFileStore creates a file store rooted at dataDir. An empty dataDir
// defaults to ~/.invoiceflow/data.
func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".invoiceflow", "data")
	}
	for _, sub := range []string{"instances", "checkpoints", "reviews"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
		}
	}
	return &FileStore{dataDir: dataDir}, nil
}

// path maps a record id to its file. Ids that are not a single path
// element are reported as missing records.
func (s *FileStore) path(kind, id string) (string, error) {
	if !isPathElement(id) {
		if kind == "instances" {
			return "", ErrInstanceNotFound
		}
		return "", ErrCheckpointNotFound
	}
	return filepath.Join(s.dataDir, kind, id+".json"), nil
}

// ──────────────────────────────────────────────────
// Instances
// ──────────────────────────────────────────────────

func (s *FileStore) CreateInstance(_ context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path("instances", inst.ID)
	if err != nil {
		return fmt.Errorf("invalid instance id %q", inst.ID)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("instance %s already exists", inst.ID)
	}
	inst.Version = 1
	return writeJSONFile(path, inst)
}

func (s *FileStore) GetInstance(_ context.Context, id string) (*Instance, error) {
	path, err := s.path("instances", id)
	if err != nil {
		return nil, err
	}
	var inst Instance
	if err := readJSONFile(path, &inst); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to read instance %s: %w", id, err)
	}
	return &inst, nil
}

func (s *FileStore) UpdateInstance(ctx context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.GetInstance(ctx, inst.ID)
	if err != nil {
		return err
	}
	if stored.Version != inst.Version {
		return ErrVersionConflict
	}
	path, err := s.path("instances", inst.ID)
	if err != nil {
		return err
	}
	inst.Version++
	if err := writeJSONFile(path, inst); err != nil {
		inst.Version--
		return err
	}
	return nil
}

func (s *FileStore) ListInstances(ctx context.Context, opts ListOptions) ([]*Instance, error) {
	ids, err := s.listIDs("instances")
	if err != nil {
		return nil, err
	}
	result := make([]*Instance, 0, len(ids))
	for _, id := range ids {
		inst, err := s.GetInstance(ctx, id)
		if err != nil {
			// Skip instances we can't read
			continue
		}
		if opts.Status != "" && inst.Status != opts.Status {
			continue
		}
		result = append(result, inst)
	}
	sortNewestFirst(result)
	return paginate(result, opts), nil
}

func (s *FileStore) CountInstances(ctx context.Context, status Status) (int, error) {
	instances, err := s.ListInstances(ctx, ListOptions{Status: status})
	if err != nil {
		return 0, err
	}
	return len(instances), nil
}

func (s *FileStore) DeleteInstance(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path("instances", id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrInstanceNotFound
		}
		return fmt.Errorf("failed to delete instance %s: %w", id, err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Checkpoints
// ──────────────────────────────────────────────────

func (s *FileStore) PutCheckpoint(_ context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path("checkpoints", cp.ID)
	if err != nil {
		return fmt.Errorf("invalid checkpoint id %q", cp.ID)
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return writeJSONFile(path, cp)
}

func (s *FileStore) GetCheckpoint(_ context.Context, id string) (*Checkpoint, error) {
	path, err := s.path("checkpoints", id)
	if err != nil {
		return nil, err
	}
	var cp Checkpoint
	if err := readJSONFile(path, &cp); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", id, err)
	}
	return &cp, nil
}

func (s *FileStore) AttachDecision(ctx context.Context, id string, d *Decision) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, err := s.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp.Decision != nil {
		return nil, ErrAlreadyDecided
	}
	decision := *d
	cp.Decision = &decision
	path, _ := s.path("checkpoints", id)
	if err := writeJSONFile(path, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func (s *FileStore) ListCheckpoints(ctx context.Context, instanceID string) ([]*Checkpoint, error) {
	ids, err := s.listIDs("checkpoints")
	if err != nil {
		return nil, err
	}
	var result []*Checkpoint
	for _, id := range ids {
		cp, err := s.GetCheckpoint(ctx, id)
		if err != nil || cp.InstanceID != instanceID {
			continue
		}
		result = append(result, cp)
	}
	sortCheckpointsOldestFirst(result)
	return result, nil
}

func (s *FileStore) DeleteCheckpoints(ctx context.Context, instanceID string) error {
	checkpoints, err := s.ListCheckpoints(ctx, instanceID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cp := range checkpoints {
		path, err := s.path("checkpoints", cp.ID)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete checkpoint %s: %w", cp.ID, err)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Review ledger
// ──────────────────────────────────────────────────

func (s *FileStore) AppendReview(_ context.Context, entry *ReviewEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path("reviews", entry.CheckpointID)
	if err != nil {
		return fmt.Errorf("invalid checkpoint id %q", entry.CheckpointID)
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return writeJSONFile(path, entry)
}

func (s *FileStore) ListUndecided(_ context.Context) ([]*ReviewEntry, error) {
	entries, err := s.listReviews()
	if err != nil {
		return nil, err
	}
	var result []*ReviewEntry
	for _, entry := range entries {
		if entry.Decision == nil {
			result = append(result, entry)
		}
	}
	sortOldestFirst(result)
	return result, nil
}

func (s *FileStore) MarkDecided(_ context.Context, checkpointID string, d *Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.path("reviews", checkpointID)
	if err != nil {
		return err
	}
	var entry ReviewEntry
	if err := readJSONFile(path, &entry); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrCheckpointNotFound
		}
		return err
	}
	decision := *d
	entry.Decision = &decision
	entry.UpdatedAt = time.Now().UTC()
	return writeJSONFile(path, &entry)
}

func (s *FileStore) DeleteReviews(_ context.Context, instanceID string) error {
	entries, err := s.listReviews()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, entry := range entries {
		if entry.InstanceID != instanceID {
			continue
		}
		path, err := s.path("reviews", entry.CheckpointID)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete review %s: %w", entry.CheckpointID, err)
		}
	}
	return nil
}

func (s *FileStore) listReviews() ([]*ReviewEntry, error) {
	ids, err := s.listIDs("reviews")
	if err != nil {
		return nil, err
	}
	entries := make([]*ReviewEntry, 0, len(ids))
	for _, id := range ids {
		path, err := s.path("reviews", id)
		if err != nil {
			continue
		}
		var entry ReviewEntry
		if err := readJSONFile(path, &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// isPathElement reports whether id can name a file inside a store
// directory without escaping it.
func isPathElement(id string) bool {
	return id != "" && id != "." && id != ".." &&
		!strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}

// listIDs returns the record ids stored under kind.
func (s *FileStore) listIDs(kind string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, kind))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s directory: %w", kind, err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
