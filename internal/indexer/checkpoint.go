package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Checkpoint tracks the last block a chain emitted.
type Checkpoint struct {
	LastEmittedBlock uint32 `json:"last_emitted_block"`
	UpdatedAt        string `json:"updated_at"`
}

// CheckpointStore persists checkpoints of all chains to one JSON file keyed
// by chain address.
type CheckpointStore struct {
	path string
	mu   sync.Mutex
}

func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

func (c *CheckpointStore) Load(ctx context.Context, chain string) (uint32, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	all, err := c.read()
	if err != nil {
		return 0, false, err
	}
	cp, ok := all[chain]
	return cp.LastEmittedBlock, ok, nil
}

func (c *CheckpointStore) Save(ctx context.Context, chain string, number uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	all, err := c.read()
	if err != nil {
		return err
	}
	all[chain] = Checkpoint{
		LastEmittedBlock: number,
		UpdatedAt:        time.Now().UTC().Format(time.RFC3339Nano),
	}

	dir := filepath.Dir(c.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	data, err := json.Marshal(all)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint tmp: %w", err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

func (c *CheckpointStore) read() (map[string]Checkpoint, error) {
	all := make(map[string]Checkpoint)
	stat, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return all, nil
		}
		return nil, fmt.Errorf("stat checkpoint: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("checkpoint path is a directory")
	}
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return all, nil
}
