package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileRegistry keeps all records in one JSON object keyed by agent identity.
// Every Save is a whole-file read-merge-write. Saves within one process are
// serialized so records of different identities never clobber each other;
// separate processes sharing the file are not coordinated.
type FileRegistry struct {
	path string
	mu   sync.Mutex
}

var _ Registry = (*FileRegistry)(nil)

// NewFileRegistry returns a registry backed by path. The file is created on first Save.
func NewFileRegistry(path string) *FileRegistry {
	return &FileRegistry{path: path}
}

// Path returns the backing file.
func (r *FileRegistry) Path() string {
	return r.path
}

func (r *FileRegistry) Get(ctx context.Context, agent string) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load()
	if err != nil {
		return Record{}, false, err
	}
	rec, ok := all[agent]
	return rec, ok, nil
}

func (r *FileRegistry) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.Agent == "" {
		return fmt.Errorf("session record has no agent identity")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load()
	if err != nil {
		return err
	}
	all[rec.Agent] = rec
	return r.store(all)
}

func (r *FileRegistry) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load()
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(all))
	for _, rec := range all {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Agent < records[j].Agent })
	return records, nil
}

func (r *FileRegistry) Delete(ctx context.Context, agent string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := r.load()
	if err != nil {
		return false, err
	}
	if _, ok := all[agent]; !ok {
		return false, nil
	}
	delete(all, agent)
	return true, r.store(all)
}

// Close is a no-op; the file is opened per operation.
func (r *FileRegistry) Close() error {
	return nil
}

// load reads the mapping. An absent file is an empty mapping.
func (r *FileRegistry) load() (map[string]Record, error) {
	all := make(map[string]Record)
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return all, nil
		}
		return nil, fmt.Errorf("read sessions %s: %w", r.path, err)
	}
	if len(data) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("parse sessions %s: %w", r.path, err)
	}
	for agent, rec := range all {
		if rec.Agent == "" {
			rec.Agent = agent
			all[agent] = rec
		}
	}
	return all, nil
}

func (r *FileRegistry) store(all map[string]Record) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sessions: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".sessions-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		return fmt.Errorf("replace %s: %w", r.path, err)
	}
	return nil
}
