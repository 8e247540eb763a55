package session

import (
	"context"
	"fmt"
	"path/filepath"
)

// Open returns the registry selected by backend ("json" or "sqlite").
// A relative path resolves against pmRoot.
func Open(ctx context.Context, backend, path, pmRoot string) (Registry, error) {
	if path == "" {
		path = "sessions.json"
		if backend == "sqlite" {
			path = "sessions.db"
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(pmRoot, path)
	}

	switch backend {
	case "", "json":
		return NewFileRegistry(path), nil
	case "sqlite":
		return NewSQLiteRegistry(ctx, path)
	default:
		return nil, fmt.Errorf("unknown session backend %q", backend)
	}
}
