package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Save persists a value as indented JSON, creating parent directories if they don't exist.
// Used for both the registry configuration and the project configuration resource.
func Save(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
