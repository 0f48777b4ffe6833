// Package store reads and writes the pipeline's JSON snapshot files. Every
// snapshot is the complete current state of one record type, wrapped in a
// versioned envelope; a stage reads the prior snapshot and overwrites it
// atomically (write to a temp file, then rename) so an interrupted run never
// leaves a half-written snapshot behind.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SchemaVersion is the current snapshot envelope version. Readers reject
// snapshots with a different version rather than guessing at their shape.
const SchemaVersion = 1

type envelope[T any] struct {
	SchemaVersion int    `json:"schema_version"`
	GeneratedAt   string `json:"generated_at"`
	Records       []T    `json:"records"`
}

// Load reads a snapshot file. A missing file is an empty snapshot, not an
// error; an unreadable or version-incompatible file is a hard failure.
func Load[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", path, err)
	}

	var env envelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", path, err)
	}
	if env.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("snapshot %s: schema version %d, want %d", path, env.SchemaVersion, SchemaVersion)
	}
	return env.Records, nil
}

// Save writes a snapshot atomically, creating parent directories as needed.
func Save[T any](path string, records []T) error {
	env := envelope[T]{
		SchemaVersion: SchemaVersion,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Records:       records,
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot %s: %w", path, err)
	}
	return nil
}

// LoadRaw reads an unversioned JSON file into dst. Used for externally
// produced inputs (transcripts, source dumps) that predate the envelope.
func LoadRaw(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
