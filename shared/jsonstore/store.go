package jsonstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultAutoSaveInterval is the period of the background autosave loop
const DefaultAutoSaveInterval = 3 * time.Second

// File is a JSON document persisted at a single path.
//
// Saves are atomic: the document is written to a temporary sibling file and
// renamed over the target, so readers never observe a partial write. File
// does not coordinate with other processes writing the same path; the last
// rename wins.
type File[T any] struct {
	path   string
	empty  T
	logger *slog.Logger

	mu   sync.Mutex
	data T
}

// New creates a File for path. empty is the document written when the file
// does not exist yet.
func New[T any](path string, empty T, logger *slog.Logger) *File[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &File[T]{
		path:   path,
		empty:  empty,
		logger: logger,
		data:   empty,
	}
}

// Path returns the file location
func (f *File[T]) Path() string {
	return f.path
}

// Load reads the document from disk, creating the file with the empty
// document on first use.
func (f *File[T]) Load() (T, error) {
	var zero T

	payload, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := f.write(f.empty); err != nil {
			return zero, err
		}
		f.mu.Lock()
		f.data = f.empty
		f.mu.Unlock()
		return f.empty, nil
	}
	if err != nil {
		return zero, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	var data T
	if err := json.Unmarshal(payload, &data); err != nil {
		return zero, fmt.Errorf("failed to decode %s: %w", f.path, err)
	}

	f.mu.Lock()
	f.data = data
	f.mu.Unlock()
	return data, nil
}

// Save replaces the on-disk document with data and keeps it as the
// in-memory document.
func (f *File[T]) Save(data T) error {
	if err := f.write(data); err != nil {
		return err
	}
	f.mu.Lock()
	f.data = data
	f.mu.Unlock()
	return nil
}

// Data returns the document last loaded or saved
func (f *File[T]) Data() T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data
}

// StartAutoSave re-persists the document every interval until ctx is done.
// When snapshot is nil the in-memory document is written. Failures are
// logged and the loop keeps running. The returned channel is closed once the
// loop has exited.
func (f *File[T]) StartAutoSave(ctx context.Context, interval time.Duration, snapshot func() T) <-chan struct{} {
	if interval <= 0 {
		interval = DefaultAutoSaveInterval
	}
	if snapshot == nil {
		snapshot = f.Data
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		f.logger.Debug("Autosave started",
			slog.String("path", f.path),
			slog.Duration("interval", interval),
		)

		for {
			select {
			case <-ctx.Done():
				f.logger.Debug("Autosave stopped", slog.String("path", f.path))
				return
			case <-ticker.C:
				if err := f.write(snapshot()); err != nil {
					f.logger.Error("Autosave failed",
						slog.String("path", f.path),
						slog.Any("error", err),
					)
				}
			}
		}
	}()
	return done
}

func (f *File[T]) write(data T) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", f.path, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// A unique temp name keeps concurrent writers of the same path from
	// clobbering each other's half-written file.
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", f.path, err)
	}
	tmpPath := tmp.Name()

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod %s: %w", tmpPath, err)
	}
	if _, err := tmp.Write(append(payload, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}
