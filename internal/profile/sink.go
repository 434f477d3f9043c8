package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink persists the full profile set. Save replaces the previous
// snapshot; Load returns the last snapshot Save wrote.
type Sink interface {
	Save(ctx context.Context, profiles []Profile) error
	Load(ctx context.Context) ([]Profile, error)
	Close() error
}

// NewSink picks the Postgres sink when a database URL is configured and
// falls back to the JSON flat file otherwise.
func NewSink(ctx context.Context, databaseURL, filePath string) (Sink, error) {
	if strings.TrimSpace(databaseURL) != "" {
		return NewPostgresSink(ctx, databaseURL)
	}
	return NewFileSink(filePath)
}

// FileSink stores the profile set as one JSON document, rewritten
// atomically via a temp file and rename.
type FileSink struct {
	path string
}

func NewFileSink(path string) (*FileSink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &FileSink{path: path}, nil
}

func (s *FileSink) Save(_ context.Context, profiles []Profile) error {
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (s *FileSink) Load(_ context.Context) ([]Profile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return profiles, nil
}

func (s *FileSink) Close() error { return nil }
