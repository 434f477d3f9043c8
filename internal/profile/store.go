package profile

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("profile not found")

// Store keeps all profiles in memory and mirrors every mutation to a
// sink. Persistence is synchronous but best effort: a failed write is
// logged and the in-memory state stays authoritative.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]Profile

	baseDir string
	sink    Sink
	log     zerolog.Logger
}

// NewStore loads the last persisted snapshot from the sink.
func NewStore(ctx context.Context, baseDir string, sink Sink, log zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		profiles: make(map[string]Profile),
		baseDir:  baseDir,
		sink:     sink,
		log:      log,
	}
	loaded, err := sink.Load(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range loaded {
		// A job interrupted by a restart never finishes.
		if p.State == StateProcessing {
			p.State = StateFailed
			p.Error = "interrupted by service restart"
			p.Progress = 0
		}
		s.profiles[p.ID] = p
	}
	return s, nil
}

func newProfileID() string {
	u := uuid.New()
	return "voice-" + hex.EncodeToString(u[:4])
}

// Create registers a new pending profile.
func (s *Store) Create(name string, samplePaths []string) Profile {
	p := Profile{
		ID:          newProfileID(),
		Name:        name,
		State:       StatePending,
		CreatedAt:   time.Now().UTC(),
		SamplePaths: append([]string(nil), samplePaths...),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	s.persistLocked()
	return p.Clone()
}

// Get returns a snapshot of the profile.
func (s *Store) Get(id string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p.Clone(), nil
}

// Update applies a patch. Only fields set in the patch change.
func (s *Store) Update(id string, changes Changes) (Profile, error) {
	if err := changes.validate(); err != nil {
		return Profile{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	if changes.Name != nil {
		p.Name = *changes.Name
	}
	if changes.State != nil {
		p.State = *changes.State
	}
	if changes.ArtifactPath != nil {
		p.ArtifactPath = *changes.ArtifactPath
	}
	if changes.Error != nil {
		p.Error = *changes.Error
	}
	if changes.Progress != nil {
		p.Progress = *changes.Progress
	}
	// State owns the artifact and error fields.
	if p.State != StateReady {
		p.ArtifactPath = ""
	}
	if p.State != StateFailed {
		p.Error = ""
	}
	s.profiles[id] = p
	s.persistLocked()
	return p.Clone(), nil
}

// ReplaceSamples swaps the profile's source audio and resets it to
// Pending. The previous artifact no longer matches the samples, so it
// is removed.
func (s *Store) ReplaceSamples(id string, samplePaths []string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	if p.ArtifactPath != "" {
		if err := os.Remove(p.ArtifactPath); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Str("profile", id).Err(err).Msg("failed to remove stale artifact")
		}
	}
	p.SamplePaths = append([]string(nil), samplePaths...)
	p.State = StatePending
	p.ArtifactPath = ""
	p.Error = ""
	p.Progress = 0
	s.profiles[id] = p
	s.persistLocked()
	return p.Clone(), nil
}

// Delete removes the profile, its artifact, and its sample directory.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return ErrNotFound
	}
	if p.ArtifactPath != "" {
		if err := os.Remove(p.ArtifactPath); err != nil && !os.IsNotExist(err) {
			s.log.Warn().Str("profile", id).Err(err).Msg("failed to remove artifact")
		}
	}
	if err := os.RemoveAll(s.profileDirLocked(id)); err != nil {
		s.log.Warn().Str("profile", id).Err(err).Msg("failed to remove profile dir")
	}
	delete(s.profiles, id)
	s.persistLocked()
	return nil
}

// List returns snapshots ordered by creation time.
func (s *Store) List() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of stored profiles.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// Dir returns (and creates) the directory holding the profile's files.
func (s *Store) Dir(id string) (string, error) {
	s.mu.RLock()
	dir := s.profileDirLocked(id)
	s.mu.RUnlock()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (s *Store) profileDirLocked(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *Store) persistLocked() {
	snapshot := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		snapshot = append(snapshot, p.Clone())
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.sink.Save(ctx, snapshot); err != nil {
		s.log.Error().Err(err).Msg("profile persistence failed; in-memory state kept")
	}
}
