// Package job runs profile training: combining samples, validating
// them, and deriving the voice artifact through the model gateway. One
// training job runs at a time across the whole process.
package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fsp-tools/voiced/internal/audio"
	"github.com/fsp-tools/voiced/internal/model"
	"github.com/fsp-tools/voiced/internal/observability"
	"github.com/fsp-tools/voiced/internal/profile"
)

var (
	// ErrBusy is returned when another training job holds the slot.
	ErrBusy = errors.New("job: a training job is already running")
	// ErrNoSamples is returned when the profile has nothing to train on.
	ErrNoSamples = errors.New("job: profile has no audio samples")
)

// Progress checkpoints reported through the profile store.
const (
	progressStarted   = 10
	progressCombined  = 30
	progressValidated = 50
	progressDerived   = 80
	progressDone      = 100
)

// Config tunes the training pipeline.
type Config struct {
	EmbeddingsDir string
	CombineGap    time.Duration // silence between samples for embedding extraction
	ReferenceGap  time.Duration // silence between samples for zero-shot references
	NormalizeDBFS float64
	ReferenceMax  time.Duration
	Timeout       time.Duration
}

// Runner owns the single training slot. tryAcquire and release bracket
// every job; release runs deferred so the slot frees on every exit path,
// panics included.
type Runner struct {
	mu       sync.Mutex
	activeID string

	store   *profile.Store
	prep    *audio.Preprocessor
	gateway model.Gateway
	metrics *observability.Metrics
	log     zerolog.Logger
	cfg     Config

	// done is closed when the current job finishes. Tests wait on it.
	done chan struct{}
}

func NewRunner(store *profile.Store, prep *audio.Preprocessor, gateway model.Gateway, metrics *observability.Metrics, cfg Config, log zerolog.Logger) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Runner{
		store:   store,
		prep:    prep,
		gateway: gateway,
		metrics: metrics,
		log:     log,
		cfg:     cfg,
	}
}

// Start launches training for the profile. It returns ErrBusy when the
// slot is taken and profile.ErrNotFound when the id is unknown. On
// success the job continues in the background.
func (r *Runner) Start(profileID string) error {
	p, err := r.store.Get(profileID)
	if err != nil {
		return err
	}
	if len(p.SamplePaths) == 0 {
		return fmt.Errorf("%w: %s", ErrNoSamples, profileID)
	}
	if !r.tryAcquire(profileID) {
		return ErrBusy
	}

	go func() {
		defer r.release(profileID)
		r.run(profileID)
	}()
	return nil
}

// Active returns the profile id currently being trained, if any.
func (r *Runner) Active() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID, r.activeID != ""
}

// Wait blocks until the current job (if any) finishes. Used by tests
// and shutdown.
func (r *Runner) Wait(timeout time.Duration) bool {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (r *Runner) tryAcquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeID != "" {
		return false
	}
	r.activeID = id
	r.done = make(chan struct{})
	if r.metrics != nil {
		r.metrics.JobActive.Set(1)
	}
	return true
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activeID != id {
		return
	}
	r.activeID = ""
	if r.done != nil {
		close(r.done)
		r.done = nil
	}
	if r.metrics != nil {
		r.metrics.JobActive.Set(0)
	}
}

func (r *Runner) run(id string) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Timeout)
	defer cancel()

	log := r.log.With().Str("profile", id).Logger()
	if err := r.runPipeline(ctx, id, log); err != nil {
		log.Error().Err(err).Msg("training failed")
		r.fail(id, err)
		if r.metrics != nil {
			r.metrics.JobsTotal.WithLabelValues("failed").Inc()
		}
		return
	}
	if r.metrics != nil {
		r.metrics.JobsTotal.WithLabelValues("ready").Inc()
		r.metrics.ObserveJobDuration(time.Since(start))
	}
	log.Info().Dur("took", time.Since(start)).Msg("training finished")
}

func (r *Runner) runPipeline(ctx context.Context, id string, log zerolog.Logger) error {
	p, err := r.store.Get(id)
	if err != nil {
		return err
	}
	if err := r.progress(id, profile.StateProcessing, progressStarted); err != nil {
		return err
	}

	gap := r.cfg.CombineGap
	if r.gateway.Mode() == model.ModeZeroShot {
		gap = r.cfg.ReferenceGap
	}
	combined, err := r.prep.Combine(p.SamplePaths, gap)
	if err != nil {
		return err
	}
	if err := r.progress(id, profile.StateProcessing, progressCombined); err != nil {
		return err
	}

	res := r.prep.Validate(combined)
	if !res.OK {
		return errors.New(res.Reason)
	}
	for _, w := range res.Warnings {
		log.Warn().Str("warning", w).Msg("audio validation warning")
	}
	if err := r.progress(id, profile.StateProcessing, progressValidated); err != nil {
		return err
	}

	artifact, err := r.deriveArtifact(ctx, id, combined)
	if err != nil {
		return err
	}
	if err := r.progress(id, profile.StateProcessing, progressDerived); err != nil {
		return err
	}

	ready := profile.StateReady
	done := progressDone
	_, err = r.store.Update(id, profile.Changes{
		State:        &ready,
		ArtifactPath: &artifact,
		Progress:     &done,
	})
	return err
}

// deriveArtifact turns the combined clip into the per-profile artifact:
// a tone-color embedding in conversion mode, a normalized reference clip
// in zero-shot mode. The mock gateway behaves per its configured mode.
func (r *Runner) deriveArtifact(ctx context.Context, id string, combined audio.Clip) (string, error) {
	dir, err := r.store.Dir(id)
	if err != nil {
		return "", err
	}

	if r.gateway.Mode() == model.ModeZeroShot {
		ref := r.prep.NormalizeLoudness(combined, r.cfg.NormalizeDBFS).Trim(r.cfg.ReferenceMax)
		path := filepath.Join(dir, "reference.wav")
		if err := audio.WriteWAVFile(path, ref); err != nil {
			return "", err
		}
		return path, nil
	}

	combinedPath := filepath.Join(dir, "combined.wav")
	if err := audio.WriteWAVFile(combinedPath, combined); err != nil {
		return "", err
	}
	defer os.Remove(combinedPath)

	embedding, err := r.gateway.ExtractEmbedding(ctx, combinedPath, true)
	if errors.Is(err, model.ErrSpeechTooShort) {
		// VAD trimming can eat a short but usable clip. Only this
		// failure earns an ungated retry.
		r.log.Warn().Str("profile", id).Msg("VAD left too little audio, retrying without it")
		embedding, err = r.gateway.ExtractEmbedding(ctx, combinedPath, false)
	}
	if err != nil {
		return "", err
	}
	return r.claimEmbedding(id, embedding)
}

// claimEmbedding moves the engine's output under EmbeddingsDir so the
// artifact survives engine temp cleanup and is deleted with the profile.
// Without a configured dir the engine's path is kept as-is.
func (r *Runner) claimEmbedding(id, src string) (string, error) {
	if r.cfg.EmbeddingsDir == "" {
		return src, nil
	}
	if err := os.MkdirAll(r.cfg.EmbeddingsDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(r.cfg.EmbeddingsDir, id+filepath.Ext(src))
	data, err := os.ReadFile(src)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return "", err
	}
	_ = os.Remove(src)
	return dst, nil
}

func (r *Runner) progress(id string, state profile.State, pct int) error {
	_, err := r.store.Update(id, profile.Changes{State: &state, Progress: &pct})
	return err
}

func (r *Runner) fail(id string, cause error) {
	failed := profile.StateFailed
	msg := cause.Error()
	zero := 0
	if _, err := r.store.Update(id, profile.Changes{State: &failed, Error: &msg, Progress: &zero}); err != nil {
		r.log.Error().Str("profile", id).Err(err).Msg("could not record failure")
	}
}
