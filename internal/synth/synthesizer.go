package synth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fsp-tools/voiced/internal/audio"
	"github.com/fsp-tools/voiced/internal/model"
	"github.com/fsp-tools/voiced/internal/observability"
	"github.com/fsp-tools/voiced/internal/profile"
)

var (
	ErrEmptyText       = errors.New("synth: no speakable text after sanitization")
	ErrProfileNotReady = errors.New("synth: profile is not ready")
	ErrAllChunksFailed = errors.New("synth: all chunks failed")
)

// Request asks for text rendered in a profile's voice.
type Request struct {
	ProfileID string
	Text      string
	Language  string
	Speed     float64
}

// Result describes a finished synthesis.
type Result struct {
	Path            string
	Seconds         float64
	ChunksAttempted int
	ChunksFailed    int
}

// Synthesizer renders speech through the model gateway using stored
// profile artifacts.
type Synthesizer struct {
	store    *profile.Store
	gateway  model.Gateway
	outDir   string
	maxChars int
	chunkGap time.Duration
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func NewSynthesizer(store *profile.Store, gateway model.Gateway, outDir string, maxChars int, chunkGap time.Duration, metrics *observability.Metrics, log zerolog.Logger) (*Synthesizer, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	return &Synthesizer{
		store:    store,
		gateway:  gateway,
		outDir:   outDir,
		maxChars: maxChars,
		chunkGap: chunkGap,
		metrics:  metrics,
		log:      log,
	}, nil
}

// SynthesizeOne renders the whole text as a single engine call and
// writes the result into the output directory.
func (s *Synthesizer) SynthesizeOne(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := s.synthesizeOne(ctx, req)
	s.observe("single", start, err)
	return res, err
}

func (s *Synthesizer) synthesizeOne(ctx context.Context, req Request) (Result, error) {
	p, text, err := s.resolve(req)
	if err != nil {
		return Result{}, err
	}
	clip, err := s.renderChunk(ctx, p, text, req.Language, req.Speed)
	if err != nil {
		return Result{}, err
	}
	path, err := s.export(clip)
	if err != nil {
		return Result{}, err
	}
	return Result{Path: path, Seconds: clip.Seconds(), ChunksAttempted: 1}, nil
}

// SynthesizeLong chunks the text at sentence boundaries, renders each
// chunk, and joins the survivors with a short pause. A failed chunk is
// skipped rather than replaced with silence; the call fails only when
// nothing renders.
func (s *Synthesizer) SynthesizeLong(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := s.synthesizeLong(ctx, req)
	s.observe("long", start, err)
	return res, err
}

func (s *Synthesizer) synthesizeLong(ctx context.Context, req Request) (Result, error) {
	p, text, err := s.resolve(req)
	if err != nil {
		return Result{}, err
	}

	chunks := ChunkText(text, s.maxChars)
	if len(chunks) == 1 {
		clip, err := s.renderChunk(ctx, p, chunks[0], req.Language, req.Speed)
		if err != nil {
			return Result{}, err
		}
		path, err := s.export(clip)
		if err != nil {
			return Result{}, err
		}
		return Result{Path: path, Seconds: clip.Seconds(), ChunksAttempted: 1}, nil
	}

	var (
		combined audio.Clip
		rendered int
		failed   int
	)
	for i, chunk := range chunks {
		clip, err := s.renderChunk(ctx, p, chunk, req.Language, req.Speed)
		if err != nil {
			failed++
			if s.metrics != nil {
				s.metrics.ChunkFailures.Inc()
			}
			s.log.Warn().Int("chunk", i).Int("of", len(chunks)).Err(err).Msg("chunk failed, skipping")
			continue
		}
		if rendered == 0 {
			combined = clip
		} else {
			combined = combined.Append(audio.Silence(s.chunkGap, combined.Rate)).Append(clip.Resample(combined.Rate))
		}
		rendered++
	}
	if rendered == 0 {
		return Result{ChunksAttempted: len(chunks), ChunksFailed: failed},
			fmt.Errorf("%w: %d of %d", ErrAllChunksFailed, failed, len(chunks))
	}

	path, err := s.export(combined)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Path:            path,
		Seconds:         combined.Seconds(),
		ChunksAttempted: len(chunks),
		ChunksFailed:    failed,
	}, nil
}

// resolve loads the profile, checks it can speak, and sanitizes the text.
func (s *Synthesizer) resolve(req Request) (profile.Profile, string, error) {
	p, err := s.store.Get(req.ProfileID)
	if err != nil {
		return profile.Profile{}, "", err
	}
	if p.State != profile.StateReady || p.ArtifactPath == "" {
		return profile.Profile{}, "", fmt.Errorf("%w: profile %s is %s", ErrProfileNotReady, p.ID, p.State)
	}
	if _, err := os.Stat(p.ArtifactPath); err != nil {
		return profile.Profile{}, "", fmt.Errorf("%w: artifact missing: %v", ErrProfileNotReady, err)
	}
	text := SanitizeText(req.Text)
	if text == "" {
		return profile.Profile{}, "", ErrEmptyText
	}
	return p, text, nil
}

// renderChunk produces one clip, cleaning up every intermediate file.
func (s *Synthesizer) renderChunk(ctx context.Context, p profile.Profile, text, language string, speed float64) (audio.Clip, error) {
	if speed <= 0 {
		speed = 1.0
	}
	if language == "" {
		language = "en"
	}

	if s.gateway.Mode() == model.ModeZeroShot {
		path, err := s.gateway.SynthesizeCloned(ctx, text, p.ArtifactPath, language, speed)
		if err != nil {
			return audio.Clip{}, err
		}
		defer os.Remove(path)
		return audio.DecodeWAVFile(path)
	}

	basePath, err := s.gateway.Synthesize(ctx, text, language, speed)
	if err != nil {
		return audio.Clip{}, err
	}
	defer os.Remove(basePath)

	baseEmbedding, err := s.gateway.BaseEmbedding(ctx)
	if err != nil {
		return audio.Clip{}, err
	}
	converted := basePath + ".converted.wav"
	if err := s.gateway.ConvertVoice(ctx, basePath, baseEmbedding, p.ArtifactPath, converted); err != nil {
		return audio.Clip{}, err
	}
	defer os.Remove(converted)
	return audio.DecodeWAVFile(converted)
}

func (s *Synthesizer) export(clip audio.Clip) (string, error) {
	path := filepath.Join(s.outDir, "synth-"+uuid.NewString()+".wav")
	if err := audio.WriteWAVFile(path, clip); err != nil {
		return "", err
	}
	return path, nil
}

func (s *Synthesizer) observe(kind string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.SynthesisRequests.WithLabelValues(kind, outcome).Inc()
	if err == nil {
		s.metrics.ObserveSynthesisDuration(time.Since(start))
	}
}

// OutputPath resolves a served artifact name inside the output
// directory, rejecting anything that escapes it.
func (s *Synthesizer) OutputPath(name string) (string, error) {
	if name == "" || name == "." || name == ".." || name != filepath.Base(name) {
		return "", fmt.Errorf("synth: invalid artifact name %q", name)
	}
	path := filepath.Join(s.outDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}
