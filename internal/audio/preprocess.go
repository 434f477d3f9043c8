package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var ErrNoUsableSamples = errors.New("audio: no usable samples")

// ValidationResult reports whether a clip is suitable as voice-cloning
// reference material.
type ValidationResult struct {
	OK       bool     `json:"valid"`
	Reason   string   `json:"reason,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Seconds  float64  `json:"duration_seconds"`
	DBFS     float64  `json:"dbfs"`
	Rate     int      `json:"sample_rate"`
}

// FileValidation is a ValidationResult tied to one input file.
type FileValidation struct {
	Path string `json:"path"`
	ValidationResult
}

// BatchValidation aggregates per-file checks for a set of samples.
type BatchValidation struct {
	OK              bool             `json:"valid"`
	Files           []FileValidation `json:"files"`
	TotalSeconds    float64          `json:"total_duration_seconds"`
	SpeechSeconds   float64          `json:"speech_duration_seconds"`
	SpeechApprox    bool             `json:"speech_duration_approximate"`
	Errors          []string         `json:"errors,omitempty"`
	Recommendations []string         `json:"recommendations,omitempty"`
}

// Preprocessor prepares raw voice samples for training and synthesis.
type Preprocessor struct {
	TargetRate       int
	MinClipSeconds   float64
	MinSpeechSeconds float64
	QuietDBFS        float64
	VAD              VADConfig

	log zerolog.Logger
}

func NewPreprocessor(targetRate int, minClip, minSpeech float64, vad VADConfig, log zerolog.Logger) *Preprocessor {
	return &Preprocessor{
		TargetRate:       targetRate,
		MinClipSeconds:   minClip,
		MinSpeechSeconds: minSpeech,
		QuietDBFS:        -50,
		VAD:              vad,
		log:              log,
	}
}

// Combine decodes every sample, resamples to the target rate and joins
// them with a silence gap. Undecodable samples are skipped; the call
// fails only when none survive. A single surviving sample is returned
// resampled with no gap appended.
func (p *Preprocessor) Combine(paths []string, gap time.Duration) (Clip, error) {
	if len(paths) == 0 {
		return Clip{}, ErrNoUsableSamples
	}

	var clips []Clip
	for _, path := range paths {
		clip, err := DecodeWAVFile(path)
		if err != nil {
			p.log.Warn().Str("path", path).Err(err).Msg("skipping undecodable sample")
			continue
		}
		clips = append(clips, clip.Resample(p.TargetRate))
	}
	if len(clips) == 0 {
		return Clip{}, fmt.Errorf("%w: all %d samples failed to decode", ErrNoUsableSamples, len(paths))
	}

	combined := clips[0]
	pause := Silence(gap, p.TargetRate)
	for _, clip := range clips[1:] {
		combined = combined.Append(pause).Append(clip)
	}
	return combined, nil
}

// NormalizeLoudness gains the clip to the target RMS loudness. Silent
// clips pass through unchanged.
func (p *Preprocessor) NormalizeLoudness(c Clip, targetDBFS float64) Clip {
	current := c.DBFS()
	if current <= -120 || len(c.Samples) == 0 {
		return c
	}
	return c.ApplyGain(targetDBFS - current)
}

// Validate checks a clip for the failure modes that sink a training run.
// The silence check runs before the duration check so an empty or
// corrupt clip is reported as such, not as merely short.
func (p *Preprocessor) Validate(c Clip) ValidationResult {
	res := ValidationResult{
		Seconds: c.Seconds(),
		DBFS:    c.DBFS(),
		Rate:    c.Rate,
	}
	if c.Peak() == 0 {
		res.Reason = "audio is silent or corrupted"
		return res
	}
	if res.Seconds < p.MinClipSeconds {
		res.Reason = fmt.Sprintf("audio too short: %.1fs, need at least %.1fs", res.Seconds, p.MinClipSeconds)
		return res
	}
	if res.DBFS < p.QuietDBFS {
		res.Warnings = append(res.Warnings, fmt.Sprintf("audio is very quiet (%.1f dBFS), quality may suffer", res.DBFS))
	}
	res.OK = true
	return res
}

// EstimateSpeechDuration sums VAD-positive frames. When the clip is too
// short to frame, it falls back to 70% of the raw duration and flags the
// estimate as approximate.
func (p *Preprocessor) EstimateSpeechDuration(c Clip) (float64, bool) {
	frameSize := p.VAD.FrameSize
	if frameSize <= 0 {
		frameSize = DefaultVADConfig().FrameSize
	}
	if c.Rate <= 0 || len(c.Samples) < frameSize {
		return c.Seconds() * 0.7, true
	}

	det := NewVADDetector(p.VAD)
	speechFrames := 0
	totalFrames := 0
	for off := 0; off+frameSize <= len(c.Samples); off += frameSize {
		speaking, _, _ := det.ProcessFrame(c.Samples[off : off+frameSize])
		if speaking {
			speechFrames++
		}
		totalFrames++
	}
	if totalFrames == 0 {
		return c.Seconds() * 0.7, true
	}
	frameSeconds := float64(frameSize) / float64(c.Rate)
	return float64(speechFrames) * frameSeconds, false
}

// ValidateBatch validates each file and the set as a whole. The hard
// requirement is total speech duration; total raw duration only drives
// recommendations.
func (p *Preprocessor) ValidateBatch(paths []string) BatchValidation {
	batch := BatchValidation{}
	if len(paths) == 0 {
		batch.Errors = append(batch.Errors, "no audio samples provided")
		return batch
	}

	for _, path := range paths {
		clip, err := DecodeWAVFile(path)
		if err != nil {
			batch.Files = append(batch.Files, FileValidation{
				Path:             path,
				ValidationResult: ValidationResult{Reason: fmt.Sprintf("decode failed: %v", err)},
			})
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: decode failed", path))
			continue
		}
		res := p.Validate(clip)
		batch.Files = append(batch.Files, FileValidation{Path: path, ValidationResult: res})
		if !res.OK {
			batch.Errors = append(batch.Errors, fmt.Sprintf("%s: %s", path, res.Reason))
			continue
		}
		batch.TotalSeconds += res.Seconds
		speech, approx := p.EstimateSpeechDuration(clip)
		batch.SpeechSeconds += speech
		if approx {
			batch.SpeechApprox = true
		}
	}

	if batch.SpeechSeconds < p.MinSpeechSeconds {
		batch.Errors = append(batch.Errors, fmt.Sprintf(
			"not enough speech: %.1fs detected, need at least %.1fs", batch.SpeechSeconds, p.MinSpeechSeconds))
	}
	if batch.TotalSeconds < 30 {
		batch.Recommendations = append(batch.Recommendations,
			"provide at least 30 seconds of audio for best cloning quality")
	}
	if len(batch.Files) < 3 {
		batch.Recommendations = append(batch.Recommendations,
			"multiple samples with varied intonation improve the cloned voice")
	}

	batch.OK = len(batch.Errors) == 0
	return batch
}
