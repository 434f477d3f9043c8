// Package model abstracts the neural engines behind the service: the
// voice-cloning TTS engine and the offline speech recognizer. Both run
// as local sidecar processes that share the filesystem with this
// service, so audio moves between them by path, not by payload.
package model

import (
	"context"
	"errors"
)

// Mode describes how the cloning engine produces a voice.
type Mode string

const (
	// ModeConversion synthesizes with a base voice and converts its tone
	// color toward a target embedding.
	ModeConversion Mode = "conversion"
	// ModeZeroShot clones directly from a short reference clip.
	ModeZeroShot Mode = "zeroshot"
)

var (
	// ErrNotInitialized is returned while the engine has not loaded its
	// model weights yet.
	ErrNotInitialized = errors.New("model: engine not initialized")
	// ErrSpeechTooShort is returned by embedding extraction when the
	// voice activity detector leaves too little audio to work with.
	ErrSpeechTooShort = errors.New("model: input audio is too short")
	// ErrAssetsMissing is returned when model checkpoints are not on disk.
	ErrAssetsMissing = errors.New("model: checkpoints not found")
)

// Status reports engine readiness.
type Status struct {
	Initialized bool   `json:"initialized"`
	AssetsFound bool   `json:"assets_found"`
	Mode        Mode   `json:"mode"`
	Detail      string `json:"detail,omitempty"`
}

// Result is one recognizer emission. A non-final result is a partial
// hypothesis that later emissions supersede.
type Result struct {
	Final bool     `json:"final"`
	Text  string   `json:"text"`
	Words []string `json:"words,omitempty"`
}

// Recognizer is one offline speech-to-text session. Accept feeds one
// audio chunk and returns the hypothesis it produced. Implementations
// are not safe for concurrent use; the recognition engine serializes
// all calls on its consumer goroutine.
type Recognizer interface {
	Accept(ctx context.Context, chunk []byte) (Result, error)
	Close() error
}

// Gateway is the seam to the cloning engine and the recognizer. The
// concrete implementations are an HTTP client for the local sidecars
// and an in-process mock.
type Gateway interface {
	Mode() Mode
	Initialize(ctx context.Context) error
	Status(ctx context.Context) Status

	// Synthesize renders text with the engine's base voice and returns
	// the path of the produced WAV.
	Synthesize(ctx context.Context, text, language string, speed float64) (string, error)
	// ConvertVoice rewrites srcWAV's tone color toward the target
	// embedding, writing the result to outPath.
	ConvertVoice(ctx context.Context, srcWAV, srcEmbedding, targetEmbedding, outPath string) error
	// SynthesizeCloned renders text directly in the voice of the
	// reference clip and returns the path of the produced WAV.
	SynthesizeCloned(ctx context.Context, text, referenceWAV, language string, speed float64) (string, error)
	// ExtractEmbedding derives a tone-color embedding from wavPath. With
	// vadGated set, the engine trims non-speech first; that trim can
	// leave too little audio, which surfaces as ErrSpeechTooShort.
	ExtractEmbedding(ctx context.Context, wavPath string, vadGated bool) (string, error)
	// BaseEmbedding returns the engine's base speaker embedding path,
	// used as the conversion source.
	BaseEmbedding(ctx context.Context) (string, error)

	// NewRecognizer opens a speech-to-text session at the given sample
	// rate. A non-nil grammar restricts the vocabulary.
	NewRecognizer(ctx context.Context, sampleRate int, grammar []string) (Recognizer, error)
}
