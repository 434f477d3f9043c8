package config

import (
	"fmt"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Backend selects which voice-cloning engine the service drives.
const (
	BackendConversion = "conversion" // base TTS + tone-color conversion
	BackendZeroShot   = "zeroshot"   // direct zero-shot cloning from a reference clip
	BackendMock       = "mock"       // in-process fake, used in tests and local dev
)

// Config holds all service configuration, loaded from the environment.
type Config struct {
	Addr            string `envconfig:"ADDR" default:":8085"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT_SECONDS" default:"10"`

	// DataDir is the root for profiles, embeddings and synthesized output.
	DataDir string `envconfig:"DATA_DIR" default:"data"`

	// Backend picks the cloning engine: conversion, zeroshot or mock.
	Backend string `envconfig:"VOICE_BACKEND" default:"conversion"`

	// Engine sidecar endpoints. The TTS engine owns checkpoints and model
	// weights; the recognizer serves offline speech to text.
	EngineURL     string `envconfig:"TTS_ENGINE_URL" default:"http://127.0.0.1:8601"`
	RecognizerURL string `envconfig:"RECOGNIZER_URL" default:"http://127.0.0.1:8602"`
	EngineTimeout int    `envconfig:"ENGINE_TIMEOUT_SECONDS" default:"120"`

	// Audio pipeline knobs.
	TargetSampleRate int     `envconfig:"TARGET_SAMPLE_RATE" default:"22050"`
	CombineGapMS     int     `envconfig:"COMBINE_GAP_MS" default:"500"`
	ReferenceGapMS   int     `envconfig:"REFERENCE_GAP_MS" default:"300"`
	NormalizeDBFS    float64 `envconfig:"NORMALIZE_TARGET_DBFS" default:"-20"`
	ReferenceMaxSec  float64 `envconfig:"REFERENCE_MAX_SECONDS" default:"30"`
	MinClipSeconds   float64 `envconfig:"MIN_CLIP_SECONDS" default:"3"`
	MinSpeechSeconds float64 `envconfig:"MIN_SPEECH_SECONDS" default:"5"`

	// VAD knobs for speech-duration estimation.
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"500.0"`
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"10"`

	// Synthesis knobs.
	MaxChunkChars int `envconfig:"MAX_CHUNK_CHARS" default:"0"` // 0 = backend default
	ChunkGapMS    int `envconfig:"CHUNK_GAP_MS" default:"150"`

	// Recognition knobs.
	RecognitionSampleRate int `envconfig:"RECOGNITION_SAMPLE_RATE" default:"16000"`
	RecognitionQueueSize  int `envconfig:"RECOGNITION_QUEUE_SIZE" default:"64"`
	RecognitionJoinGrace  int `envconfig:"RECOGNITION_JOIN_GRACE_SECONDS" default:"2"`

	// Optional Postgres sink for profile metadata. Empty keeps the
	// default flat-file sink.
	DatabaseURL string `envconfig:"DATABASE_URL" default:""`

	// Observability.
	LogLevel         string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty        bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsNamespace string `envconfig:"METRICS_NAMESPACE" default:"voiced"`
}

// Load reads configuration from a .env file (if present) and the
// environment, then validates it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and enum fields.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendConversion, BackendZeroShot, BackendMock:
	default:
		return fmt.Errorf("VOICE_BACKEND must be one of conversion, zeroshot, mock; got %q", c.Backend)
	}
	if c.TargetSampleRate <= 0 {
		return fmt.Errorf("TARGET_SAMPLE_RATE must be positive, got %d", c.TargetSampleRate)
	}
	if c.RecognitionSampleRate <= 0 {
		return fmt.Errorf("RECOGNITION_SAMPLE_RATE must be positive, got %d", c.RecognitionSampleRate)
	}
	if c.RecognitionQueueSize <= 0 {
		return fmt.Errorf("RECOGNITION_QUEUE_SIZE must be positive, got %d", c.RecognitionQueueSize)
	}
	if c.CombineGapMS < 0 || c.ReferenceGapMS < 0 || c.ChunkGapMS < 0 {
		return fmt.Errorf("gap durations must not be negative")
	}
	if c.MinClipSeconds <= 0 {
		return fmt.Errorf("MIN_CLIP_SECONDS must be positive, got %v", c.MinClipSeconds)
	}
	if c.MinSpeechSeconds <= 0 {
		return fmt.Errorf("MIN_SPEECH_SECONDS must be positive, got %v", c.MinSpeechSeconds)
	}
	if c.NormalizeDBFS >= 0 {
		return fmt.Errorf("NORMALIZE_TARGET_DBFS must be negative, got %v", c.NormalizeDBFS)
	}
	if c.MaxChunkChars < 0 {
		return fmt.Errorf("MAX_CHUNK_CHARS must not be negative, got %d", c.MaxChunkChars)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT_SECONDS must be positive, got %d", c.ShutdownTimeout)
	}
	return nil
}

// ProfilesDir returns the directory holding profile metadata and samples.
func (c *Config) ProfilesDir() string { return filepath.Join(c.DataDir, "profiles") }

// OutputDir returns the directory holding synthesized audio artifacts.
func (c *Config) OutputDir() string { return filepath.Join(c.DataDir, "output") }

// EmbeddingsDir returns the directory holding extracted voice artifacts.
func (c *Config) EmbeddingsDir() string { return filepath.Join(c.DataDir, "embeddings") }

// ChunkChars returns the effective chunk budget for the configured backend.
// Conversion pipelines tolerate longer spans than zero-shot cloning.
func (c *Config) ChunkChars() int {
	if c.MaxChunkChars > 0 {
		return c.MaxChunkChars
	}
	if c.Backend == BackendZeroShot {
		return 250
	}
	return 500
}
