package model

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsp-tools/voiced/internal/audio"
)

// MockGateway is an in-process engine used in tests and local dev. It
// writes real WAV files so downstream concatenation and serving work
// unchanged.
type MockGateway struct {
	ModeVal Mode
	Dir     string

	// Failure injection. Leaving a field nil/zero keeps the happy path.
	SynthesizeErr error
	ConvertErr    error
	CloneErr      error
	ExtractErr    error
	// ExtractVADGatedErr fires only when vadGated is set, which mirrors
	// the engine rejecting VAD-trimmed audio as too short.
	ExtractVADGatedErr error
	// RecognizerFactory overrides NewRecognizer when set.
	RecognizerFactory func(sampleRate int, grammar []string) (Recognizer, error)
	// ExtractHook runs at the start of every ExtractEmbedding call.
	// Tests use it to hold a training job in flight.
	ExtractHook func()
	// SynthesizeErrFor fails synthesis for specific text values.
	SynthesizeErrFor map[string]error

	mu           sync.Mutex
	initialized  bool
	seq          int
	extractCalls []bool
}

func NewMockGateway(mode Mode, dir string) *MockGateway {
	_ = os.MkdirAll(dir, 0o755)
	return &MockGateway{ModeVal: mode, Dir: dir}
}

func (g *MockGateway) Mode() Mode { return g.ModeVal }

func (g *MockGateway) Initialize(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initialized = true
	return nil
}

func (g *MockGateway) Status(context.Context) Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{Initialized: g.initialized, AssetsFound: true, Mode: g.ModeVal}
}

// ExtractCalls returns the vadGated flag of each ExtractEmbedding call.
func (g *MockGateway) ExtractCalls() []bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]bool, len(g.extractCalls))
	copy(out, g.extractCalls)
	return out
}

func (g *MockGateway) next(prefix, ext string) string {
	g.mu.Lock()
	g.seq++
	n := g.seq
	g.mu.Unlock()
	return filepath.Join(g.Dir, fmt.Sprintf("%s-%04d%s", prefix, n, ext))
}

func (g *MockGateway) writeTone(path string, seconds float64) error {
	const rate = 22050
	n := int(seconds * rate)
	if n < rate/10 {
		n = rate / 10
	}
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*330*float64(i)/rate))
	}
	return audio.WriteWAVFile(path, audio.Clip{Samples: samples, Rate: rate})
}

func (g *MockGateway) Synthesize(_ context.Context, text, _ string, _ float64) (string, error) {
	if g.SynthesizeErr != nil {
		return "", g.SynthesizeErr
	}
	if err, ok := g.SynthesizeErrFor[text]; ok {
		return "", err
	}
	path := g.next("tts", ".wav")
	// Roughly 15 characters per second of speech.
	if err := g.writeTone(path, float64(len(text))/15); err != nil {
		return "", err
	}
	return path, nil
}

func (g *MockGateway) ConvertVoice(_ context.Context, srcWAV, _, _, outPath string) error {
	if g.ConvertErr != nil {
		return g.ConvertErr
	}
	data, err := os.ReadFile(srcWAV)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}

func (g *MockGateway) SynthesizeCloned(_ context.Context, text, _, _ string, _ float64) (string, error) {
	if g.CloneErr != nil {
		return "", g.CloneErr
	}
	if err, ok := g.SynthesizeErrFor[text]; ok {
		return "", err
	}
	path := g.next("clone", ".wav")
	if err := g.writeTone(path, float64(len(text))/15); err != nil {
		return "", err
	}
	return path, nil
}

func (g *MockGateway) ExtractEmbedding(_ context.Context, wavPath string, vadGated bool) (string, error) {
	if g.ExtractHook != nil {
		g.ExtractHook()
	}
	g.mu.Lock()
	g.extractCalls = append(g.extractCalls, vadGated)
	g.mu.Unlock()

	if vadGated && g.ExtractVADGatedErr != nil {
		return "", g.ExtractVADGatedErr
	}
	if g.ExtractErr != nil {
		return "", g.ExtractErr
	}
	if _, err := os.Stat(wavPath); err != nil {
		return "", err
	}
	path := g.next("embedding", ".bin")
	if err := os.WriteFile(path, []byte("mock-embedding"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (g *MockGateway) BaseEmbedding(context.Context) (string, error) {
	path := filepath.Join(g.Dir, "base-embedding.bin")
	if _, err := os.Stat(path); err != nil {
		if err := os.WriteFile(path, []byte("mock-base"), 0o644); err != nil {
			return "", err
		}
	}
	return path, nil
}

func (g *MockGateway) NewRecognizer(_ context.Context, sampleRate int, grammar []string) (Recognizer, error) {
	g.mu.Lock()
	initialized := g.initialized
	g.mu.Unlock()
	if !initialized {
		return nil, ErrNotInitialized
	}
	if g.RecognizerFactory != nil {
		return g.RecognizerFactory(sampleRate, grammar)
	}
	return &MockRecognizer{}, nil
}

// MockRecognizer emits a partial for every chunk and a final once the
// script runs out, unless AcceptFn overrides the behavior.
type MockRecognizer struct {
	AcceptFn func(chunk []byte) (Result, error)

	mu     sync.Mutex
	chunks int
	closed bool
}

func (r *MockRecognizer) Accept(_ context.Context, chunk []byte) (Result, error) {
	if r.AcceptFn != nil {
		return r.AcceptFn(chunk)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks++
	if r.chunks%4 == 0 {
		return Result{Final: true, Text: fmt.Sprintf("utterance %d", r.chunks/4)}, nil
	}
	return Result{Text: fmt.Sprintf("partial %d", r.chunks)}, nil
}

func (r *MockRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed reports whether Close was called.
func (r *MockRecognizer) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
