package audio

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testPreprocessor() *Preprocessor {
	return NewPreprocessor(22050, 3, 5, DefaultVADConfig(), zerolog.Nop())
}

func writeClip(t *testing.T, dir, name string, c Clip) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := WriteWAVFile(path, c); err != nil {
		t.Fatalf("WriteWAVFile(%s) error = %v", name, err)
	}
	return path
}

func TestCombineJoinsWithGap(t *testing.T) {
	dir := t.TempDir()
	p := testPreprocessor()
	a := writeClip(t, dir, "a.wav", sineClip(440, 10000, 1.0, 22050))
	b := writeClip(t, dir, "b.wav", sineClip(220, 10000, 1.0, 22050))

	combined, err := p.Combine([]string{a, b}, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Combine() error = %v", err)
	}
	want := 22050 + 11025 + 22050 // 1s + 500ms gap + 1s
	if len(combined.Samples) != want {
		t.Fatalf("combined samples = %d, want %d", len(combined.Samples), want)
	}
}

func TestCombineResamplesInput(t *testing.T) {
	dir := t.TempDir()
	p := testPreprocessor()
	a := writeClip(t, dir, "a.wav", sineClip(440, 10000, 1.0, 44100))

	combined, err := p.Combine([]string{a}, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Combine() error = %v", err)
	}
	if combined.Rate != 22050 {
		t.Fatalf("rate = %d, want 22050", combined.Rate)
	}
	// Single input gets no gap appended.
	if got := combined.Seconds(); math.Abs(got-1.0) > 0.01 {
		t.Fatalf("duration = %.3fs, want 1s", got)
	}
}

func TestCombineSkipsBadSamples(t *testing.T) {
	dir := t.TempDir()
	p := testPreprocessor()
	good := writeClip(t, dir, "good.wav", sineClip(440, 10000, 1.0, 22050))
	bad := filepath.Join(dir, "bad.wav")
	if err := os.WriteFile(bad, []byte("not a wav"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	combined, err := p.Combine([]string{bad, good}, 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Combine() error = %v", err)
	}
	if len(combined.Samples) == 0 {
		t.Fatal("Combine() returned empty clip")
	}

	if _, err := p.Combine([]string{bad}, 500*time.Millisecond); err == nil {
		t.Fatal("Combine() with only bad samples should fail")
	}
}

func TestNormalizeLoudness(t *testing.T) {
	p := testPreprocessor()
	quiet := sineClip(440, 1000, 1.0, 22050)
	normalized := p.NormalizeLoudness(quiet, -20)
	if got := normalized.DBFS(); math.Abs(got-(-20)) > 0.5 {
		t.Fatalf("DBFS after normalize = %.2f, want -20", got)
	}

	silent := Clip{Samples: make([]int16, 1000), Rate: 22050}
	if out := p.NormalizeLoudness(silent, -20); out.Peak() != 0 {
		t.Fatal("normalizing silence should not invent signal")
	}
}

func TestValidate(t *testing.T) {
	p := testPreprocessor()
	tests := []struct {
		name       string
		clip       Clip
		wantOK     bool
		wantReason string
		wantWarn   bool
	}{
		{"good", sineClip(440, 10000, 4.0, 22050), true, "", false},
		{"silent", Clip{Samples: make([]int16, 22050 * 4), Rate: 22050}, false, "silent", false},
		{"too short", sineClip(440, 10000, 1.0, 22050), false, "too short", false},
		{"short and silent reports silent", Clip{Samples: make([]int16, 100), Rate: 22050}, false, "silent", false},
		{"quiet", sineClip(440, 40, 4.0, 22050), true, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Validate(tt.clip)
			if res.OK != tt.wantOK {
				t.Fatalf("Validate().OK = %v, want %v (reason %q)", res.OK, tt.wantOK, res.Reason)
			}
			if tt.wantReason != "" && !strings.Contains(res.Reason, tt.wantReason) {
				t.Fatalf("Validate().Reason = %q, want containing %q", res.Reason, tt.wantReason)
			}
			if tt.wantWarn != (len(res.Warnings) > 0) {
				t.Fatalf("Validate().Warnings = %v, wantWarn = %v", res.Warnings, tt.wantWarn)
			}
		})
	}
}

func TestEstimateSpeechDuration(t *testing.T) {
	p := testPreprocessor()

	// 2s of loud tone followed by 2s of silence: roughly half is speech.
	loud := sineClip(440, 10000, 2.0, 22050)
	clip := loud.Append(Clip{Samples: make([]int16, 22050*2), Rate: 22050})
	speech, approx := p.EstimateSpeechDuration(clip)
	if approx {
		t.Fatal("EstimateSpeechDuration() unexpectedly approximate")
	}
	if speech < 1.5 || speech > 2.7 {
		t.Fatalf("speech = %.2fs, want about 2s", speech)
	}

	// A clip shorter than one frame falls back to the 70% heuristic.
	tiny := Clip{Samples: make([]int16, 10), Rate: 22050}
	speech, approx = p.EstimateSpeechDuration(tiny)
	if !approx {
		t.Fatal("EstimateSpeechDuration() on tiny clip should be approximate")
	}
	if want := tiny.Seconds() * 0.7; math.Abs(speech-want) > 1e-9 {
		t.Fatalf("fallback speech = %v, want %v", speech, want)
	}
}

func TestValidateBatch(t *testing.T) {
	dir := t.TempDir()
	p := testPreprocessor()

	t.Run("enough speech", func(t *testing.T) {
		var paths []string
		for i, name := range []string{"a.wav", "b.wav"} {
			paths = append(paths, writeClip(t, dir, name, sineClip(440+float64(i*100), 10000, 4.0, 22050)))
		}
		batch := p.ValidateBatch(paths)
		if !batch.OK {
			t.Fatalf("ValidateBatch() not OK: %v", batch.Errors)
		}
		if batch.SpeechSeconds < 5 {
			t.Fatalf("SpeechSeconds = %.1f, want >= 5", batch.SpeechSeconds)
		}
		// Under 30s total still gets a recommendation.
		if len(batch.Recommendations) == 0 {
			t.Fatal("expected a duration recommendation")
		}
	})

	t.Run("not enough speech", func(t *testing.T) {
		path := writeClip(t, dir, "short.wav", sineClip(440, 10000, 3.5, 22050))
		batch := p.ValidateBatch([]string{path})
		if batch.OK {
			t.Fatal("ValidateBatch() OK with under 5s of speech")
		}
	})

	t.Run("empty input", func(t *testing.T) {
		batch := p.ValidateBatch(nil)
		if batch.OK {
			t.Fatal("ValidateBatch() OK with no samples")
		}
	})
}

func TestVADDetector(t *testing.T) {
	det := NewVADDetector(VADConfig{EnergyThreshold: 500, SilenceFrames: 2, FrameSize: 4})

	loud := []int16{10000, -10000, 10000, -10000}
	quiet := []int16{0, 0, 0, 0}

	speaking, started, _ := det.ProcessFrame(loud)
	if !speaking || !started {
		t.Fatalf("loud frame: speaking=%v started=%v, want true/true", speaking, started)
	}
	if _, started, _ = det.ProcessFrame(loud); started {
		t.Fatal("second loud frame should not restart speech")
	}
	if _, _, ended := det.ProcessFrame(quiet); ended {
		t.Fatal("one quiet frame should not end speech yet")
	}
	speaking, _, ended := det.ProcessFrame(quiet)
	if speaking || !ended {
		t.Fatalf("after hangover: speaking=%v ended=%v, want false/true", speaking, ended)
	}
}
