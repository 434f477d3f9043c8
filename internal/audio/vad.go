package audio

// VADConfig tunes the energy-based voice activity detector.
type VADConfig struct {
	EnergyThreshold float64 // frame RMS above this counts as speech
	SilenceFrames   int     // consecutive quiet frames that end a speech run
	FrameSize       int     // samples per frame
}

// DefaultVADConfig returns 20ms frames at 16kHz with a moderate threshold.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10,
		FrameSize:       320,
	}
}

// VADDetector tracks speech activity across consecutive frames.
type VADDetector struct {
	config         VADConfig
	silenceCounter int
	speaking       bool
}

func NewVADDetector(config VADConfig) *VADDetector {
	if config.FrameSize <= 0 {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// ProcessFrame updates the detector with one frame and reports
// (speaking, speechStarted, speechEnded).
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	frameHasSpeech := CalculateRMS(samples) > v.config.EnergyThreshold

	var started, ended bool
	if frameHasSpeech {
		v.silenceCounter = 0
		if !v.speaking {
			started = true
			v.speaking = true
		}
	} else {
		v.silenceCounter++
		if v.speaking && v.silenceCounter >= v.config.SilenceFrames {
			ended = true
			v.speaking = false
			v.silenceCounter = 0
		}
	}
	return v.speaking, started, ended
}

// Reset clears detector state between clips.
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.speaking = false
}
