package audio

import (
	"math"
	"time"
)

// Clip is decoded mono PCM16 audio at a known sample rate.
type Clip struct {
	Samples []int16
	Rate    int
}

// Silence returns a clip of silence with the given duration.
func Silence(d time.Duration, rate int) Clip {
	n := int(float64(rate) * d.Seconds())
	if n < 0 {
		n = 0
	}
	return Clip{Samples: make([]int16, n), Rate: rate}
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.Rate <= 0 || len(c.Samples) == 0 {
		return 0
	}
	return time.Duration(float64(len(c.Samples)) / float64(c.Rate) * float64(time.Second))
}

// Seconds returns the playback length in seconds.
func (c Clip) Seconds() float64 {
	if c.Rate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.Rate)
}

// Peak returns the largest absolute sample value.
func (c Clip) Peak() int {
	peak := 0
	for _, s := range c.Samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// RMS returns the root-mean-square amplitude of the clip.
func (c Clip) RMS() float64 {
	return CalculateRMS(c.Samples)
}

// DBFS returns the RMS loudness relative to full scale. A silent clip
// returns negative infinity.
func (c Clip) DBFS() float64 {
	rms := c.RMS()
	if rms <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(rms/32768.0)
}

// ApplyGain scales the clip by the given decibel amount, clamping at the
// int16 range.
func (c Clip) ApplyGain(db float64) Clip {
	factor := math.Pow(10, db/20)
	out := make([]int16, len(c.Samples))
	for i, s := range c.Samples {
		v := float64(s) * factor
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		out[i] = int16(v)
	}
	return Clip{Samples: out, Rate: c.Rate}
}

// Resample converts the clip to the target rate using linear interpolation.
func (c Clip) Resample(rate int) Clip {
	if rate <= 0 || c.Rate <= 0 || c.Rate == rate {
		return c
	}
	if len(c.Samples) == 0 {
		return Clip{Rate: rate}
	}
	ratio := float64(rate) / float64(c.Rate)
	n := int(float64(len(c.Samples)) * ratio)
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		srcPos := float64(i) / ratio
		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(c.Samples) {
			idx1 = len(c.Samples) - 1
		}
		frac := srcPos - float64(idx0)
		out[i] = int16(float64(c.Samples[idx0])*(1-frac) + float64(c.Samples[idx1])*frac)
	}
	return Clip{Samples: out, Rate: rate}
}

// Trim caps the clip at the given duration.
func (c Clip) Trim(max time.Duration) Clip {
	if c.Rate <= 0 {
		return c
	}
	n := int(float64(c.Rate) * max.Seconds())
	if n < 0 {
		n = 0
	}
	if n >= len(c.Samples) {
		return c
	}
	return Clip{Samples: c.Samples[:n], Rate: c.Rate}
}

// Append concatenates other onto c. The caller resamples first; rates must
// already match.
func (c Clip) Append(other Clip) Clip {
	out := make([]int16, 0, len(c.Samples)+len(other.Samples))
	out = append(out, c.Samples...)
	out = append(out, other.Samples...)
	rate := c.Rate
	if rate <= 0 {
		rate = other.Rate
	}
	return Clip{Samples: out, Rate: rate}
}

// CalculateRMS returns the root-mean-square amplitude of the samples.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
