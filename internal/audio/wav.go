package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// EncodeWAV wraps a clip in a PCM16LE mono WAV container.
func EncodeWAV(c Clip) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAVTo(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAVFile writes a clip as a PCM16LE mono WAV file.
func WriteWAVFile(path string, c Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteWAVTo(f, c)
}

// WriteWAVTo writes a clip to out as a PCM16LE mono WAV stream.
func WriteWAVTo(out io.Writer, c Clip) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	sampleRate := c.Rate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	pcm := SamplesToBytes(c.Samples)
	dataSize := uint32(len(pcm))
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	w := bufio.NewWriter(out)

	// RIFF header.
	if _, err := w.WriteString("RIFF"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(36)+dataSize); err != nil {
		return err
	}
	if _, err := w.WriteString("WAVE"); err != nil {
		return err
	}

	// fmt chunk.
	if _, err := w.WriteString("fmt "); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(16)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(audioFormat)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(numChannels)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, byteRate); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, blockAlign); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(bitsPerSample)); err != nil {
		return err
	}

	// data chunk.
	if _, err := w.WriteString("data"); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}

// DecodeWAVFile reads a PCM16 WAV file into a mono clip.
func DecodeWAVFile(path string) (Clip, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Clip{}, err
	}
	return DecodeWAV(data)
}

// DecodeWAV parses a PCM16 WAV stream. Stereo input is downmixed to mono
// by averaging channels. Chunks other than fmt and data are skipped.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, ErrNotWAV
	}

	var (
		sampleRate  int
		numChannels int
		bits        int
		pcm         []byte
		haveFmt     bool
	)

	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			// Tolerate a final chunk whose declared size overruns the file.
			size = len(data) - body
			if size < 0 {
				break
			}
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return Clip{}, fmt.Errorf("audio: fmt chunk too small (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return Clip{}, fmt.Errorf("audio: unsupported WAV format %d, want PCM", format)
			}
			numChannels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}
		// Chunks are word aligned.
		if size%2 == 1 {
			size++
		}
		off = body + size
	}

	if !haveFmt || pcm == nil {
		return Clip{}, ErrNotWAV
	}
	if bits != 16 {
		return Clip{}, fmt.Errorf("audio: unsupported bit depth %d, want 16", bits)
	}
	if numChannels < 1 || numChannels > 2 {
		return Clip{}, fmt.Errorf("audio: unsupported channel count %d", numChannels)
	}
	if sampleRate <= 0 {
		return Clip{}, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}

	samples := BytesToSamples(pcm)
	if numChannels == 2 {
		mono := make([]int16, len(samples)/2)
		for i := range mono {
			mono[i] = int16((int32(samples[2*i]) + int32(samples[2*i+1])) / 2)
		}
		samples = mono
	}
	return Clip{Samples: samples, Rate: sampleRate}, nil
}

// SamplesToBytes serializes int16 samples as little-endian PCM bytes.
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples parses little-endian PCM bytes into int16 samples. A
// trailing odd byte is dropped.
func BytesToSamples(pcm []byte) []int16 {
	n := len(pcm) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
