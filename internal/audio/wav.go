package audio

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/sightlens/platform/internal/apperr"
)

// DecodeWAV parses a PCM16 RIFF/WAVE buffer into mono float32 samples
// in [-1,1] and the sample rate. Multi-channel audio is downmixed by
// averaging.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, apperr.New(apperr.CodeSynthesisFailed, "not a RIFF/WAVE buffer")
	}

	var (
		sampleRate    int
		numChannels   int
		bitsPerSample int
		pcm           []byte
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, apperr.New(apperr.CodeSynthesisFailed, "short fmt chunk")
			}
			format := int(binary.LittleEndian.Uint16(data[body : body+2]))
			if format != 1 {
				return nil, 0, apperr.Newf(apperr.CodeSynthesisFailed, "unsupported WAV format %d", format)
			}
			numChannels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if sampleRate == 0 || pcm == nil {
		return nil, 0, apperr.New(apperr.CodeSynthesisFailed, "missing fmt or data chunk")
	}
	if bitsPerSample != 16 {
		return nil, 0, apperr.Newf(apperr.CodeSynthesisFailed, "unsupported bit depth %d", bitsPerSample)
	}
	if numChannels < 1 {
		numChannels = 1
	}

	frames := len(pcm) / 2 / numChannels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < numChannels; ch++ {
			off := (i*numChannels + ch) * 2
			s := int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
			sum += float32(s) / 32768
		}
		out[i] = sum / float32(numChannels)
	}
	return out, sampleRate, nil
}

// Tone synthesizes a sine pulse with a short linear attack and decay so
// it does not click.
func Tone(freq float64, dur time.Duration, sampleRate float64) []float32 {
	n := int(dur.Seconds() * sampleRate)
	if n <= 0 {
		return nil
	}
	ramp := n / 10
	if ramp < 1 {
		ramp = 1
	}

	out := make([]float32, n)
	for i := range out {
		v := math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
		env := 1.0
		if i < ramp {
			env = float64(i) / float64(ramp)
		} else if n-1-i < ramp {
			env = float64(n-1-i) / float64(ramp)
		}
		out[i] = float32(v * env * 0.6)
	}
	return out
}
