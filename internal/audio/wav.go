package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// ParseWAV decodes a RIFF/WAVE byte stream into float64 samples in [-1, 1]
// and returns the source sample rate. 16-bit and 8-bit PCM are supported;
// multi-channel input is down-mixed to mono by averaging.
func ParseWAV(data []byte) ([]float64, int, error) {
	if len(data) < 44 {
		return nil, 0, fmt.Errorf("%w: truncated WAV header", ErrUnsupportedFormat)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("%w: missing RIFF/WAVE magic", ErrUnsupportedFormat)
	}

	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	channels := int(binary.LittleEndian.Uint16(data[22:24]))
	bitsPerSample := int(binary.LittleEndian.Uint16(data[34:36]))
	if sampleRate <= 0 || channels <= 0 {
		return nil, 0, fmt.Errorf("%w: invalid fmt chunk", ErrUnsupportedFormat)
	}

	// The data chunk is not always at the canonical 44-byte offset; scan for it.
	dataOffset := -1
	dataLen := 0
	for i := 12; i+8 <= len(data); i++ {
		if string(data[i:i+4]) == "data" {
			dataOffset = i + 8
			dataLen = int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
			break
		}
	}
	if dataOffset < 0 {
		return nil, 0, fmt.Errorf("%w: no data chunk", ErrUnsupportedFormat)
	}
	pcm := data[dataOffset:]
	if dataLen > 0 && dataLen < len(pcm) {
		pcm = pcm[:dataLen]
	}

	var samples []float64
	switch bitsPerSample {
	case 16:
		n := len(pcm) / 2
		samples = make([]float64, n)
		for i := 0; i < n; i++ {
			s := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
			samples[i] = float64(s) / 32768.0
		}
	case 8:
		samples = make([]float64, len(pcm))
		for i, b := range pcm {
			samples[i] = (float64(b) - 128.0) / 128.0
		}
	default:
		return nil, 0, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, bitsPerSample)
	}

	if channels > 1 {
		mono := make([]float64, len(samples)/channels)
		for i := range mono {
			var sum float64
			for c := 0; c < channels; c++ {
				sum += samples[i*channels+c]
			}
			mono[i] = sum / float64(channels)
		}
		samples = mono
	}

	return samples, sampleRate, nil
}

// EncodeWAV renders mono float64 samples as a 16-bit PCM WAV byte stream.
func EncodeWAV(samples []float64, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	for _, s := range samples {
		v := int16(math.Round(clamp(s, -1, 1) * 32767.0))
		binary.Write(buf, binary.LittleEndian, v)
	}

	return buf.Bytes()
}

// WriteWAV writes mono samples to path as 16-bit PCM.
func WriteWAV(path string, samples []float64, sampleRate int) error {
	return os.WriteFile(path, EncodeWAV(samples, sampleRate), 0o644)
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
