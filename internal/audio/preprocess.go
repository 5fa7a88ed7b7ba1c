package audio

import (
	"context"
	"math"
)

// Preprocessor normalizes raw uploads into the fixed format the transcriber
// and segmenter expect: mono float64 PCM at TargetRate, peak-normalized.
type Preprocessor struct {
	TargetRate int
	// TargetPeak is the full-scale fraction the loudest sample is scaled to,
	// leaving headroom against clipping.
	TargetPeak float64
	// MinRMS is the energy floor below which input is rejected as silent.
	MinRMS     float64
	FFmpegPath string
}

// Processed is the preprocessor output consumed by the rest of the pipeline.
type Processed struct {
	Samples    []float64
	SampleRate int
	Duration   float64
}

func NewPreprocessor(targetRate int, targetPeak, minRMS float64, ffmpegPath string) *Preprocessor {
	return &Preprocessor{
		TargetRate: targetRate,
		TargetPeak: targetPeak,
		MinRMS:     minRMS,
		FFmpegPath: ffmpegPath,
	}
}

// Process decodes, down-mixes, resamples and normalizes one upload. WAV input
// is parsed in-process; anything else goes through ffmpeg. Returns
// ErrUnsupportedFormat or ErrEmptyOrSilentAudio for inputs the pipeline must
// reject outright.
func (p *Preprocessor) Process(ctx context.Context, data []byte) (*Processed, error) {
	var (
		samples []float64
		rate    int
		err     error
	)
	if IsWAV(data) {
		samples, rate, err = ParseWAV(data)
	} else {
		samples, rate, err = decodeWithFFmpeg(ctx, p.FFmpegPath, data, p.TargetRate)
	}
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrEmptyOrSilentAudio
	}

	if rate != p.TargetRate {
		samples = Resample(samples, rate, p.TargetRate)
		rate = p.TargetRate
	}

	// Gate on the decoded signal, before normalization boosts quiet noise
	// above the threshold.
	if RMS(samples) < p.MinRMS {
		return nil, ErrEmptyOrSilentAudio
	}

	samples = normalizePeak(samples, p.TargetPeak)

	return &Processed{
		Samples:    samples,
		SampleRate: rate,
		Duration:   float64(len(samples)) / float64(rate),
	}, nil
}

// Resample converts samples from one rate to another by linear interpolation.
// The output length is chosen so duration drifts by less than one sample
// period regardless of the ratio.
func Resample(samples []float64, from, to int) []float64 {
	if from == to || len(samples) == 0 {
		return samples
	}
	outLen := int(math.Round(float64(len(samples)) * float64(to) / float64(from)))
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float64, outLen)
	ratio := float64(len(samples)-1) / float64(outLen-1)
	if outLen == 1 {
		ratio = 0
	}
	for i := range out {
		pos := float64(i) * ratio
		lo := int(pos)
		hi := lo + 1
		if hi >= len(samples) {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(lo)
		out[i] = samples[lo]*(1-frac) + samples[hi]*frac
	}
	return out
}

// RMS returns the root-mean-square amplitude of the signal.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// normalizePeak scales so the loudest sample sits at targetPeak full scale.
// Silent input is returned unchanged; the RMS gate catches it afterwards.
func normalizePeak(samples []float64, targetPeak float64) []float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	if peak == 0 {
		return samples
	}
	gain := targetPeak / peak
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s * gain
	}
	return out
}
