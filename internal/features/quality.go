package features

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"speechforge/models"
)

// Quality score weights. The composite is a weighted average of an SNR proxy,
// an inverse clipping fraction, and the transcriber's confidence (neutral when
// the backend reports none), clamped to [0,1].
const (
	weightSNR        = 0.5
	weightClipping   = 0.3
	weightConfidence = 0.2

	// neutralConfidence substitutes for backends that expose no confidence.
	neutralConfidence = 0.5

	// clipLevel is the full-scale fraction above which a sample counts as
	// clipped.
	clipLevel = 0.99

	// snrFullScaleDB is the speech-over-floor margin mapped to an SNR
	// component of 1.0.
	snrFullScaleDB = 30.0

	noiseFloorPercentile = 0.2

	// Analysis framing in milliseconds; sample counts are derived from the
	// clip's rate so the windows keep their duration at any sample rate.
	qualityFrameMs = 25
	qualityHopMs   = 10
)

// ScoreQuality computes the composite [0,1] quality of a clip. confidence is
// the transcriber's estimate in [0,1], or negative when unknown. The result
// depends only on the inputs, so identical clips always score identically.
func ScoreQuality(samples []float64, sampleRate int, confidence float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	snr := snrComponent(samples, sampleRate)

	var clipped int
	for _, s := range samples {
		if math.Abs(s) >= clipLevel {
			clipped++
		}
	}
	clipScore := 1.0 - float64(clipped)/float64(len(samples))

	conf := confidence
	if conf < 0 {
		conf = neutralConfidence
	} else if conf > 1 {
		conf = 1
	}

	score := weightSNR*snr + weightClipping*clipScore + weightConfidence*conf
	return math.Max(0, math.Min(1, score))
}

// snrComponent estimates speech energy over the noise floor and normalizes
// the margin to [0,1].
func snrComponent(samples []float64, sampleRate int) float64 {
	energies := frameEnergiesDB(samples, qualityFrameMs*sampleRate/1000, qualityHopMs*sampleRate/1000)
	if len(energies) == 0 {
		// Clip shorter than one analysis frame; fall back to overall level.
		rms := rms(samples)
		return math.Min(1, rms/0.1)
	}

	sorted := make([]float64, len(energies))
	copy(sorted, energies)
	sort.Float64s(sorted)
	floor := stat.Quantile(noiseFloorPercentile, stat.Empirical, sorted, nil)

	var speechSum float64
	var speechN int
	for _, e := range energies {
		if e > floor {
			speechSum += e
			speechN++
		}
	}
	if speechN == 0 {
		return 0
	}
	marginDB := speechSum/float64(speechN) - floor
	return math.Max(0, math.Min(1, marginDB/snrFullScaleDB))
}

// Analyze measures the raw signal properties persisted alongside each
// segment: RMS volume, spectral flatness as a noise proxy, SNR margin,
// zero-crossing rate and spectral centroid.
func Analyze(samples []float64, sampleRate int) models.SignalMetrics {
	if len(samples) == 0 {
		return models.SignalMetrics{VolumeDB: -60, NoiseRatio: 1}
	}

	volume := rms(samples)
	volumeDB := 20 * math.Log10(volume+1e-10)

	var crossings int
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	zcr := float64(crossings) / float64(len(samples))

	flatness, centroid := spectralShape(samples, sampleRate)

	energies := frameEnergiesDB(samples, qualityFrameMs*sampleRate/1000, qualityHopMs*sampleRate/1000)
	var snrDB float64
	if len(energies) > 0 {
		sorted := make([]float64, len(energies))
		copy(sorted, energies)
		sort.Float64s(sorted)
		floor := stat.Quantile(noiseFloorPercentile, stat.Empirical, sorted, nil)
		var sum float64
		var n int
		for _, e := range energies {
			if e > floor {
				sum += e
				n++
			}
		}
		if n > 0 {
			snrDB = sum/float64(n) - floor
		}
	}

	return models.SignalMetrics{
		Volume:           volume,
		VolumeDB:         volumeDB,
		NoiseRatio:       flatness,
		SNREstimate:      snrDB,
		ZeroCrossingRate: zcr,
		SpectralCentroid: centroid,
	}
}

// spectralShape computes spectral flatness (geometric over arithmetic mean of
// the magnitude spectrum, 1.0 for white noise) and the spectral centroid in
// Hz from a single FFT of a centered analysis window.
func spectralShape(samples []float64, sampleRate int) (flatness, centroid float64) {
	const maxWindow = 16384

	n := len(samples)
	if n > maxWindow {
		off := (n - maxWindow) / 2
		samples = samples[off : off+maxWindow]
		n = maxWindow
	}
	// Zero-pad to a power of two for the FFT.
	size := 1
	for size < n {
		size <<= 1
	}
	padded := make([]float64, size)
	copy(padded, samples)

	fft := fourier.NewFFT(size)
	coeffs := fft.Coefficients(nil, padded)

	var logSum, sum, weighted float64
	var bins int
	for i := 1; i < len(coeffs); i++ { // skip DC
		mag := cmplxAbs(coeffs[i])
		freq := float64(i) * float64(sampleRate) / float64(size)
		sum += mag
		weighted += freq * mag
		logSum += math.Log(mag + 1e-12)
		bins++
	}
	if bins == 0 || sum == 0 {
		return 1, 0
	}

	geoMean := math.Exp(logSum / float64(bins))
	arithMean := sum / float64(bins)
	flatness = geoMean / (arithMean + 1e-12)
	if flatness > 1 {
		flatness = 1
	}
	centroid = weighted / sum
	return flatness, centroid
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func rms(samples []float64) float64 {
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// frameEnergiesDB mirrors the segmenter's envelope so quality scoring and
// segmentation agree on what counts as signal versus floor.
func frameEnergiesDB(samples []float64, frame, hop int) []float64 {
	if len(samples) < frame {
		return nil
	}
	out := make([]float64, 0, (len(samples)-frame)/hop+1)
	for i := 0; i+frame <= len(samples); i += hop {
		var sum float64
		for _, v := range samples[i : i+frame] {
			sum += v * v
		}
		out = append(out, 20*math.Log10(math.Sqrt(sum/float64(frame))+1e-10))
	}
	return out
}
