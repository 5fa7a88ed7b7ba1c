// Package segmenter splits preprocessed audio into bounded, speech-bearing
// time ranges using an adaptive energy threshold. The algorithm is fully
// deterministic: the same samples always yield the same regions.
package segmenter

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Region is one speech-bearing time range, in seconds from file start.
type Region struct {
	Index int
	Start float64
	End   float64
}

func (r Region) Duration() float64 { return r.End - r.Start }

// Config carries the segmentation thresholds. Defaults live in the config
// package; zero values here are invalid.
type Config struct {
	FrameMs       int
	HopMs         int
	MinSegmentSec float64
	MaxSegmentSec float64
	// MinSilenceSec is the longest pause bridged inside one region; shorter
	// gaps do not split an utterance.
	MinSilenceSec float64
	// SpeechSNRdB is the margin above the noise floor that marks a frame
	// as speech.
	SpeechSNRdB float64
	// NoiseFloorPercentile selects the frame-energy percentile used as the
	// per-file noise floor, so quiet recordings are not classified as all
	// silence by an absolute constant.
	NoiseFloorPercentile float64
}

type Segmenter struct {
	cfg Config
}

func New(cfg Config) *Segmenter {
	return &Segmenter{cfg: cfg}
}

// Segment returns the ordered, non-overlapping speech regions of the signal.
// A file with no detected speech yields zero regions. A file shorter than the
// minimum segment duration yields exactly one region spanning the whole file,
// as does a file whose only speech would otherwise be dropped as too short.
func (s *Segmenter) Segment(samples []float64, sampleRate int) []Region {
	if len(samples) == 0 {
		return nil
	}
	total := float64(len(samples)) / float64(sampleRate)

	if total < s.cfg.MinSegmentSec {
		return []Region{{Index: 0, Start: 0, End: total}}
	}

	frame := s.cfg.FrameMs * sampleRate / 1000
	hop := s.cfg.HopMs * sampleRate / 1000
	energies := frameEnergiesDB(samples, frame, hop)
	if len(energies) == 0 {
		return []Region{{Index: 0, Start: 0, End: total}}
	}

	floorDB := noiseFloorDB(energies, s.cfg.NoiseFloorPercentile)
	threshold := floorDB + s.cfg.SpeechSNRdB

	hopSec := float64(hop) / float64(sampleRate)
	regions := speechRuns(energies, threshold, hopSec, total)
	regions = bridgeGaps(regions, s.cfg.MinSilenceSec)
	regions = s.splitLong(regions, energies, hopSec)

	kept := regions[:0]
	for _, r := range regions {
		if r.Duration() >= s.cfg.MinSegmentSec {
			kept = append(kept, r)
		}
	}

	if len(kept) == 0 {
		if len(regions) == 0 {
			// No speech at all; the file-level pipeline still runs.
			return nil
		}
		// Some speech was found but every region fell under the minimum;
		// keep the whole file as one segment rather than discard it.
		return []Region{{Index: 0, Start: 0, End: total}}
	}

	for i := range kept {
		kept[i].Index = i
	}
	return kept
}

// frameEnergiesDB computes the short-window RMS energy envelope in dB.
func frameEnergiesDB(samples []float64, frame, hop int) []float64 {
	if frame <= 0 || hop <= 0 || len(samples) < frame {
		return nil
	}
	n := (len(samples)-frame)/hop + 1
	out := make([]float64, 0, n)
	for i := 0; i+frame <= len(samples); i += hop {
		var sum float64
		for _, v := range samples[i : i+frame] {
			sum += v * v
		}
		rms := math.Sqrt(sum / float64(frame))
		out = append(out, 20*math.Log10(rms+1e-10))
	}
	return out
}

// noiseFloorDB estimates the per-file noise floor as a low percentile of the
// frame energies.
func noiseFloorDB(energies []float64, percentile float64) float64 {
	sorted := make([]float64, len(energies))
	copy(sorted, energies)
	sort.Float64s(sorted)
	return stat.Quantile(percentile, stat.Empirical, sorted, nil)
}

// speechRuns merges consecutive above-threshold frames into candidate regions.
func speechRuns(energies []float64, threshold, hopSec, total float64) []Region {
	var regions []Region
	inSpeech := false
	var start float64
	for i, e := range energies {
		t := float64(i) * hopSec
		if e > threshold && !inSpeech {
			start = t
			inSpeech = true
		} else if e <= threshold && inSpeech {
			regions = append(regions, Region{Start: start, End: t})
			inSpeech = false
		}
	}
	if inSpeech {
		regions = append(regions, Region{Start: start, End: total})
	}
	return regions
}

// bridgeGaps merges adjacent regions separated by silence shorter than
// minSilence, so brief pauses do not fragment one utterance.
func bridgeGaps(regions []Region, minSilence float64) []Region {
	if len(regions) < 2 {
		return regions
	}
	merged := regions[:1]
	for _, r := range regions[1:] {
		last := &merged[len(merged)-1]
		if r.Start-last.End < minSilence {
			last.End = r.End
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}

// splitLong recursively splits any region longer than the maximum at the
// lowest-energy frame nearest its midpoint.
func (s *Segmenter) splitLong(regions []Region, energies []float64, hopSec float64) []Region {
	var out []Region
	for _, r := range regions {
		out = append(out, s.splitRegion(r, energies, hopSec)...)
	}
	return out
}

func (s *Segmenter) splitRegion(r Region, energies []float64, hopSec float64) []Region {
	if r.Duration() <= s.cfg.MaxSegmentSec {
		return []Region{r}
	}

	startFrame := int(r.Start / hopSec)
	endFrame := int(r.End / hopSec)
	if endFrame > len(energies) {
		endFrame = len(energies)
	}
	mid := (startFrame + endFrame) / 2

	// Search the central half of the region for the quietest frame, preferring
	// the one closest to the midpoint on ties so splits are stable.
	lo := startFrame + (endFrame-startFrame)/4
	hi := endFrame - (endFrame-startFrame)/4
	best := mid
	bestEnergy := math.Inf(1)
	for i := lo; i < hi; i++ {
		e := energies[i]
		if e < bestEnergy || (e == bestEnergy && abs(i-mid) < abs(best-mid)) {
			best = i
			bestEnergy = e
		}
	}

	cut := float64(best) * hopSec
	if cut <= r.Start || cut >= r.End {
		cut = r.Start + r.Duration()/2
	}

	left := Region{Start: r.Start, End: cut}
	right := Region{Start: cut, End: r.End}
	return append(s.splitRegion(left, energies, hopSec), s.splitRegion(right, energies, hopSec)...)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
