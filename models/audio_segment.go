package models

import (
	"fmt"
	"time"
)

// SignalMetrics are the raw audio measurements captured per segment. They
// mirror the quality assessment columns in the segments table and feed the
// composite quality score.
type SignalMetrics struct {
	Volume           float64 `json:"volume"`
	VolumeDB         float64 `json:"volume_db"`
	NoiseRatio       float64 `json:"noise_ratio"`
	SNREstimate      float64 `json:"snr_estimate"`
	ZeroCrossingRate float64 `json:"zero_crossing_rate"`
	SpectralCentroid float64 `json:"spectral_centroid"`
}

// AudioSegment is one time-bounded clip cut from a parent AudioFile with its
// own transcript, speech metrics and quality assessment. Segments are created
// once during pipeline processing and only deleted by deleting the parent.
type AudioSegment struct {
	ID             int64   `json:"id"`
	OriginalFileID int64   `json:"original_file_id"`
	SegmentIndex   int     `json:"segment_index"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
	Duration       float64 `json:"duration"`
	Transcript     string  `json:"transcript"`
	AudioPath      string  `json:"audio_path"`
	WPM            float64 `json:"wpm"`
	FillerRatio    float64 `json:"filler_ratio"`
	SentimentScore float64 `json:"sentiment_score"`
	QualityScore   float64 `json:"quality_score"`

	Signal           SignalMetrics `json:"signal"`
	IsMLReady        bool          `json:"is_ml_ready"`
	TrainingPriority float64       `json:"training_priority"`

	CreatedAt time.Time `json:"created_at"`
}

// NewAudioSegment validates the segment invariants against the parent file
// duration. fileDuration must be the decoded duration of the parent.
func NewAudioSegment(index int, start, end, fileDuration float64) (*AudioSegment, error) {
	if index < 0 {
		return nil, fmt.Errorf("segment: index %d is negative", index)
	}
	if start < 0 || start >= end {
		return nil, fmt.Errorf("segment %d: invalid time range [%.3f, %.3f]", index, start, end)
	}
	if end > fileDuration+timeEpsilon {
		return nil, fmt.Errorf("segment %d: end %.3f exceeds file duration %.3f", index, end, fileDuration)
	}
	return &AudioSegment{
		SegmentIndex: index,
		StartTime:    start,
		EndTime:      end,
		Duration:     end - start,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// timeEpsilon absorbs float drift from sample-index arithmetic when a segment
// runs to the very end of the file.
const timeEpsilon = 1e-6

// SetMetrics records the transcript-derived metrics, validating their ranges.
func (s *AudioSegment) SetMetrics(wpm, fillerRatio, sentiment float64) error {
	if wpm < 0 {
		return fmt.Errorf("segment %d: wpm %.2f is negative", s.SegmentIndex, wpm)
	}
	if fillerRatio < 0 || fillerRatio > 1 {
		return fmt.Errorf("segment %d: filler ratio %.4f outside [0,1]", s.SegmentIndex, fillerRatio)
	}
	if sentiment < -1 || sentiment > 1 {
		return fmt.Errorf("segment %d: sentiment %.3f outside [-1,1]", s.SegmentIndex, sentiment)
	}
	s.WPM = wpm
	s.FillerRatio = fillerRatio
	s.SentimentScore = sentiment
	return nil
}

// SetQuality records the composite quality score.
func (s *AudioSegment) SetQuality(score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("segment %d: quality %.3f outside [0,1]", s.SegmentIndex, score)
	}
	s.QualityScore = score
	return nil
}

// MarkDegraded clears the segment after an unrecoverable per-segment failure.
// The record is kept so the parent file still persists all of its segments.
func (s *AudioSegment) MarkDegraded() {
	s.Transcript = ""
	s.WPM = 0
	s.FillerRatio = 0
	s.SentimentScore = 0
	s.QualityScore = 0
	s.IsMLReady = false
	s.TrainingPriority = 0
}
