package models

import (
	"fmt"
	"time"
)

// AudioFile represents one ingested recording with its file-level metrics.
// Instances are built through NewAudioFile so the metric ranges hold by
// construction; the store never writes a record that failed validation.
type AudioFile struct {
	ID             int64     `json:"id"`
	Filename       string    `json:"filename"`
	AudioPath      string    `json:"audio_path"`
	Duration       float64   `json:"duration"`
	Transcript     string    `json:"transcript"`
	WPM            float64   `json:"wpm"`
	FillerRatio    float64   `json:"filler_ratio"`
	SentimentScore float64   `json:"sentiment_score"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewAudioFile validates the derived metrics and returns a file record.
func NewAudioFile(filename, audioPath string, duration float64, transcript string, wpm, fillerRatio, sentiment float64) (*AudioFile, error) {
	if filename == "" {
		return nil, fmt.Errorf("audio file: filename is required")
	}
	if duration < 0 {
		return nil, fmt.Errorf("audio file %s: duration %.3f is negative", filename, duration)
	}
	if wpm < 0 {
		return nil, fmt.Errorf("audio file %s: wpm %.2f is negative", filename, wpm)
	}
	if fillerRatio < 0 || fillerRatio > 1 {
		return nil, fmt.Errorf("audio file %s: filler ratio %.4f outside [0,1]", filename, fillerRatio)
	}
	if sentiment < -1 || sentiment > 1 {
		return nil, fmt.Errorf("audio file %s: sentiment %.3f outside [-1,1]", filename, sentiment)
	}
	return &AudioFile{
		Filename:       filename,
		AudioPath:      audioPath,
		Duration:       duration,
		Transcript:     transcript,
		WPM:            wpm,
		FillerRatio:    fillerRatio,
		SentimentScore: sentiment,
		CreatedAt:      time.Now().UTC(),
	}, nil
}
