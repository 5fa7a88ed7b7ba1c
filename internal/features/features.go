// Package features computes transcript-derived speech metrics and
// audio-derived quality scores for files and segments.
package features

import (
	"math"
	"strings"

	"github.com/grassmudhorses/vader-go/lexicon"
	"github.com/grassmudhorses/vader-go/sentitext"
)

// Metrics are the transcript-derived measurements shared by file and segment
// records.
type Metrics struct {
	WPM            float64
	FillerRatio    float64
	SentimentScore float64
	WordCount      int
}

// fillerWords is the disfluency vocabulary, matched case-insensitively as
// unigrams and bigrams after punctuation stripping.
var fillerWords = map[string]struct{}{
	"um": {}, "uh": {}, "er": {}, "ah": {}, "like": {},
	"you know": {}, "i mean": {}, "basically": {}, "actually": {},
	"literally": {}, "honestly": {}, "frankly": {}, "obviously": {},
	"clearly": {}, "simply": {}, "just": {}, "sort of": {}, "kind of": {},
	"right": {}, "well": {}, "so": {}, "okay": {}, "ok": {}, "yeah": {},
	"yep": {}, "anyway": {}, "anyways": {}, "whatever": {}, "you see": {},
	"i guess": {}, "i suppose": {},
}

// Extract computes WPM, filler ratio and sentiment for a transcript of the
// given duration. A zero duration yields a WPM of zero rather than a division
// fault; an empty transcript yields zeroed metrics with neutral sentiment.
func Extract(transcript string, duration float64) Metrics {
	words := strings.Fields(transcript)

	var wpm float64
	if duration > 0 {
		wpm = round2(float64(len(words)) / (duration / 60.0))
	}

	return Metrics{
		WPM:            wpm,
		FillerRatio:    round4(fillerRatio(words)),
		SentimentScore: round3(Sentiment(transcript)),
		WordCount:      len(words),
	}
}

func fillerRatio(words []string) float64 {
	if len(words) == 0 {
		return 0
	}
	norm := make([]string, len(words))
	for i, w := range words {
		norm[i] = strings.ToLower(strings.Trim(w, ".,!?;:\"'()[]-"))
	}
	var count int
	for i, w := range norm {
		if _, ok := fillerWords[w]; ok {
			count++
			continue
		}
		if i+1 < len(norm) {
			if _, ok := fillerWords[w+" "+norm[i+1]]; ok {
				count++
			}
		}
	}
	ratio := float64(count) / float64(len(words))
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// Sentiment returns the VADER compound polarity of the text in [-1, 1].
// Empty or whitespace-only text is neutral.
func Sentiment(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	parsed := sentitext.Parse(text, lexicon.DefaultLexicon)
	return sentitext.PolarityScore(parsed).Compound
}

// TrainingPriority ranks a segment for downstream ML consumption: the quality
// score plus small bonuses for a sane speech rate, few fillers and enough
// words, capped at 1.
func TrainingPriority(quality float64, m Metrics) float64 {
	p := quality
	if m.WPM > 0 && m.WPM < 200 {
		p += 0.1
	}
	if m.FillerRatio < 0.1 {
		p += 0.1
	}
	if m.WordCount >= 5 {
		p += 0.1
	}
	return math.Min(1.0, p)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
