package features

import (
	"math"
	"testing"
)

func TestExtractWPM(t *testing.T) {
	// 10 words over 30 seconds is 20 words per minute.
	m := Extract("one two three four five six seven eight nine ten", 30)
	if m.WPM != 20 {
		t.Errorf("wpm = %v, want 20", m.WPM)
	}
	if m.WordCount != 10 {
		t.Errorf("word count = %d, want 10", m.WordCount)
	}
}

func TestExtractZeroDuration(t *testing.T) {
	m := Extract("some words here", 0)
	if m.WPM != 0 {
		t.Errorf("wpm with zero duration = %v, want 0", m.WPM)
	}
}

func TestExtractEmptyTranscript(t *testing.T) {
	m := Extract("", 12.5)
	if m.WPM != 0 || m.FillerRatio != 0 || m.SentimentScore != 0 || m.WordCount != 0 {
		t.Errorf("empty transcript should yield zeroed metrics, got %+v", m)
	}
}

func TestFillerRatioUnigrams(t *testing.T) {
	// "um" and "like" are fillers, the other two words are not.
	m := Extract("um the like cat", 60)
	if m.FillerRatio != 0.5 {
		t.Errorf("filler ratio = %v, want 0.5", m.FillerRatio)
	}
}

func TestFillerRatioBigram(t *testing.T) {
	// "you know" counts once against four words.
	m := Extract("you know the answer", 60)
	if m.FillerRatio != 0.25 {
		t.Errorf("filler ratio = %v, want 0.25", m.FillerRatio)
	}
}

func TestFillerRatioIgnoresPunctuationAndCase(t *testing.T) {
	m := Extract("Um, the cat.", 60)
	if math.Abs(m.FillerRatio-1.0/3.0) > 0.001 {
		t.Errorf("filler ratio = %v, want ~0.333", m.FillerRatio)
	}
}

func TestFillerRatioBounds(t *testing.T) {
	m := Extract("um uh er ah like just so well", 60)
	if m.FillerRatio < 0 || m.FillerRatio > 1 {
		t.Errorf("filler ratio %v outside [0,1]", m.FillerRatio)
	}
	if m.FillerRatio != 1 {
		t.Errorf("all-filler transcript ratio = %v, want 1", m.FillerRatio)
	}
}

func TestSentimentPolarity(t *testing.T) {
	pos := Sentiment("This is wonderful, I love it and it makes me happy.")
	neg := Sentiment("This is terrible, I hate it and it makes me miserable.")
	if pos <= 0 {
		t.Errorf("positive text scored %v, want > 0", pos)
	}
	if neg >= 0 {
		t.Errorf("negative text scored %v, want < 0", neg)
	}
	if pos < -1 || pos > 1 || neg < -1 || neg > 1 {
		t.Errorf("sentiment outside [-1,1]: pos=%v neg=%v", pos, neg)
	}
}

func TestSentimentNeutralOnWhitespace(t *testing.T) {
	if s := Sentiment("   \t\n"); s != 0 {
		t.Errorf("whitespace sentiment = %v, want 0", s)
	}
}

func TestExtractDeterministic(t *testing.T) {
	const text = "well I think this is actually a pretty good recording, you know"
	a := Extract(text, 8.2)
	b := Extract(text, 8.2)
	if a != b {
		t.Errorf("repeated extraction differs: %+v vs %+v", a, b)
	}
}

func TestTrainingPriority(t *testing.T) {
	m := Metrics{WPM: 150, FillerRatio: 0.05, WordCount: 20}
	if got := TrainingPriority(0.6, m); math.Abs(got-0.9) > 1e-9 {
		t.Errorf("priority = %v, want 0.9", got)
	}
	// All bonuses on top of a high quality score still cap at 1.
	if got := TrainingPriority(0.95, m); got != 1 {
		t.Errorf("priority = %v, want capped at 1", got)
	}
	// No bonuses apply.
	bad := Metrics{WPM: 250, FillerRatio: 0.4, WordCount: 2}
	if got := TrainingPriority(0.5, bad); got != 0.5 {
		t.Errorf("priority = %v, want 0.5", got)
	}
}
