// Package pipeline orchestrates the audio analysis flow: preprocess, whole-file
// transcription and metrics, segmentation, per-segment processing, and the
// atomic persistence of the resulting records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"speechforge/internal/audio"
	"speechforge/internal/features"
	"speechforge/internal/segmenter"
	"speechforge/internal/store"
	"speechforge/internal/transcribe"
	"speechforge/models"
)

// State names the steps a file moves through. FAILED is reachable from any
// state; on FAILED nothing is persisted.
type State string

const (
	StateReceived          State = "RECEIVED"
	StatePreprocessed      State = "PREPROCESSED"
	StateTranscribedFull   State = "TRANSCRIBED_FULL"
	StateSegmented         State = "SEGMENTED"
	StateSegmentsProcessed State = "SEGMENTS_PROCESSED"
	StatePersisted         State = "PERSISTED"
	StateDone              State = "DONE"
	StateFailed            State = "FAILED"
)

// Stable machine-readable reason codes surfaced on the HTTP boundary.
const (
	CodeUnsupportedFormat   = "unsupported_format"
	CodeEmptyOrSilentAudio  = "empty_or_silent_audio"
	CodeTranscriptionFailed = "transcription_failed"
	CodePersistenceFailed   = "persistence_failed"
	CodeCancelled           = "cancelled"
	CodeInternal            = "internal_error"
)

// Failure is a terminal pipeline error carrying the state it occurred in and
// a stable reason code. The wrapped error is logged, never returned to
// clients.
type Failure struct {
	Code  string
	State State
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("pipeline failed in %s (%s): %v", f.State, f.Code, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func fail(state State, code string, err error) *Failure {
	return &Failure{Code: code, State: state, Err: err}
}

// Result is a completed pipeline run.
type Result struct {
	File     *models.AudioFile     `json:"file"`
	Segments []*models.AudioSegment `json:"segments"`
}

// Pipeline wires the processing stages together. One Pipeline serves all
// requests; per-run state lives on the stack.
type Pipeline struct {
	pre         *audio.Preprocessor
	seg         *segmenter.Segmenter
	transcriber transcribe.Transcriber
	store       *store.Store
	log         *logrus.Logger

	dataDir     string
	maxAttempts int
	minQuality  float64
}

func New(pre *audio.Preprocessor, seg *segmenter.Segmenter, tr transcribe.Transcriber, st *store.Store, log *logrus.Logger, dataDir string, maxAttempts int) *Pipeline {
	return &Pipeline{
		pre:         pre,
		seg:         seg,
		transcriber: tr,
		store:       st,
		log:         log,
		dataDir:     dataDir,
		maxAttempts: maxAttempts,
		minQuality:  0.05,
	}
}

// Process runs the full pipeline for one upload. The context follows the
// client connection: once it is cancelled no new segment work starts and the
// file fails without persisting anything.
func (p *Pipeline) Process(ctx context.Context, filename string, data []byte) (*Result, error) {
	runID := uuid.NewString()
	log := p.log.WithFields(logrus.Fields{"run_id": runID, "filename": filename})
	log.WithField("state", StateReceived).Info("Pipeline started")

	// Preprocess. Format and silence errors are deterministic; no retry.
	processed, err := p.pre.Process(ctx, data)
	if err != nil {
		switch {
		case errors.Is(err, audio.ErrUnsupportedFormat):
			return nil, fail(StateReceived, CodeUnsupportedFormat, err)
		case errors.Is(err, audio.ErrEmptyOrSilentAudio):
			return nil, fail(StateReceived, CodeEmptyOrSilentAudio, err)
		case ctx.Err() != nil:
			return nil, fail(StateReceived, CodeCancelled, ctx.Err())
		default:
			return nil, fail(StateReceived, CodeInternal, err)
		}
	}
	log.WithFields(logrus.Fields{"state": StatePreprocessed, "duration": processed.Duration}).Info("Audio preprocessed")

	// Whole-file transcription, retried on transient failure.
	fullResult, err := p.transcribeWithRetry(ctx, processed.Samples, processed.SampleRate)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fail(StatePreprocessed, CodeCancelled, ctx.Err())
		}
		return nil, fail(StatePreprocessed, CodeTranscriptionFailed, err)
	}
	log.WithFields(logrus.Fields{"state": StateTranscribedFull, "chars": len(fullResult.Text)}).Info("Full transcript ready")

	fileMetrics := features.Extract(fullResult.Text, processed.Duration)
	file, err := models.NewAudioFile(filename, "", processed.Duration, fullResult.Text,
		fileMetrics.WPM, fileMetrics.FillerRatio, fileMetrics.SentimentScore)
	if err != nil {
		return nil, fail(StateTranscribedFull, CodeInternal, err)
	}

	// Segmentation is pure and deterministic.
	regions := p.seg.Segment(processed.Samples, processed.SampleRate)
	log.WithFields(logrus.Fields{"state": StateSegmented, "segments": len(regions)}).Info("Audio segmented")

	// Store audio on disk before segment processing so clips have a home.
	runDir := filepath.Join(p.dataDir, runID)
	if err := os.MkdirAll(filepath.Join(runDir, "segments"), 0o755); err != nil {
		return nil, fail(StateSegmented, CodeInternal, err)
	}
	file.AudioPath = filepath.Join(runDir, "processed.wav")
	if err := audio.WriteWAV(file.AudioPath, processed.Samples, processed.SampleRate); err != nil {
		return nil, fail(StateSegmented, CodeInternal, err)
	}

	segments, err := p.processSegments(ctx, log, runDir, processed, regions)
	if err != nil {
		os.RemoveAll(runDir)
		if ctx.Err() != nil {
			return nil, fail(StateSegmented, CodeCancelled, ctx.Err())
		}
		return nil, fail(StateSegmented, CodeInternal, err)
	}
	log.WithFields(logrus.Fields{"state": StateSegmentsProcessed, "segments": len(segments)}).Info("Segments processed")

	if err := p.store.InsertFileWithSegments(ctx, file, segments); err != nil {
		os.RemoveAll(runDir)
		return nil, fail(StateSegmentsProcessed, CodePersistenceFailed, err)
	}
	log.WithFields(logrus.Fields{"state": StateDone, "file_id": file.ID}).Info("Pipeline complete")

	return &Result{File: file, Segments: segments}, nil
}

// processSegments runs per-segment transcription, metrics and quality scoring
// concurrently. Segment failures degrade that one segment; only cancellation
// aborts the batch.
func (p *Pipeline) processSegments(ctx context.Context, log *logrus.Entry, runDir string, processed *audio.Processed, regions []segmenter.Region) ([]*models.AudioSegment, error) {
	segments := make([]*models.AudioSegment, len(regions))
	var wg sync.WaitGroup

	for i, region := range regions {
		// Dispatched work runs to completion, but nothing new starts once
		// the client has gone away.
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, region segmenter.Region) {
			defer wg.Done()
			segments[i] = p.processOneSegment(ctx, log, runDir, processed, region)
		}(i, region)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return segments, nil
}

func (p *Pipeline) processOneSegment(ctx context.Context, log *logrus.Entry, runDir string, processed *audio.Processed, region segmenter.Region) *models.AudioSegment {
	seg, err := models.NewAudioSegment(region.Index, region.Start, region.End, processed.Duration)
	if err != nil {
		// Regions come from the segmenter, which guarantees the invariants;
		// treat a violation as a bug rather than degrade silently.
		log.WithError(err).WithField("segment", region.Index).Error("Invalid segment region")
		seg = &models.AudioSegment{SegmentIndex: region.Index, StartTime: region.Start, EndTime: region.End, Duration: region.Duration(), CreatedAt: time.Now().UTC()}
		seg.MarkDegraded()
		return seg
	}

	rate := processed.SampleRate
	lo := int(region.Start * float64(rate))
	hi := int(region.End * float64(rate))
	if hi > len(processed.Samples) {
		hi = len(processed.Samples)
	}
	clip := processed.Samples[lo:hi]

	seg.AudioPath = filepath.Join(runDir, "segments", fmt.Sprintf("segment_%03d.wav", region.Index))
	if err := audio.WriteWAV(seg.AudioPath, clip, rate); err != nil {
		log.WithError(err).WithField("segment", region.Index).Warn("Segment clip write failed; keeping degraded record")
		seg.AudioPath = ""
		seg.MarkDegraded()
		return seg
	}

	seg.Signal = features.Analyze(clip, rate)

	// Each clip is transcribed independently rather than sliced from the
	// whole-file transcript, so segment metrics always match segment audio.
	res, err := p.transcribeWithRetry(ctx, clip, rate)
	if err != nil {
		log.WithError(err).WithField("segment", region.Index).Warn("Segment transcription failed; keeping degraded record")
		seg.MarkDegraded()
		return seg
	}
	seg.Transcript = res.Text

	m := features.Extract(res.Text, seg.Duration)
	if err := seg.SetMetrics(m.WPM, m.FillerRatio, m.SentimentScore); err != nil {
		log.WithError(err).WithField("segment", region.Index).Warn("Segment metrics out of range; keeping degraded record")
		seg.MarkDegraded()
		return seg
	}

	quality := features.ScoreQuality(clip, rate, res.Confidence)
	if err := seg.SetQuality(quality); err != nil {
		seg.MarkDegraded()
		return seg
	}
	seg.IsMLReady = quality >= p.minQuality && seg.Transcript != ""
	seg.TrainingPriority = features.TrainingPriority(quality, m)

	return seg
}

// transcribeWithRetry retries transient transcription failures with
// exponential backoff up to the configured attempt bound. Context
// cancellation stops retrying immediately.
func (p *Pipeline) transcribeWithRetry(ctx context.Context, samples []float64, rate int) (*transcribe.Result, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	expo.MaxInterval = 10 * time.Second

	var res *transcribe.Result
	op := func() error {
		r, err := p.transcriber.Transcribe(ctx, samples, rate)
		if err != nil {
			var te *transcribe.TranscriptionError
			if errors.As(err, &te) {
				return err // transient, retry
			}
			return backoff.Permanent(err)
		}
		res = r
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(expo, uint64(p.maxAttempts-1)), ctx))
	if err != nil {
		return nil, err
	}
	return res, nil
}
