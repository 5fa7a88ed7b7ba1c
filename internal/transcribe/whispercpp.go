package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"speechforge/internal/audio"
)

// WhisperCPP runs transcription through the whisper.cpp CLI. Samples are
// written to a temp WAV and the tool's JSON output is parsed back.
type WhisperCPP struct {
	BinPath   string
	ModelPath string
}

func NewWhisperCPP(binPath, modelPath string) *WhisperCPP {
	return &WhisperCPP{BinPath: binPath, ModelPath: modelPath}
}

// whisperOut matches the whisper.cpp --output-json schema, reduced to the
// fields we consume.
type whisperOut struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"` // ms
			To   int64 `json:"to"`   // ms
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (w *WhisperCPP) Transcribe(ctx context.Context, samples []float64, sampleRate int) (*Result, error) {
	tmpDir, err := os.MkdirTemp("", "speechforge-whisper-")
	if err != nil {
		return nil, &TranscriptionError{Backend: "whispercpp", Err: err}
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "audio.wav")
	if err := audio.WriteWAV(wavPath, samples, sampleRate); err != nil {
		return nil, &TranscriptionError{Backend: "whispercpp", Err: err}
	}
	outPrefix := filepath.Join(tmpDir, "out")

	cmd := exec.CommandContext(ctx, w.BinPath,
		"-m", w.ModelPath,
		"-f", wavPath,
		"--output-json",
		"--output-file", outPrefix,
		"--no-prints",
	)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TranscriptionError{
			Backend: "whispercpp",
			Err:     fmt.Errorf("%v: %s", err, strings.TrimSpace(stderr.String())),
		}
	}

	raw, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return nil, &TranscriptionError{Backend: "whispercpp", Err: fmt.Errorf("read output: %w", err)}
	}
	var parsed whisperOut
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &TranscriptionError{Backend: "whispercpp", Err: fmt.Errorf("parse output: %w", err)}
	}

	res := &Result{Language: parsed.Result.Language, Confidence: -1}
	var sb strings.Builder
	for _, t := range parsed.Transcription {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
		res.Segments = append(res.Segments, Segment{
			Start: float64(t.Offsets.From) / 1000.0,
			End:   float64(t.Offsets.To) / 1000.0,
			Text:  text,
		})
	}
	res.Text = sb.String()
	return res, nil
}
