package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"speechforge/internal/audio"
)

// HTTPASR talks to a speech-to-text service over HTTP: the clip is posted as
// a multipart WAV to <url>/transcribe and segments come back as JSON.
type HTTPASR struct {
	url    string
	client *http.Client
}

func NewHTTPASR(url string) *HTTPASR {
	return &HTTPASR{
		url:    strings.TrimRight(url, "/"),
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type asrResponse struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
	// Confidence is optional; services that omit it report -1 downstream.
	Confidence *float64 `json:"confidence"`
}

func (h *HTTPASR) Transcribe(ctx context.Context, samples []float64, sampleRate int) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, &TranscriptionError{Backend: "http", Err: err}
	}
	if _, err := fw.Write(audio.EncodeWAV(samples, sampleRate)); err != nil {
		return nil, &TranscriptionError{Backend: "http", Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &TranscriptionError{Backend: "http", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url+"/transcribe", &body)
	if err != nil {
		return nil, &TranscriptionError{Backend: "http", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TranscriptionError{Backend: "http", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &TranscriptionError{
			Backend: "http",
			Err:     fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(msg))),
		}
	}

	var parsed asrResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &TranscriptionError{Backend: "http", Err: fmt.Errorf("decode response: %w", err)}
	}

	res := &Result{Text: parsed.Text, Language: parsed.Language, Segments: parsed.Segments, Confidence: -1}
	if parsed.Confidence != nil {
		res.Confidence = *parsed.Confidence
	}
	if res.Text == "" && len(res.Segments) > 0 {
		parts := make([]string, 0, len(res.Segments))
		for _, s := range res.Segments {
			if t := strings.TrimSpace(s.Text); t != "" {
				parts = append(parts, t)
			}
		}
		res.Text = strings.Join(parts, " ")
	}
	return res, nil
}
