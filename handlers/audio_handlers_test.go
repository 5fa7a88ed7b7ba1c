package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"speechforge/internal/pipeline"
	"speechforge/internal/store"
	"speechforge/internal/worker"
	"speechforge/models"
)

type fakeRunner struct {
	result *pipeline.Result
	err    error
}

func (f *fakeRunner) RunJob(ctx context.Context, id, filename string, data []byte) (*pipeline.Result, error) {
	return f.result, f.err
}

// fakeStore serves canned records keyed by id.
type fakeStore struct {
	files    map[int64]*models.AudioFile
	segments map[int64][]*models.AudioSegment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		files:    map[int64]*models.AudioFile{},
		segments: map[int64][]*models.AudioSegment{},
	}
}

func (f *fakeStore) GetFile(ctx context.Context, id int64) (*models.AudioFile, error) {
	return f.files[id], nil
}

func (f *fakeStore) ListFiles(ctx context.Context) ([]*models.AudioFile, error) {
	var out []*models.AudioFile
	for _, file := range f.files {
		out = append(out, file)
	}
	return out, nil
}

func (f *fakeStore) GetSegments(ctx context.Context, fileID int64) ([]*models.AudioSegment, error) {
	return f.segments[fileID], nil
}

func (f *fakeStore) GetSegment(ctx context.Context, id int64) (*models.AudioSegment, error) {
	for _, segs := range f.segments {
		for _, seg := range segs {
			if seg.ID == id {
				return seg, nil
			}
		}
	}
	return nil, nil
}

func (f *fakeStore) MLReadySegments(ctx context.Context, minQuality float64, limit int) ([]*models.AudioSegment, error) {
	var out []*models.AudioSegment
	for _, segs := range f.segments {
		for _, seg := range segs {
			if seg.IsMLReady && seg.QualityScore >= minQuality && len(out) < limit {
				out = append(out, seg)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteFile(ctx context.Context, id int64) (bool, error) {
	if _, ok := f.files[id]; !ok {
		return false, nil
	}
	delete(f.files, id)
	delete(f.segments, id)
	return true, nil
}

func (f *fakeStore) Statistics(ctx context.Context) (*store.Statistics, error) {
	return &store.Statistics{TotalFiles: len(f.files)}, nil
}

func (f *fakeStore) QualityStatistics(ctx context.Context) (*store.QualityStatistics, error) {
	return &store.QualityStatistics{}, nil
}

func testApp(runner PipelineRunner, st Persistence) *fiber.App {
	log := logrus.New()
	log.SetOutput(io.Discard)
	h := NewApplicationHandler(runner, st, log)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Post("/audio", h.UploadAudio)
	api.Get("/audio", h.ListAudioFiles)
	api.Get("/audio/:id", h.GetAudioFile)
	api.Get("/audio/:id/segments", h.GetFileSegments)
	api.Get("/audio/:id/stream", h.StreamAudioFile)
	api.Get("/audio/:id/segments/archive", h.DownloadSegmentsArchive)
	api.Delete("/audio/:id", h.DeleteAudioFile)
	api.Get("/segments/:id/stream", h.StreamSegmentAudio)
	api.Get("/segments/ml-ready", h.GetMLReadySegments)
	api.Get("/statistics", h.GetStatistics)
	api.Get("/statistics/quality", h.GetQualityStatistics)
	return app
}

func multipartUpload(t *testing.T, field, filename string, content []byte) (*http.Request, error) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(content); err != nil {
		return nil, err
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/audio", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

func decodeEnvelope(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestUploadAudioSuccess(t *testing.T) {
	file, err := models.NewAudioFile("ok.wav", "/data/ok.wav", 12, "hello", 100, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	file.ID = 7
	seg, err := models.NewAudioSegment(0, 0, 5, 12)
	if err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{result: &pipeline.Result{File: file, Segments: []*models.AudioSegment{seg}}}
	app := testApp(runner, newFakeStore())

	req, err := multipartUpload(t, "file", "ok.wav", []byte("fake audio"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env["status"] != "success" {
		t.Errorf("envelope = %+v", env)
	}
	data := env["data"].(map[string]any)
	if data["segment_count"].(float64) != 1 {
		t.Errorf("segment_count = %v, want 1", data["segment_count"])
	}
}

func TestUploadAudioMissingFile(t *testing.T) {
	app := testApp(&fakeRunner{}, newFakeStore())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/audio", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env["code"] != "missing_file" {
		t.Errorf("code = %v, want missing_file", env["code"])
	}
}

func TestUploadAudioPipelineFailures(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unsupported format",
			err:        &pipeline.Failure{Code: pipeline.CodeUnsupportedFormat, State: pipeline.StateReceived, Err: errors.New("bad header")},
			wantStatus: http.StatusBadRequest,
			wantCode:   pipeline.CodeUnsupportedFormat,
		},
		{
			name:       "silent audio",
			err:        &pipeline.Failure{Code: pipeline.CodeEmptyOrSilentAudio, State: pipeline.StateReceived, Err: errors.New("silent")},
			wantStatus: http.StatusBadRequest,
			wantCode:   pipeline.CodeEmptyOrSilentAudio,
		},
		{
			name:       "transcription failed",
			err:        &pipeline.Failure{Code: pipeline.CodeTranscriptionFailed, State: pipeline.StatePreprocessed, Err: errors.New("backend down")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   pipeline.CodeTranscriptionFailed,
		},
		{
			name:       "queue full",
			err:        worker.ErrQueueFull,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "queue_full",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := testApp(&fakeRunner{err: tc.err}, newFakeStore())
			req, err := multipartUpload(t, "file", "x.wav", []byte("payload"))
			if err != nil {
				t.Fatal(err)
			}
			resp, err := app.Test(req, -1)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
			env := decodeEnvelope(t, resp)
			if env["code"] != tc.wantCode {
				t.Errorf("code = %v, want %s", env["code"], tc.wantCode)
			}
		})
	}
}

func TestGetAudioFile(t *testing.T) {
	st := newFakeStore()
	file, err := models.NewAudioFile("a.wav", "/data/a.wav", 10, "hi", 90, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	file.ID = 1
	st.files[1] = file
	app := testApp(&fakeRunner{}, st)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/audio/1", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	data := env["data"].(map[string]any)
	if data["filename"] != "a.wav" {
		t.Errorf("filename = %v", data["filename"])
	}
}

func TestGetAudioFileNotFound(t *testing.T) {
	app := testApp(&fakeRunner{}, newFakeStore())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/audio/42", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetAudioFileBadID(t *testing.T) {
	app := testApp(&fakeRunner{}, newFakeStore())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/audio/notanumber", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env["code"] != "invalid_id" {
		t.Errorf("code = %v, want invalid_id", env["code"])
	}
}

func TestDeleteAudioFile(t *testing.T) {
	st := newFakeStore()
	file, err := models.NewAudioFile("d.wav", "", 10, "", 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	file.ID = 3
	st.files[3] = file
	app := testApp(&fakeRunner{}, st)

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/audio/3", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/api/v1/audio/3", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestGetMLReadySegments(t *testing.T) {
	st := newFakeStore()
	seg, err := models.NewAudioSegment(0, 0, 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	seg.ID = 11
	seg.IsMLReady = true
	if err := seg.SetQuality(0.7); err != nil {
		t.Fatal(err)
	}
	st.segments[1] = []*models.AudioSegment{seg}
	app := testApp(&fakeRunner{}, st)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/segments/ml-ready?min_quality=0.5", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	data := env["data"].(map[string]any)
	if data["count"].(float64) != 1 {
		t.Errorf("count = %v, want 1", data["count"])
	}

	// A threshold above the segment's quality filters it out.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/segments/ml-ready?min_quality=0.9", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	env = decodeEnvelope(t, resp)
	data = env["data"].(map[string]any)
	if data["count"].(float64) != 0 {
		t.Errorf("count = %v, want 0", data["count"])
	}
}

func TestDownloadSegmentsArchive(t *testing.T) {
	dir := t.TempDir()
	clip := filepath.Join(dir, "segment_000.wav")
	if err := os.WriteFile(clip, []byte("RIFF fake wav bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	st := newFakeStore()
	seg, err := models.NewAudioSegment(0, 0, 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	seg.ID = 21
	seg.AudioPath = clip
	st.segments[1] = []*models.AudioSegment{seg}
	app := testApp(&fakeRunner{}, st)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/audio/1/segments/archive", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/zip" {
		t.Errorf("content type = %s, want application/zip", ct)
	}

	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("response is not a zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "segment_000.wav" {
		t.Errorf("archive entries = %v", zr.File)
	}
}

func TestStatistics(t *testing.T) {
	st := newFakeStore()
	file, err := models.NewAudioFile("s.wav", "", 10, "", 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	file.ID = 1
	st.files[1] = file
	app := testApp(&fakeRunner{}, st)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/statistics", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	data := env["data"].(map[string]any)
	if data["total_files"].(float64) != 1 {
		t.Errorf("total_files = %v, want 1", data["total_files"])
	}
}
