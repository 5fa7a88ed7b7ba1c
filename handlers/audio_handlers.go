package handlers

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"speechforge/internal/pipeline"
	"speechforge/internal/worker"
	"speechforge/utils"
)

// UploadAudio accepts a multipart audio upload, runs the full pipeline and
// returns the persisted file with its segments. The contract is synchronous:
// a 200 means the file is queryable.
func (h *ApplicationHandler) UploadAudio(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "missing_file", "A 'file' form field is required")
	}

	src, err := fileHeader.Open()
	if err != nil {
		h.Logger.WithError(err).Error("Opening uploaded file failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodeInternal, "Could not read upload")
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		h.Logger.WithError(err).Error("Reading uploaded file failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodeInternal, "Could not read upload")
	}

	jobID := uuid.NewString()
	result, err := h.Runner.RunJob(c.UserContext(), jobID, fileHeader.Filename, data)
	if err != nil {
		return h.respondPipelineError(c, jobID, err)
	}

	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{
		"file":          result.File,
		"segments":      result.Segments,
		"segment_count": len(result.Segments),
		"job_id":        jobID,
	})
}

// respondPipelineError maps pipeline failures to response codes without
// leaking internal error text.
func (h *ApplicationHandler) respondPipelineError(c *fiber.Ctx, jobID string, err error) error {
	log := h.Logger.WithField("job_id", jobID).WithError(err)

	var failure *pipeline.Failure
	if errors.As(err, &failure) {
		switch failure.Code {
		case pipeline.CodeUnsupportedFormat:
			log.Warn("Upload rejected: unsupported format")
			return utils.RespondWithError(c, fiber.StatusBadRequest, failure.Code, "The audio format could not be decoded")
		case pipeline.CodeEmptyOrSilentAudio:
			log.Warn("Upload rejected: empty or silent audio")
			return utils.RespondWithError(c, fiber.StatusBadRequest, failure.Code, "The audio contains no usable signal")
		case pipeline.CodeCancelled:
			log.Info("Upload cancelled by client")
			return utils.RespondWithError(c, fiber.StatusBadRequest, failure.Code, "The upload was cancelled")
		case pipeline.CodeTranscriptionFailed:
			log.Error("Pipeline failed: transcription")
			return utils.RespondWithError(c, fiber.StatusInternalServerError, failure.Code, "Transcription failed after retries")
		case pipeline.CodePersistenceFailed:
			log.Error("Pipeline failed: persistence")
			return utils.RespondWithError(c, fiber.StatusInternalServerError, failure.Code, "The processed file could not be stored")
		}
	}
	if errors.Is(err, worker.ErrQueueFull) {
		log.Warn("Upload rejected: queue full")
		return utils.RespondWithError(c, fiber.StatusServiceUnavailable, "queue_full", "The server is busy; retry later")
	}
	log.Error("Pipeline failed")
	return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodeInternal, "Audio processing failed")
}

// ListAudioFiles returns all processed files, newest first.
func (h *ApplicationHandler) ListAudioFiles(c *fiber.Ctx) error {
	files, err := h.Store.ListFiles(c.UserContext())
	if err != nil {
		h.Logger.WithError(err).Error("Listing audio files failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodePersistenceFailed, "Could not list files")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"files": files, "count": len(files)})
}

// GetAudioFile returns one file record.
func (h *ApplicationHandler) GetAudioFile(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "invalid_id", "File id must be an integer")
	}
	file, err := h.Store.GetFile(c.UserContext(), id)
	if err != nil {
		h.Logger.WithError(err).WithField("file_id", id).Error("Fetching audio file failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodePersistenceFailed, "Could not fetch file")
	}
	if file == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, "not_found", "File not found")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, file)
}

// GetFileSegments returns all segments of one file in index order.
func (h *ApplicationHandler) GetFileSegments(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "invalid_id", "File id must be an integer")
	}
	file, err := h.Store.GetFile(c.UserContext(), id)
	if err != nil {
		h.Logger.WithError(err).WithField("file_id", id).Error("Fetching audio file failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodePersistenceFailed, "Could not fetch file")
	}
	if file == nil {
		return utils.RespondWithError(c, fiber.StatusNotFound, "not_found", "File not found")
	}
	segments, err := h.Store.GetSegments(c.UserContext(), id)
	if err != nil {
		h.Logger.WithError(err).WithField("file_id", id).Error("Fetching segments failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodePersistenceFailed, "Could not fetch segments")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"segments": segments, "count": len(segments)})
}

// StreamAudioFile streams the processed audio of one file.
func (h *ApplicationHandler) StreamAudioFile(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "invalid_id", "File id must be an integer")
	}
	file, err := h.Store.GetFile(c.UserContext(), id)
	if err != nil {
		h.Logger.WithError(err).WithField("file_id", id).Error("Fetching audio file failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodePersistenceFailed, "Could not fetch file")
	}
	if file == nil || file.AudioPath == "" {
		return utils.RespondWithError(c, fiber.StatusNotFound, "not_found", "Audio not found")
	}
	c.Set(fiber.HeaderContentType, "audio/wav")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", fmt.Sprintf("audio_%d.wav", id)))
	return c.SendFile(file.AudioPath)
}

// StreamSegmentAudio streams one segment clip.
func (h *ApplicationHandler) StreamSegmentAudio(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "invalid_id", "Segment id must be an integer")
	}
	seg, err := h.Store.GetSegment(c.UserContext(), id)
	if err != nil {
		h.Logger.WithError(err).WithField("segment_id", id).Error("Fetching segment failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodePersistenceFailed, "Could not fetch segment")
	}
	if seg == nil || seg.AudioPath == "" {
		return utils.RespondWithError(c, fiber.StatusNotFound, "not_found", "Segment audio not found")
	}
	c.Set(fiber.HeaderContentType, "audio/wav")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", fmt.Sprintf("segment_%d.wav", id)))
	return c.SendFile(seg.AudioPath)
}

// DownloadSegmentsArchive streams a zip of all segment clips for one file.
func (h *ApplicationHandler) DownloadSegmentsArchive(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "invalid_id", "File id must be an integer")
	}
	segments, err := h.Store.GetSegments(c.UserContext(), id)
	if err != nil {
		h.Logger.WithError(err).WithField("file_id", id).Error("Fetching segments failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodePersistenceFailed, "Could not fetch segments")
	}
	if len(segments) == 0 {
		return utils.RespondWithError(c, fiber.StatusNotFound, "not_found", "No segments for this file")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, seg := range segments {
		if seg.AudioPath == "" {
			continue
		}
		data, err := os.ReadFile(seg.AudioPath)
		if err != nil {
			h.Logger.WithError(err).WithField("segment_id", seg.ID).Warn("Skipping unreadable segment clip in archive")
			continue
		}
		entry, err := zw.Create(filepath.Base(seg.AudioPath))
		if err != nil {
			zw.Close()
			return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodeInternal, "Could not build archive")
		}
		if _, err := entry.Write(data); err != nil {
			zw.Close()
			return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodeInternal, "Could not build archive")
		}
	}
	if err := zw.Close(); err != nil {
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodeInternal, "Could not build archive")
	}

	c.Set(fiber.HeaderContentType, "application/zip")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("segments_%d.zip", id)))
	return c.Send(buf.Bytes())
}

// DeleteAudioFile removes a file and cascades its segments.
func (h *ApplicationHandler) DeleteAudioFile(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return utils.RespondWithError(c, fiber.StatusBadRequest, "invalid_id", "File id must be an integer")
	}
	deleted, err := h.Store.DeleteFile(c.UserContext(), id)
	if err != nil {
		h.Logger.WithError(err).WithField("file_id", id).Error("Deleting audio file failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodePersistenceFailed, "Could not delete file")
	}
	if !deleted {
		return utils.RespondWithError(c, fiber.StatusNotFound, "not_found", "File not found")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"deleted": id})
}

// GetMLReadySegments returns high-quality segments for training pipelines.
func (h *ApplicationHandler) GetMLReadySegments(c *fiber.Ctx) error {
	minQuality := c.QueryFloat("min_quality", 0.3)
	limit := c.QueryInt("limit", 100)
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	segments, err := h.Store.MLReadySegments(c.UserContext(), minQuality, limit)
	if err != nil {
		h.Logger.WithError(err).Error("Fetching ML-ready segments failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodePersistenceFailed, "Could not fetch segments")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, fiber.Map{"segments": segments, "count": len(segments)})
}

// GetStatistics returns corpus-level processing statistics.
func (h *ApplicationHandler) GetStatistics(c *fiber.Ctx) error {
	stats, err := h.Store.Statistics(c.UserContext())
	if err != nil {
		h.Logger.WithError(err).Error("Fetching statistics failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodePersistenceFailed, "Could not fetch statistics")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, stats)
}

// GetQualityStatistics returns segment quality aggregates.
func (h *ApplicationHandler) GetQualityStatistics(c *fiber.Ctx) error {
	stats, err := h.Store.QualityStatistics(c.UserContext())
	if err != nil {
		h.Logger.WithError(err).Error("Fetching quality statistics failed")
		return utils.RespondWithError(c, fiber.StatusInternalServerError, pipeline.CodePersistenceFailed, "Could not fetch statistics")
	}
	return utils.RespondWithJSON(c, fiber.StatusOK, stats)
}

func parseID(c *fiber.Ctx, name string) (int64, error) {
	return strconv.ParseInt(c.Params(name), 10, 64)
}
