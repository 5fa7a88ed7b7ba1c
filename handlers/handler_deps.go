package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"speechforge/internal/pipeline"
	"speechforge/internal/store"
	"speechforge/models"
)

// PipelineRunner is what handlers expect from the worker dispatcher. The
// interface keeps upload handling testable without a real model or pool.
type PipelineRunner interface {
	RunJob(ctx context.Context, id, filename string, data []byte) (*pipeline.Result, error)
}

// Persistence is the slice of the store handlers read from and delete
// through.
type Persistence interface {
	GetFile(ctx context.Context, id int64) (*models.AudioFile, error)
	ListFiles(ctx context.Context) ([]*models.AudioFile, error)
	GetSegments(ctx context.Context, fileID int64) ([]*models.AudioSegment, error)
	GetSegment(ctx context.Context, id int64) (*models.AudioSegment, error)
	MLReadySegments(ctx context.Context, minQuality float64, limit int) ([]*models.AudioSegment, error)
	DeleteFile(ctx context.Context, id int64) (bool, error)
	Statistics(ctx context.Context) (*store.Statistics, error)
	QualityStatistics(ctx context.Context) (*store.QualityStatistics, error)
}

// ApplicationHandler holds the shared handler dependencies.
type ApplicationHandler struct {
	Runner PipelineRunner
	Store  Persistence
	Logger *logrus.Logger
}

func NewApplicationHandler(runner PipelineRunner, st Persistence, logger *logrus.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		Runner: runner,
		Store:  st,
		Logger: logger,
	}
}
