// Package store persists file and segment records in an embedded SQLite
// database. A file and its segments are inserted in one transaction so a
// partially-processed upload is never visible to queries.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"speechforge/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS audio_files (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	filename TEXT NOT NULL,
	audio_path TEXT NOT NULL,
	duration REAL NOT NULL,
	transcript TEXT NOT NULL DEFAULT '',
	wpm REAL NOT NULL DEFAULT 0,
	filler_ratio REAL NOT NULL DEFAULT 0,
	sentiment_score REAL NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS audio_segments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	original_file_id INTEGER NOT NULL REFERENCES audio_files(id) ON DELETE CASCADE,
	segment_index INTEGER NOT NULL,
	start_time REAL NOT NULL,
	end_time REAL NOT NULL,
	duration REAL NOT NULL,
	transcript TEXT NOT NULL DEFAULT '',
	audio_path TEXT NOT NULL DEFAULT '',
	wpm REAL NOT NULL DEFAULT 0,
	filler_ratio REAL NOT NULL DEFAULT 0,
	sentiment_score REAL NOT NULL DEFAULT 0,
	quality_score REAL NOT NULL DEFAULT 0,
	volume REAL NOT NULL DEFAULT 0,
	volume_db REAL NOT NULL DEFAULT -60,
	noise_ratio REAL NOT NULL DEFAULT 1,
	snr_estimate REAL NOT NULL DEFAULT 0,
	zero_crossing_rate REAL NOT NULL DEFAULT 0,
	spectral_centroid REAL NOT NULL DEFAULT 0,
	is_ml_ready INTEGER NOT NULL DEFAULT 0,
	training_priority REAL NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(original_file_id, segment_index)
);

CREATE INDEX IF NOT EXISTS idx_segments_file ON audio_segments(original_file_id);
CREATE INDEX IF NOT EXISTS idx_segments_quality ON audio_segments(quality_score);
`

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Foreign keys are enabled so segment rows cascade with their parent file.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// InsertFileWithSegments atomically persists a file record and all of its
// segments, assigning IDs to both. Nothing is visible until the transaction
// commits.
func (s *Store) InsertFileWithSegments(ctx context.Context, file *models.AudioFile, segments []*models.AudioSegment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO audio_files (filename, audio_path, duration, transcript, wpm, filler_ratio, sentiment_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		file.Filename, file.AudioPath, file.Duration, file.Transcript,
		file.WPM, file.FillerRatio, file.SentimentScore, file.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	fileID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("file id: %w", err)
	}
	file.ID = fileID

	for _, seg := range segments {
		seg.OriginalFileID = fileID
		res, err := tx.ExecContext(ctx, `
			INSERT INTO audio_segments
			(original_file_id, segment_index, start_time, end_time, duration,
			 transcript, audio_path, wpm, filler_ratio, sentiment_score, quality_score,
			 volume, volume_db, noise_ratio, snr_estimate, zero_crossing_rate,
			 spectral_centroid, is_ml_ready, training_priority, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			seg.OriginalFileID, seg.SegmentIndex, seg.StartTime, seg.EndTime, seg.Duration,
			seg.Transcript, seg.AudioPath, seg.WPM, seg.FillerRatio, seg.SentimentScore, seg.QualityScore,
			seg.Signal.Volume, seg.Signal.VolumeDB, seg.Signal.NoiseRatio, seg.Signal.SNREstimate,
			seg.Signal.ZeroCrossingRate, seg.Signal.SpectralCentroid,
			seg.IsMLReady, seg.TrainingPriority, seg.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert segment %d: %w", seg.SegmentIndex, err)
		}
		if seg.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("segment id: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

const fileColumns = `id, filename, audio_path, duration, transcript, wpm, filler_ratio, sentiment_score, created_at`

func scanFile(row interface{ Scan(...any) error }) (*models.AudioFile, error) {
	var f models.AudioFile
	err := row.Scan(&f.ID, &f.Filename, &f.AudioPath, &f.Duration, &f.Transcript,
		&f.WPM, &f.FillerRatio, &f.SentimentScore, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFile returns one file record, or nil when it does not exist.
func (s *Store) GetFile(ctx context.Context, id int64) (*models.AudioFile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+fileColumns+` FROM audio_files WHERE id = ?`, id)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	return f, nil
}

// ListFiles returns all file records, newest first.
func (s *Store) ListFiles(ctx context.Context) ([]*models.AudioFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+fileColumns+` FROM audio_files ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	var files []*models.AudioFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

const segmentColumns = `id, original_file_id, segment_index, start_time, end_time, duration,
	transcript, audio_path, wpm, filler_ratio, sentiment_score, quality_score,
	volume, volume_db, noise_ratio, snr_estimate, zero_crossing_rate, spectral_centroid,
	is_ml_ready, training_priority, created_at`

func scanSegment(row interface{ Scan(...any) error }) (*models.AudioSegment, error) {
	var seg models.AudioSegment
	err := row.Scan(&seg.ID, &seg.OriginalFileID, &seg.SegmentIndex, &seg.StartTime, &seg.EndTime,
		&seg.Duration, &seg.Transcript, &seg.AudioPath, &seg.WPM, &seg.FillerRatio,
		&seg.SentimentScore, &seg.QualityScore,
		&seg.Signal.Volume, &seg.Signal.VolumeDB, &seg.Signal.NoiseRatio, &seg.Signal.SNREstimate,
		&seg.Signal.ZeroCrossingRate, &seg.Signal.SpectralCentroid,
		&seg.IsMLReady, &seg.TrainingPriority, &seg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &seg, nil
}

// GetSegments returns all segments of one file in index order.
func (s *Store) GetSegments(ctx context.Context, fileID int64) ([]*models.AudioSegment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+segmentColumns+` FROM audio_segments
		WHERE original_file_id = ? ORDER BY segment_index ASC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segs []*models.AudioSegment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// GetSegment returns one segment record, or nil when it does not exist.
func (s *Store) GetSegment(ctx context.Context, id int64) (*models.AudioSegment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM audio_segments WHERE id = ?`, id)
	seg, err := scanSegment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan segment: %w", err)
	}
	return seg, nil
}

// MLReadySegments returns high-quality segments for downstream training,
// best first.
func (s *Store) MLReadySegments(ctx context.Context, minQuality float64, limit int) ([]*models.AudioSegment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+segmentColumns+` FROM audio_segments
		WHERE quality_score >= ? AND is_ml_ready = 1
		ORDER BY training_priority DESC, quality_score DESC
		LIMIT ?`, minQuality, limit)
	if err != nil {
		return nil, fmt.Errorf("query ml-ready segments: %w", err)
	}
	defer rows.Close()

	var segs []*models.AudioSegment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segs = append(segs, seg)
	}
	return segs, rows.Err()
}

// DeleteFile removes a file record; its segments cascade.
func (s *Store) DeleteFile(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audio_files WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Statistics summarizes the processed corpus.
type Statistics struct {
	TotalFiles          int     `json:"total_files"`
	TotalSegments       int     `json:"total_segments"`
	MLReadySegments     int     `json:"ml_ready_segments"`
	AverageDuration     float64 `json:"average_duration"`
	AverageWPM          float64 `json:"average_wpm"`
	AverageQualityScore float64 `json:"average_quality_score"`
}

func (s *Store) Statistics(ctx context.Context) (*Statistics, error) {
	var st Statistics
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM audio_files),
			(SELECT COUNT(*) FROM audio_segments),
			(SELECT COUNT(*) FROM audio_segments WHERE is_ml_ready = 1),
			(SELECT COALESCE(AVG(duration), 0) FROM audio_files),
			(SELECT COALESCE(AVG(wpm), 0) FROM audio_files),
			(SELECT COALESCE(AVG(quality_score), 0) FROM audio_segments)`,
	).Scan(&st.TotalFiles, &st.TotalSegments, &st.MLReadySegments,
		&st.AverageDuration, &st.AverageWPM, &st.AverageQualityScore)
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}
	return &st, nil
}

// QualityStatistics summarizes segment quality for the dashboard.
type QualityStatistics struct {
	TotalSegments   int     `json:"total_segments"`
	MLReadySegments int     `json:"ml_ready_segments"`
	AverageQuality  float64 `json:"average_quality"`
	MinQuality      float64 `json:"min_quality"`
	MaxQuality      float64 `json:"max_quality"`
	AverageVolume   float64 `json:"average_volume"`
	AverageVolumeDB float64 `json:"average_volume_db"`
	AverageNoise    float64 `json:"average_noise_ratio"`
}

func (s *Store) QualityStatistics(ctx context.Context) (*QualityStatistics, error) {
	var st QualityStatistics
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(is_ml_ready), 0),
			COALESCE(AVG(quality_score), 0),
			COALESCE(MIN(quality_score), 0),
			COALESCE(MAX(quality_score), 0),
			COALESCE(AVG(volume), 0),
			COALESCE(AVG(volume_db), -60),
			COALESCE(AVG(noise_ratio), 1)
		FROM audio_segments`,
	).Scan(&st.TotalSegments, &st.MLReadySegments, &st.AverageQuality,
		&st.MinQuality, &st.MaxQuality, &st.AverageVolume, &st.AverageVolumeDB, &st.AverageNoise)
	if err != nil {
		return nil, fmt.Errorf("query quality statistics: %w", err)
	}
	return &st, nil
}
