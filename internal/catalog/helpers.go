package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sensekit/depthsuite/internal/recording"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// recordingRow is the SQL shape of a recordings table row.
type recordingRow struct {
	ID         string
	SensorID   string
	Status     string
	Config     string
	Files      string
	FrameCount int
	TotalBytes int64
	StartTime  time.Time
	EndTime    sql.NullTime
	Failure    sql.NullString
}

func toRecordingRow(sess *recording.Session) (*recordingRow, error) {
	config, err := json.Marshal(sess.Config())
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}

	files := sess.Files()
	if files == nil {
		files = []string{}
	}
	fileList, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("marshaling file list: %w", err)
	}

	row := &recordingRow{
		ID:         sess.ID(),
		SensorID:   sess.SensorID(),
		Status:     string(sess.Status()),
		Config:     string(config),
		Files:      string(fileList),
		FrameCount: sess.PersistedFrames(),
		TotalBytes: sess.TotalBytes(),
		StartTime:  sess.StartTime().UTC(),
	}
	if end := sess.EndTime(); end != nil {
		row.EndTime = sql.NullTime{Time: end.UTC(), Valid: true}
	}
	if failure := sess.Failure(); failure != "" {
		row.Failure = sql.NullString{String: failure, Valid: true}
	}
	return row, nil
}

func (r *recordingRow) toInfo() (*RecordingInfo, error) {
	info := &RecordingInfo{
		ID:         r.ID,
		SensorID:   r.SensorID,
		Status:     r.Status,
		FrameCount: r.FrameCount,
		TotalBytes: r.TotalBytes,
		StartTime:  r.StartTime,
	}
	if err := json.Unmarshal([]byte(r.Config), &info.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Files), &info.Files); err != nil {
		return nil, fmt.Errorf("unmarshaling file list: %w", err)
	}
	if r.EndTime.Valid {
		t := r.EndTime.Time
		info.EndTime = &t
	}
	if r.Failure.Valid {
		info.Failure = r.Failure.String
	}
	return info, nil
}

// scanner abstracts *sql.Row and *sql.Rows for row scanning.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecordingRow(s scanner) (*recordingRow, error) {
	var row recordingRow
	err := s.Scan(
		&row.ID,
		&row.SensorID,
		&row.Status,
		&row.Config,
		&row.Files,
		&row.FrameCount,
		&row.TotalBytes,
		&row.StartTime,
		&row.EndTime,
		&row.Failure,
	)
	if err != nil {
		return nil, err
	}
	return &row, nil
}
