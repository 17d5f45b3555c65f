package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sensekit/depthsuite/internal/calibration"
	"github.com/sensekit/depthsuite/internal/recording"
)

// SqliteStore implements Store on a single SQLite database file. The write
// connection runs in WAL mode and bootstraps the schema on first use; reads
// go through a separate read-only connection.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var _ Store = (*SqliteStore)(nil)

// NewSqliteStore creates a store backed by the SQLite database at dbPath.
// Connections are opened lazily on first use.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) SaveRecording(ctx context.Context, sess *recording.Session) (err error) {
	if sess == nil {
		return errors.New("session required")
	}

	row, err := toRecordingRow(sess)
	if err != nil {
		return err
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, upsertRecordingSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(
		ctx,
		row.ID,
		row.SensorID,
		row.Status,
		row.Config,
		row.Files,
		row.FrameCount,
		row.TotalBytes,
		row.StartTime,
		row.EndTime,
		row.Failure,
	); err != nil {
		err = fmt.Errorf("upserting recording: %w", err)
	}
	return
}

func (s *SqliteStore) Recordings(ctx context.Context) (recordings []*RecordingInfo, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectRecordingsSQL)
	if err != nil {
		err = fmt.Errorf("querying recordings: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var row *recordingRow
		if row, err = scanRecordingRow(rows); err != nil {
			err = fmt.Errorf("scanning recording: %w", err)
			return
		}

		var info *RecordingInfo
		if info, err = row.toInfo(); err != nil {
			return
		}
		recordings = append(recordings, info)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating recordings: %w", err)
	}
	return
}

func (s *SqliteStore) Recording(ctx context.Context, id string) (info *RecordingInfo, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectRecordingSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	row, err := scanRecordingRow(stmt.QueryRowContext(ctx, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		err = fmt.Errorf("scanning recording: %w", err)
		return
	}
	return row.toInfo()
}

func (s *SqliteStore) SaveCalibration(ctx context.Context, data *calibration.Data) (err error) {
	if data == nil {
		return errors.New("calibration data required")
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling calibration: %w", err)
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, insertCalibrationSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx, data.SensorID, data.Timestamp.UTC(), data.Accuracy, string(payload)); err != nil {
		err = fmt.Errorf("inserting calibration: %w", err)
	}
	return
}

func (s *SqliteStore) Calibrations(ctx context.Context, sensorID string) (calibrations []*calibration.Data, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectCalibrationsSQL, sensorID)
	if err != nil {
		err = fmt.Errorf("querying calibrations: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var payload string
		if err = rows.Scan(&payload); err != nil {
			err = fmt.Errorf("scanning calibration: %w", err)
			return
		}

		var data calibration.Data
		if err = json.Unmarshal([]byte(payload), &data); err != nil {
			err = fmt.Errorf("unmarshaling calibration: %w", err)
			return
		}
		calibrations = append(calibrations, &data)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating calibrations: %w", err)
	}
	return
}

func (s *SqliteStore) LatestCalibration(ctx context.Context, sensorID string) (data *calibration.Data, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectLatestCalibrationSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var payload string
	if err = stmt.QueryRowContext(ctx, sensorID).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		err = fmt.Errorf("scanning calibration: %w", err)
		return
	}

	data = &calibration.Data{}
	if err = json.Unmarshal([]byte(payload), data); err != nil {
		return nil, fmt.Errorf("unmarshaling calibration: %w", err)
	}
	return data, nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}
