package catalog

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS recordings (
    id          TEXT PRIMARY KEY,
    sensor_id   TEXT NOT NULL,
    status      TEXT NOT NULL,
    config      TEXT NOT NULL,
    files       TEXT NOT NULL,
    frame_count INTEGER NOT NULL,
    total_bytes INTEGER NOT NULL,
    start_time  DATETIME NOT NULL,
    end_time    DATETIME,
    failure     TEXT
);

CREATE TABLE IF NOT EXISTS calibrations (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    sensor_id  TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    accuracy   REAL NOT NULL,
    data       TEXT NOT NULL
);`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_recordings_sensor ON recordings (sensor_id);
CREATE INDEX IF NOT EXISTS idx_recordings_start ON recordings (start_time);
CREATE INDEX IF NOT EXISTS idx_calibrations_sensor_time ON calibrations (sensor_id, created_at);`

	upsertRecordingSQL = `
INSERT INTO recordings (id,
                        sensor_id,
                        status,
                        config,
                        files,
                        frame_count,
                        total_bytes,
                        start_time,
                        end_time,
                        failure)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET status      = excluded.status,
                               config      = excluded.config,
                               files       = excluded.files,
                               frame_count = excluded.frame_count,
                               total_bytes = excluded.total_bytes,
                               end_time    = excluded.end_time,
                               failure     = excluded.failure`

	selectRecordingSQL = `
SELECT
    id,
    sensor_id,
    status,
    config,
    files,
    frame_count,
    total_bytes,
    start_time,
    end_time,
    failure
FROM recordings
WHERE
    id = ?`

	selectRecordingsSQL = `
SELECT
    id,
    sensor_id,
    status,
    config,
    files,
    frame_count,
    total_bytes,
    start_time,
    end_time,
    failure
FROM recordings
ORDER BY start_time`

	insertCalibrationSQL = `
INSERT INTO calibrations (sensor_id,
                          created_at,
                          accuracy,
                          data)
VALUES (?, ?, ?, ?)`

	selectCalibrationsSQL = `
SELECT data
FROM calibrations
WHERE
    sensor_id = ?
ORDER BY created_at DESC`

	selectLatestCalibrationSQL = `
SELECT data
FROM calibrations
WHERE
    sensor_id = ?
ORDER BY created_at DESC
LIMIT 1`
)
