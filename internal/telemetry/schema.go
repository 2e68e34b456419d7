package telemetry

import (
	"database/sql"

	"codeberg.org/mutker/ipmifanctl/internal/errors"
)

// InitSchema initializes the database schema for the decision log
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS decisions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            timestamp INTEGER NOT NULL,
            host TEXT NOT NULL,
            cpu_avg REAL,
            gpu_avg REAL,
            gpu_max REAL,
            has_gpu INTEGER,
            effective_temp REAL,
            curve TEXT,
            decision TEXT,
            fan_speed REAL,
            overpower INTEGER,
            auto_mode INTEGER
        );
        CREATE INDEX IF NOT EXISTS idx_decisions_host_time
            ON decisions (host, timestamp)
    `)
	if err != nil {
		return errors.New().Wrap(ErrSchemaInitFailed, err)
	}

	return nil
}

func insertDecisionSQL() string {
	return `INSERT INTO decisions (
        timestamp, host, cpu_avg, gpu_avg, gpu_max, has_gpu,
        effective_temp, curve, decision, fan_speed, overpower, auto_mode
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
}
