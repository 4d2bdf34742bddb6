package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"datakit/internal/pipeline"

	"github.com/google/uuid"
)

// JobStore implements persistence for sync jobs and run logs.
type JobStore struct {
	db *DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *DB) *JobStore {
	return &JobStore{db: db}
}

// ── SyncJob CRUD ───────────────────────────────────────────

func (s *JobStore) CreateJob(job *pipeline.SyncJob) error {
	now := time.Now()
	job.ID = uuid.New().String()
	job.CreatedAt = now
	job.UpdatedAt = now

	srcCfg, _ := json.Marshal(job.SourceCfg)
	transforms, _ := json.Marshal(job.Transforms)
	sinkCfg, _ := json.Marshal(job.SinkCfg)

	_, err := s.db.conn.Exec(
		`INSERT INTO sync_jobs (id, name, source_type, source_config, transforms,
		 sink_type, sink_config, sync_mode, dedupe_key, trigger_type, trigger_config,
		 enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.SourceType, string(srcCfg), string(transforms),
		job.SinkType, string(sinkCfg), job.SyncMode, job.DedupeKey,
		job.TriggerType, job.TriggerConfig, job.Enabled,
		job.CreatedAt, job.UpdatedAt,
	)
	return err
}

func (s *JobStore) GetJob(id string) (*pipeline.SyncJob, error) {
	job := &pipeline.SyncJob{}
	var srcCfg, transforms, sinkCfg string

	err := s.db.conn.QueryRow(
		`SELECT id, name, source_type, source_config, transforms, sink_type, sink_config,
		 sync_mode, dedupe_key, trigger_type, trigger_config, enabled,
		 last_run_at, last_status, last_error, created_at, updated_at
		 FROM sync_jobs WHERE id = ?`, id,
	).Scan(
		&job.ID, &job.Name, &job.SourceType, &srcCfg, &transforms,
		&job.SinkType, &sinkCfg, &job.SyncMode, &job.DedupeKey,
		&job.TriggerType, &job.TriggerConfig, &job.Enabled,
		&job.LastRunAt, &job.LastStatus, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("sync job not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(srcCfg), &job.SourceCfg)
	json.Unmarshal([]byte(transforms), &job.Transforms)
	json.Unmarshal([]byte(sinkCfg), &job.SinkCfg)
	return job, nil
}

func (s *JobStore) UpdateJob(job *pipeline.SyncJob) error {
	job.UpdatedAt = time.Now()
	srcCfg, _ := json.Marshal(job.SourceCfg)
	transforms, _ := json.Marshal(job.Transforms)
	sinkCfg, _ := json.Marshal(job.SinkCfg)

	_, err := s.db.conn.Exec(
		`UPDATE sync_jobs SET name=?, source_type=?, source_config=?, transforms=?,
		 sink_type=?, sink_config=?, sync_mode=?, dedupe_key=?, trigger_type=?,
		 trigger_config=?, enabled=?, updated_at=? WHERE id=?`,
		job.Name, job.SourceType, string(srcCfg), string(transforms),
		job.SinkType, string(sinkCfg), job.SyncMode, job.DedupeKey,
		job.TriggerType, job.TriggerConfig, job.Enabled,
		job.UpdatedAt, job.ID,
	)
	return err
}

func (s *JobStore) UpdateJobStatus(id, status, errMsg string) error {
	_, err := s.db.conn.Exec(
		`UPDATE sync_jobs SET last_run_at=?, last_status=?, last_error=?, updated_at=? WHERE id=?`,
		time.Now(), status, errMsg, time.Now(), id,
	)
	return err
}

func (s *JobStore) DeleteJob(id string) error {
	// Delete run logs first, then the job
	if _, err := s.db.conn.Exec(`DELETE FROM sync_run_logs WHERE job_id = ?`, id); err != nil {
		return err
	}
	_, err := s.db.conn.Exec(`DELETE FROM sync_jobs WHERE id = ?`, id)
	return err
}

func (s *JobStore) ListJobs() ([]pipeline.SyncJob, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, name, source_type, source_config, transforms, sink_type, sink_config,
		 sync_mode, dedupe_key, trigger_type, trigger_config, enabled,
		 last_run_at, last_status, last_error, created_at, updated_at
		 FROM sync_jobs ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

// ListEnabledTriggeredJobs returns enabled jobs with a schedule or
// file_watch trigger. Used when (re)starting the watcher loops.
func (s *JobStore) ListEnabledTriggeredJobs() ([]pipeline.SyncJob, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, name, source_type, source_config, transforms, sink_type, sink_config,
		 sync_mode, dedupe_key, trigger_type, trigger_config, enabled,
		 last_run_at, last_status, last_error, created_at, updated_at
		 FROM sync_jobs
		 WHERE enabled = 1 AND trigger_type IN ('schedule', 'file_watch')`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]pipeline.SyncJob, error) {
	var result []pipeline.SyncJob
	for rows.Next() {
		job := pipeline.SyncJob{}
		var srcCfg, transforms, sinkCfg string
		if err := rows.Scan(
			&job.ID, &job.Name, &job.SourceType, &srcCfg, &transforms,
			&job.SinkType, &sinkCfg, &job.SyncMode, &job.DedupeKey,
			&job.TriggerType, &job.TriggerConfig, &job.Enabled,
			&job.LastRunAt, &job.LastStatus, &job.LastError,
			&job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, err
		}
		json.Unmarshal([]byte(srcCfg), &job.SourceCfg)
		json.Unmarshal([]byte(transforms), &job.Transforms)
		json.Unmarshal([]byte(sinkCfg), &job.SinkCfg)
		result = append(result, job)
	}
	return result, rows.Err()
}

// ── Run logs ───────────────────────────────────────────────

func (s *JobStore) CreateRunLog(l *pipeline.SyncRunLog) error {
	l.ID = uuid.New().String()
	_, err := s.db.conn.Exec(
		`INSERT INTO sync_run_logs (id, job_id, started_at, finished_at, status,
		 rows_read, rows_written, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.JobID, l.StartedAt, l.FinishedAt, l.Status,
		l.RowsRead, l.RowsWritten, l.Error,
	)
	return err
}

func (s *JobStore) ListRunLogs(jobID string, limit int) ([]pipeline.SyncRunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(
		`SELECT id, job_id, started_at, finished_at, status, rows_read, rows_written, error
		 FROM sync_run_logs WHERE job_id = ? ORDER BY started_at DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []pipeline.SyncRunLog
	for rows.Next() {
		l := pipeline.SyncRunLog{}
		if err := rows.Scan(&l.ID, &l.JobID, &l.StartedAt, &l.FinishedAt, &l.Status,
			&l.RowsRead, &l.RowsWritten, &l.Error); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}
