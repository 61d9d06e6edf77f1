package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/salescope/ingest/internal/pkg/config"
	"github.com/salescope/ingest/internal/pkg/persistence"
	"github.com/salescope/ingest/internal/pkg/status"
)

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
}

// ErrFolderBusy is returned on folder deletion while jobs are active
var ErrFolderBusy = fmt.Errorf("folder has active jobs")

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	if pool == nil {
		return nil, fmt.Errorf("no pool")
	}
	return &DB{pool: pool}, nil
}

// InsertFolder inserts folder into DB
func (db *DB) InsertFolder(ctx context.Context, f *persistence.Folder) error {
	cfg, err := json.Marshal(f.Config)
	if err != nil {
		return fmt.Errorf("can't marshal config: %w", err)
	}
	rows, err := db.pool.Query(ctx, `INSERT INTO folders(id, name, config, active, created, updated)
	VALUES($1, $2, $3, $4, $5, $6)`, f.ID, f.Name, cfg, f.Active, f.Created, f.Updated)
	if err != nil {
		return fmt.Errorf("can't insert folder: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadFolder loads folder from DB
func (db *DB) LoadFolder(ctx context.Context, id string) (*persistence.Folder, error) {
	var res persistence.Folder
	var cfg []byte
	err := db.pool.QueryRow(ctx, `SELECT id, name, config, active, created, updated FROM folders
		WHERE id = $1`, id).Scan(&res.ID, &res.Name, &cfg, &res.Active, &res.Created, &res.Updated)
	if err != nil {
		return nil, fmt.Errorf("can't load folder: %w", err)
	}
	res.Config = &config.FolderConfig{}
	if err := json.Unmarshal(cfg, res.Config); err != nil {
		return nil, fmt.Errorf("can't unmarshal config: %w", err)
	}
	return &res, nil
}

// ListFolders loads all folders
func (db *DB) ListFolders(ctx context.Context) ([]*persistence.Folder, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, name, config, active, created, updated FROM folders ORDER BY created`)
	if err != nil {
		return nil, fmt.Errorf("can't load folders: %w", err)
	}
	defer rows.Close()
	var res []*persistence.Folder
	for rows.Next() {
		var f persistence.Folder
		var cfg []byte
		if err := rows.Scan(&f.ID, &f.Name, &cfg, &f.Active, &f.Created, &f.Updated); err != nil {
			return nil, fmt.Errorf("can't scan folder: %w", err)
		}
		f.Config = &config.FolderConfig{}
		if err := json.Unmarshal(cfg, f.Config); err != nil {
			return nil, fmt.Errorf("can't unmarshal config: %w", err)
		}
		res = append(res, &f)
	}
	return res, rows.Err()
}

// UpdateFolder saves folder changes
func (db *DB) UpdateFolder(ctx context.Context, f *persistence.Folder) error {
	cfg, err := json.Marshal(f.Config)
	if err != nil {
		return fmt.Errorf("can't marshal config: %w", err)
	}
	ct, err := db.pool.Exec(ctx, `UPDATE folders SET name = $2, config = $3, active = $4, updated = $5
		WHERE id = $1`, f.ID, f.Name, cfg, f.Active, time.Now())
	if err != nil {
		return fmt.Errorf("can't update folder: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("no folder '%s'", f.ID)
	}
	return nil
}

// DeleteFolder removes a folder and cascades to its jobs and file records.
// It fails with ErrFolderBusy while the folder still has a non-terminal job
func (db *DB) DeleteFolder(ctx context.Context, id string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("can't start tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	var active int
	err = tx.QueryRow(ctx, `SELECT count(*) FROM jobs WHERE folder_id = $1 AND status IN ($2, $3)`,
		id, status.JobPending.String(), status.JobRunning.String()).Scan(&active)
	if err != nil {
		return fmt.Errorf("can't check jobs: %w", err)
	}
	if active > 0 {
		return ErrFolderBusy
	}
	if _, err := tx.Exec(ctx, `DELETE FROM file_records WHERE job_id IN (SELECT id FROM jobs WHERE folder_id = $1)`, id); err != nil {
		return fmt.Errorf("can't delete file records: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM jobs WHERE folder_id = $1`, id); err != nil {
		return fmt.Errorf("can't delete jobs: %w", err)
	}
	ct, err := tx.Exec(ctx, `DELETE FROM folders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("can't delete folder: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("no folder '%s'", id)
	}
	return tx.Commit(ctx)
}

// InsertJob inserts job into DB
func (db *DB) InsertJob(ctx context.Context, j *persistence.Job) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO jobs(id, folder_id, name, status, created)
	VALUES($1, $2, $3, $4, $5)`, j.ID, j.FolderID, j.Name, j.Status, j.Created)
	if err != nil {
		return fmt.Errorf("can't insert job: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadJob loads job from DB
func (db *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	var res persistence.Job
	err := db.pool.QueryRow(ctx, `SELECT id, folder_id, name, status, total_files, processed_files,
	failed_files, skipped_files, error, started_at, completed_at, created FROM jobs
		WHERE id = $1`, id).Scan(&res.ID, &res.FolderID, &res.Name, &res.Status, &res.TotalFiles,
		&res.ProcessedFiles, &res.FailedFiles, &res.SkippedFiles, &res.Error,
		&res.StartedAt, &res.CompletedAt, &res.Created)
	if err != nil {
		return nil, fmt.Errorf("can't load job: %w", err)
	}
	return &res, nil
}

// ListJobs loads jobs, optionally filtered by folder
func (db *DB) ListJobs(ctx context.Context, folderID string) ([]*persistence.Job, error) {
	q := `SELECT id, folder_id, name, status, total_files, processed_files,
	failed_files, skipped_files, error, started_at, completed_at, created FROM jobs`
	var rows pgx.Rows
	var err error
	if folderID != "" {
		rows, err = db.pool.Query(ctx, q+` WHERE folder_id = $1 ORDER BY created DESC`, folderID)
	} else {
		rows, err = db.pool.Query(ctx, q+` ORDER BY created DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("can't load jobs: %w", err)
	}
	defer rows.Close()
	var res []*persistence.Job
	for rows.Next() {
		var j persistence.Job
		if err := rows.Scan(&j.ID, &j.FolderID, &j.Name, &j.Status, &j.TotalFiles,
			&j.ProcessedFiles, &j.FailedFiles, &j.SkippedFiles, &j.Error,
			&j.StartedAt, &j.CompletedAt, &j.Created); err != nil {
			return nil, fmt.Errorf("can't scan job: %w", err)
		}
		res = append(res, &j)
	}
	return res, rows.Err()
}

// UpdateJob updates job status and counters
func (db *DB) UpdateJob(ctx context.Context, j *persistence.Job) error {
	ct, err := db.pool.Exec(ctx, `UPDATE jobs SET
	status = $2,
	total_files = $3,
	processed_files = $4,
	failed_files = $5,
	skipped_files = $6,
	error = $7,
	started_at = $8,
	completed_at = $9
	WHERE id = $1`, j.ID, j.Status, j.TotalFiles, j.ProcessedFiles, j.FailedFiles,
		j.SkippedFiles, j.Error, j.StartedAt, j.CompletedAt)
	if err != nil {
		return fmt.Errorf("can't update job: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("can't update job, no records found")
	}
	return nil
}

// InsertFileRecord inserts file record into DB
func (db *DB) InsertFileRecord(ctx context.Context, r *persistence.FileRecord) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO file_records(id, job_id, file_name, file_path, file_size, status, created)
	VALUES($1, $2, $3, $4, $5, $6, $7)`, r.ID, r.JobID, r.FileName, r.FilePath, r.FileSize, r.Status, r.Created)
	if err != nil {
		return fmt.Errorf("can't insert file record: %w", err)
	}
	defer rows.Close()
	return nil
}

// LoadFileRecord loads file record from DB
func (db *DB) LoadFileRecord(ctx context.Context, id string) (*persistence.FileRecord, error) {
	var res persistence.FileRecord
	err := db.pool.QueryRow(ctx, `SELECT id, job_id, file_name, file_path, file_size, status, retry_count,
	error_code, error_message, error_details, started_at, completed_at, call_id, created FROM file_records
		WHERE id = $1`, id).Scan(&res.ID, &res.JobID, &res.FileName, &res.FilePath, &res.FileSize,
		&res.Status, &res.RetryCount, &res.ErrorCode, &res.ErrorMessage, &res.ErrorDetails,
		&res.StartedAt, &res.CompletedAt, &res.CallID, &res.Created)
	if err != nil {
		return nil, fmt.Errorf("can't load file record: %w", err)
	}
	return &res, nil
}

// UpdateFileRecord updates mutable fields of a file record
func (db *DB) UpdateFileRecord(ctx context.Context, r *persistence.FileRecord) error {
	ct, err := db.pool.Exec(ctx, `UPDATE file_records SET
	status = $2,
	retry_count = $3,
	error_code = $4,
	error_message = $5,
	error_details = $6,
	started_at = $7,
	completed_at = $8,
	call_id = $9
	WHERE id = $1`, r.ID, r.Status, r.RetryCount, r.ErrorCode, r.ErrorMessage, r.ErrorDetails,
		r.StartedAt, r.CompletedAt, r.CallID)
	if err != nil {
		return fmt.Errorf("can't update file record: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("can't update file record, no records found")
	}
	return nil
}

// ListFileRecords loads all file records of a job
func (db *DB) ListFileRecords(ctx context.Context, jobID string) ([]*persistence.FileRecord, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, job_id, file_name, file_path, file_size, status, retry_count,
	error_code, error_message, error_details, started_at, completed_at, call_id, created FROM file_records
		WHERE job_id = $1 ORDER BY created`, jobID)
	if err != nil {
		return nil, fmt.Errorf("can't load file records: %w", err)
	}
	defer rows.Close()
	var res []*persistence.FileRecord
	for rows.Next() {
		var r persistence.FileRecord
		if err := rows.Scan(&r.ID, &r.JobID, &r.FileName, &r.FilePath, &r.FileSize,
			&r.Status, &r.RetryCount, &r.ErrorCode, &r.ErrorMessage, &r.ErrorDetails,
			&r.StartedAt, &r.CompletedAt, &r.CallID, &r.Created); err != nil {
			return nil, fmt.Errorf("can't scan file record: %w", err)
		}
		res = append(res, &r)
	}
	return res, rows.Err()
}

// InsertNotificationSink inserts notification config into DB
func (db *DB) InsertNotificationSink(ctx context.Context, n *persistence.NotificationSink) error {
	rows, err := db.pool.Query(ctx, `INSERT INTO notification_sinks(id, type, name, config, conditions, active, created)
	VALUES($1, $2, $3, $4, $5, $6, $7)`, n.ID, n.Type, n.Name, n.Config, n.Conditions, n.Active, n.Created)
	if err != nil {
		return fmt.Errorf("can't insert notification sink: %w", err)
	}
	defer rows.Close()
	return nil
}

// ListActiveNotificationSinks loads active notification configs
func (db *DB) ListActiveNotificationSinks(ctx context.Context) ([]*persistence.NotificationSink, error) {
	rows, err := db.pool.Query(ctx, `SELECT id, type, name, config, conditions, active, created
	FROM notification_sinks WHERE active = TRUE ORDER BY created`)
	if err != nil {
		return nil, fmt.Errorf("can't load notification sinks: %w", err)
	}
	defer rows.Close()
	var res []*persistence.NotificationSink
	for rows.Next() {
		var n persistence.NotificationSink
		if err := rows.Scan(&n.ID, &n.Type, &n.Name, &n.Config, &n.Conditions, &n.Active, &n.Created); err != nil {
			return nil, fmt.Errorf("can't scan notification sink: %w", err)
		}
		res = append(res, &n)
	}
	return res, rows.Err()
}

// DeleteNotificationSink removes a notification config
func (db *DB) DeleteNotificationSink(ctx context.Context, id string) error {
	ct, err := db.pool.Exec(ctx, `DELETE FROM notification_sinks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("can't delete notification sink: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("no notification sink '%s'", id)
	}
	return nil
}

// InsertCall persists the processed result of one file
func (db *DB) InsertCall(ctx context.Context, c *persistence.Call) error {
	scores, err := json.Marshal(c.CategoryScores)
	if err != nil {
		return fmt.Errorf("can't marshal scores: %w", err)
	}
	rows, err := db.pool.Query(ctx, `INSERT INTO calls(id, file_id, transcript, duration, word_count,
	overall_score, category_scores, notes, created)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9)`, c.ID, c.FileID, c.Transcript, c.Duration,
		c.WordCount, c.OverallScore, scores, c.Notes, time.Now())
	if err != nil {
		return fmt.Errorf("can't insert call: %w", err)
	}
	defer rows.Close()
	return nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'gue_jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}
