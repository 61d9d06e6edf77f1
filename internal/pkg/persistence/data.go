package persistence

import (
	"database/sql"
	"time"

	"github.com/salescope/ingest/internal/pkg/config"
)

type (

	// Folder table - one configured external audio source
	Folder struct {
		ID      string
		Name    string
		Config  *config.FolderConfig
		Active  bool
		Created time.Time
		Updated time.Time
	}

	// Job table - one discovery-and-process run over a folder
	Job struct {
		ID             string
		FolderID       string
		Name           string
		Status         string
		TotalFiles     int32
		ProcessedFiles int32
		FailedFiles    int32
		SkippedFiles   int32
		Error          sql.NullString
		StartedAt      sql.NullTime
		CompletedAt    sql.NullTime
		Created        time.Time
	}

	// FileRecord table - one discovered file within a job
	FileRecord struct {
		ID           string
		JobID        string
		FileName     string
		FilePath     string
		FileSize     int64
		Status       string
		RetryCount   int32
		ErrorCode    sql.NullString
		ErrorMessage sql.NullString
		ErrorDetails sql.NullString
		StartedAt    sql.NullTime
		CompletedAt  sql.NullTime
		CallID       sql.NullString
		Created      time.Time
	}

	// NotificationSink table - one configured notification target
	NotificationSink struct {
		ID         string
		Type       string
		Name       string
		Config     map[string]string
		Conditions []string
		Active     bool
		Created    time.Time
	}

	// Call table - persisted result of one successfully processed file
	Call struct {
		ID             string
		FileID         string
		Transcript     string
		Duration       float64
		WordCount      int32
		OverallScore   float64
		CategoryScores map[string]float64
		Notes          string
		Created        time.Time
	}
)
