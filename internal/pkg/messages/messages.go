package messages

import (
	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "INGEST/"
	// Batch queue name - start a batch run for a folder
	Batch = st + "Batch"
	// Cancel queue name - stop a running batch job
	Cancel = st + "Cancel"
	// RetryFile queue name - reprocess one failed file
	RetryFile = st + "RetryFile"
	// StatusChange queue name - job counters/status changed
	StatusChange = st + "StatusChange"
)

// BatchMessage asks the orchestrator to start a run over a folder
type BatchMessage struct {
	amessages.QueueMessage
	FolderID string `json:"folderID"`
	JobName  string `json:"jobName,omitempty"`
}

// JobMessage carries a job id, used for cancel and status change events
type JobMessage struct {
	amessages.QueueMessage
}

// FileMessage carries a file record id
type FileMessage struct {
	amessages.QueueMessage
	FileID string `json:"fileID"`
}
