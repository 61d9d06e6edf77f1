package provider

import (
	"context"
	"time"
)

// FileInfo describes one file visible at an external location
type FileInfo struct {
	Name     string
	Path     string
	Size     int64
	Modified time.Time
}

// Event is a notification payload delivered to sinks
type Event struct {
	Condition string            `json:"condition"`
	JobID     string            `json:"jobId,omitempty"`
	FolderID  string            `json:"folderId,omitempty"`
	Message   string            `json:"message,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
	At        time.Time         `json:"at"`
}

// Storage retrieves files from an external location
type Storage interface {
	Connect(ctx context.Context, cfg map[string]string) error
	ListFiles(ctx context.Context, path string) ([]FileInfo, error)
	DownloadFile(ctx context.Context, remotePath, localPath string) error
	ValidateConfig(cfg map[string]string) error
	TestConnection(ctx context.Context, cfg map[string]string) error
	Type() string
}

// Monitor watches an external location for new files
type Monitor interface {
	StartMonitoring(ctx context.Context, cfg map[string]string) (string, error)
	StopMonitoring(handle string) error
	ScanForFiles(ctx context.Context, cfg map[string]string) ([]FileInfo, error)
	ValidateConfig(cfg map[string]string) error
	TestConnection(ctx context.Context, cfg map[string]string) error
	Type() string
}

// Notifier delivers events to one configured sink
type Notifier interface {
	Configure(cfg map[string]string) error
	SendNotification(ctx context.Context, ev *Event) error
	ValidateConfig(cfg map[string]string) error
	TestConnection(ctx context.Context, cfg map[string]string) error
	Type() string
}
