package config

// ProviderRef selects a registered provider implementation and carries
// its opaque settings
type ProviderRef struct {
	Type   string            `json:"type"`
	Config map[string]string `json:"config"`
}

// RetryConfig controls per-file retry behaviour
type RetryConfig struct {
	Enabled            bool `json:"enabled"`
	MaxRetries         int  `json:"maxRetries" validate:"min=0,max=10"`
	DelaySeconds       int  `json:"delaySeconds" validate:"min=1,max=3600"`
	ExponentialBackoff bool `json:"exponentialBackoff"`
}

// ProcessingConfig bounds how files of a folder are processed
type ProcessingConfig struct {
	MaxFileSize        int64       `json:"maxFileSize" validate:"min=1048576,max=2147483648"`
	AllowedExtensions  []string    `json:"allowedExtensions" validate:"min=1"`
	AutoStart          bool        `json:"autoStart"`
	MaxConcurrentFiles int         `json:"maxConcurrentFiles" validate:"min=1,max=20"`
	Retry              RetryConfig `json:"retryConfig" validate:"-"`
}

// FolderConfig is the full configuration of one external audio source
type FolderConfig struct {
	ID         string            `json:"id,omitempty"`
	Name       string            `json:"name"`
	Storage    *ProviderRef      `json:"storage"`
	Monitor    *ProviderRef      `json:"monitor"`
	Processing *ProcessingConfig `json:"processing"`
}

// NotificationConfig describes one notification sink
type NotificationConfig struct {
	ID         string            `json:"id,omitempty"`
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Config     map[string]string `json:"config"`
	Conditions []string          `json:"conditions"`
	Active     bool              `json:"isActive"`
}

// Notification sink types
const (
	NotificationEmail   = "email"
	NotificationSlack   = "slack"
	NotificationWebhook = "webhook"
	NotificationSMS     = "sms"
)

// Notification trigger conditions
const (
	CondFileFailed          = "file_failed"
	CondFileProcessed       = "file_processed"
	CondBatchCompleted      = "batch_completed"
	CondBatchFailed         = "batch_failed"
	CondFolderScanCompleted = "folder_scan_completed"
	CondSystemError         = "system_error"
)
