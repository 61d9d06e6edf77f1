package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Result collects all violations of one validation run
type Result struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Validator checks folder and notification configurations.
// It collects all problems at once, it does not stop on the first one
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates the instance
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// ValidateFolder checks a folder configuration.
// A missing ID is filled in and reported as a warning, not an error
func (v *Validator) ValidateFolder(cfg *FolderConfig) *Result {
	res := &Result{}
	if cfg == nil {
		res.addError("no config")
		return res.finish()
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
		res.addWarning("no id - generated " + cfg.ID)
	}
	if cfg.Name == "" {
		res.addError("no name")
	}
	v.checkStorage(cfg.Storage, res)
	v.checkMonitor(cfg.Monitor, res)
	v.checkProcessing(cfg.Processing, res)
	return res.finish()
}

// ValidateNotification checks a notification sink configuration
func (v *Validator) ValidateNotification(cfg *NotificationConfig) *Result {
	res := &Result{}
	if cfg == nil {
		res.addError("no config")
		return res.finish()
	}
	if cfg.ID == "" {
		cfg.ID = uuid.New().String()
		res.addWarning("no id - generated " + cfg.ID)
	}
	if cfg.Name == "" {
		res.addError("no name")
	}
	switch cfg.Type {
	case NotificationEmail:
		requireKeys(cfg.Config, res, "notification", "to", "host", "port")
	case NotificationWebhook, NotificationSlack:
		if u := cfg.Config["url"]; u == "" {
			res.addError("notification: no url")
		} else if pu, err := url.Parse(u); err != nil || pu.Scheme == "" || pu.Host == "" {
			res.addError(fmt.Sprintf("notification: malformed url '%s'", u))
		}
	case NotificationSMS:
		requireKeys(cfg.Config, res, "notification", "phone")
	case "":
		res.addError("notification: no type")
	default:
		res.addError(fmt.Sprintf("notification: unknown type '%s'", cfg.Type))
	}
	for _, c := range cfg.Conditions {
		if !knownConditions[c] {
			res.addError(fmt.Sprintf("notification: unknown condition '%s'", c))
		}
	}
	return res.finish()
}

var knownConditions = map[string]bool{
	CondFileFailed: true, CondFileProcessed: true, CondBatchCompleted: true,
	CondBatchFailed: true, CondFolderScanCompleted: true, CondSystemError: true,
}

func (v *Validator) checkStorage(ref *ProviderRef, res *Result) {
	if ref == nil {
		res.addError("no storage block")
		return
	}
	if ref.Type == "" {
		res.addError("storage: no type")
	}
	if ref.Type == "local" && ref.Config["path"] == "" {
		res.addError("storage: no path for local storage")
	}
	if (ref.Type == "minio" || ref.Type == "s3") && ref.Config["bucket"] == "" {
		res.addError("storage: no bucket")
	}
}

func (v *Validator) checkMonitor(ref *ProviderRef, res *Result) {
	if ref == nil {
		res.addError("no monitor block")
		return
	}
	if ref.Type == "" {
		res.addError("monitor: no type")
	}
}

func (v *Validator) checkProcessing(cfg *ProcessingConfig, res *Result) {
	if cfg == nil {
		res.addError("no processing block")
		return
	}
	if err := v.validate.Struct(cfg); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			res.addError(err.Error())
			return
		}
		for _, fe := range ve {
			res.addError(fmt.Sprintf("processing: field '%s' fails '%s' check", fe.Field(), fe.Tag()))
		}
	}
	for _, ext := range cfg.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			res.addError(fmt.Sprintf("processing: extension '%s' must start with a dot", ext))
		}
	}
	if !cfg.Retry.Enabled {
		return
	}
	if err := v.validate.Struct(&cfg.Retry); err != nil {
		if ve, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range ve {
				res.addError(fmt.Sprintf("retry: field '%s' fails '%s' check", fe.Field(), fe.Tag()))
			}
		} else {
			res.addError(err.Error())
		}
	}
}

func requireKeys(cfg map[string]string, res *Result, prefix string, keys ...string) {
	for _, k := range keys {
		if cfg[k] == "" {
			res.addError(fmt.Sprintf("%s: no %s", prefix, k))
		}
	}
}

func (r *Result) addError(msg string) {
	r.Errors = append(r.Errors, msg)
}

func (r *Result) addWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

func (r *Result) finish() *Result {
	r.Valid = len(r.Errors) == 0
	return r
}

// Err turns a failed result into one error value
func (r *Result) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid config: %s", strings.Join(r.Errors, "; "))
}
