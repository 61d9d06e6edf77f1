package poll

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/salescope/ingest/internal/pkg/provider"
)

const defaultInterval = time.Minute

// Lister provides the file listing the monitor polls.
// A connected storage provider satisfies it
type Lister interface {
	ListFiles(ctx context.Context, path string) ([]provider.FileInfo, error)
}

// Monitor polls an external location on a fixed interval
type Monitor struct {
	lister  Lister
	onFiles func(ctx context.Context, files []provider.FileInfo)

	lock    *sync.Mutex
	watches map[string]context.CancelFunc
}

// NewMonitor creates the instance. onFiles may be nil,
// then only explicit ScanForFiles calls report anything
func NewMonitor(lister Lister, onFiles func(ctx context.Context, files []provider.FileInfo)) (*Monitor, error) {
	if lister == nil {
		return nil, fmt.Errorf("no lister")
	}
	return &Monitor{lister: lister, onFiles: onFiles,
		lock: &sync.Mutex{}, watches: map[string]context.CancelFunc{}}, nil
}

// NewPrototype creates an unbound instance for registry registration.
// The factory binds it to a storage provider with New
func NewPrototype(onFiles func(ctx context.Context, files []provider.FileInfo)) *Monitor {
	return &Monitor{onFiles: onFiles,
		lock: &sync.Mutex{}, watches: map[string]context.CancelFunc{}}
}

// New clones the prototype bound to the given storage
func (m *Monitor) New(st provider.Storage) provider.Monitor {
	return &Monitor{lister: st, onFiles: m.onFiles,
		lock: &sync.Mutex{}, watches: map[string]context.CancelFunc{}}
}

// Type implements provider.Monitor
func (m *Monitor) Type() string {
	return "poll"
}

// ValidateConfig implements provider.Monitor
func (m *Monitor) ValidateConfig(cfg map[string]string) error {
	if v := cfg["intervalSeconds"]; v != "" {
		i, err := strconv.Atoi(v)
		if err != nil || i < 1 {
			return fmt.Errorf("wrong intervalSeconds '%s'", v)
		}
	}
	return nil
}

// TestConnection implements provider.Monitor
func (m *Monitor) TestConnection(ctx context.Context, cfg map[string]string) error {
	_, err := m.lister.ListFiles(ctx, cfg["path"])
	if err != nil {
		return fmt.Errorf("can't list '%s': %w", cfg["path"], err)
	}
	return nil
}

// ScanForFiles lists the configured path once
func (m *Monitor) ScanForFiles(ctx context.Context, cfg map[string]string) ([]provider.FileInfo, error) {
	return m.lister.ListFiles(ctx, cfg["path"])
}

// StartMonitoring launches the polling loop, returns a handle for StopMonitoring
func (m *Monitor) StartMonitoring(ctx context.Context, cfg map[string]string) (string, error) {
	if err := m.ValidateConfig(cfg); err != nil {
		return "", err
	}
	interval := defaultInterval
	if v := cfg["intervalSeconds"]; v != "" {
		i, _ := strconv.Atoi(v)
		interval = time.Duration(i) * time.Second
	}
	// loop must outlive the start call
	loopCtx, cf := context.WithCancel(context.Background())
	handle := uuid.New().String()
	m.lock.Lock()
	m.watches[handle] = cf
	m.lock.Unlock()
	go m.loop(loopCtx, handle, cfg["path"], interval)
	return handle, nil
}

// StopMonitoring cancels the polling loop behind the handle
func (m *Monitor) StopMonitoring(handle string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	cf, ok := m.watches[handle]
	if !ok {
		return fmt.Errorf("no watch '%s'", handle)
	}
	cf()
	delete(m.watches, handle)
	return nil
}

func (m *Monitor) loop(ctx context.Context, handle, path string, interval time.Duration) {
	goapp.Log.Info().Str("handle", handle).Str("path", path).Dur("interval", interval).Msg("start polling")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			goapp.Log.Info().Str("handle", handle).Msg("polling stopped")
			return
		case <-ticker.C:
			files, err := m.lister.ListFiles(ctx, path)
			if err != nil {
				goapp.Log.Error().Err(err).Str("path", path).Msg("scan failed")
				continue
			}
			if m.onFiles != nil && len(files) > 0 {
				m.onFiles(ctx, files)
			}
		}
	}
}
