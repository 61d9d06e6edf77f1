package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/airenas/go-app/pkg/goapp"
)

// Registry maps provider type names to registered instances.
// It is filled once at process start and read afterwards
type Registry struct {
	lock      *sync.RWMutex
	storage   map[string]Storage
	monitors  map[string]Monitor
	notifiers map[string]Notifier
}

// Stats is an aggregate view over the registry content
type Stats struct {
	StorageTypes  []string `json:"storageTypes"`
	MonitorTypes  []string `json:"monitorTypes"`
	NotifierTypes []string `json:"notifierTypes"`
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{lock: &sync.RWMutex{},
		storage:   map[string]Storage{},
		monitors:  map[string]Monitor{},
		notifiers: map[string]Notifier{},
	}
}

// RegisterStorage adds a storage provider
func (r *Registry) RegisterStorage(p Storage) error {
	if p == nil {
		return fmt.Errorf("no provider")
	}
	return register(r, r.storage, p.Type(), p, "storage")
}

// RegisterMonitor adds a monitor provider
func (r *Registry) RegisterMonitor(p Monitor) error {
	if p == nil {
		return fmt.Errorf("no provider")
	}
	return register(r, r.monitors, p.Type(), p, "monitor")
}

// RegisterNotifier adds a notification provider
func (r *Registry) RegisterNotifier(p Notifier) error {
	if p == nil {
		return fmt.Errorf("no provider")
	}
	return register(r, r.notifiers, p.Type(), p, "notifier")
}

// Storage returns a registered storage provider by type name
func (r *Registry) Storage(name string) (Storage, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	p, ok := r.storage[name]
	return p, ok
}

// Monitor returns a registered monitor provider by type name
func (r *Registry) Monitor(name string) (Monitor, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	p, ok := r.monitors[name]
	return p, ok
}

// Notifier returns a registered notification provider by type name
func (r *Registry) Notifier(name string) (Notifier, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	p, ok := r.notifiers[name]
	return p, ok
}

// HasStorage checks registration by type name
func (r *Registry) HasStorage(name string) bool {
	_, ok := r.Storage(name)
	return ok
}

// HasMonitor checks registration by type name
func (r *Registry) HasMonitor(name string) bool {
	_, ok := r.Monitor(name)
	return ok
}

// HasNotifier checks registration by type name
func (r *Registry) HasNotifier(name string) bool {
	_, ok := r.Notifier(name)
	return ok
}

// GetStats returns registered type names per capability
func (r *Registry) GetStats() *Stats {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return &Stats{StorageTypes: keys(r.storage), MonitorTypes: keys(r.monitors),
		NotifierTypes: keys(r.notifiers)}
}

func register[T any](r *Registry, m map[string]T, name string, p T, kind string) error {
	if name == "" {
		return fmt.Errorf("no %s provider type name", kind)
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if _, ok := m[name]; ok {
		return fmt.Errorf("%s provider '%s' already registered", kind, name)
	}
	m[name] = p
	goapp.Log.Info().Str("type", name).Str("kind", kind).Msg("registered provider")
	return nil
}

func keys[T any](m map[string]T) []string {
	res := make([]string, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}
