package provider

import (
	"context"
	"fmt"
)

// Factory resolves (capability, type name, config) to a ready provider.
// It validates the config and tests connectivity before returning,
// it never falls back to another provider type
type Factory struct {
	registry *Registry
}

// NewFactory creates the instance
func NewFactory(registry *Registry) (*Factory, error) {
	if registry == nil {
		return nil, fmt.Errorf("no registry")
	}
	return &Factory{registry: registry}, nil
}

// GetStorage returns a connected storage provider for typeName
func (f *Factory) GetStorage(ctx context.Context, typeName string, cfg map[string]string) (Storage, error) {
	p, ok := f.registry.Storage(typeName)
	if !ok {
		return nil, fmt.Errorf("no storage provider '%s'", typeName)
	}
	// registered instance is a prototype, take a fresh copy for this config
	if c, okC := p.(interface{ New() Storage }); okC {
		p = c.New()
	}
	if err := p.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid storage config for '%s': %w", typeName, err)
	}
	if err := p.TestConnection(ctx, cfg); err != nil {
		return nil, fmt.Errorf("storage connection test failed for '%s': %w", typeName, err)
	}
	if err := p.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("can't connect storage '%s': %w", typeName, err)
	}
	return p, nil
}

// GetMonitor returns a validated monitor provider for typeName.
// Monitors that watch a storage location take st as their file source
func (f *Factory) GetMonitor(ctx context.Context, typeName string, cfg map[string]string, st Storage) (Monitor, error) {
	p, ok := f.registry.Monitor(typeName)
	if !ok {
		return nil, fmt.Errorf("no monitor provider '%s'", typeName)
	}
	if c, okC := p.(interface{ New(Storage) Monitor }); okC {
		p = c.New(st)
	}
	if err := p.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid monitor config for '%s': %w", typeName, err)
	}
	if err := p.TestConnection(ctx, cfg); err != nil {
		return nil, fmt.Errorf("monitor connection test failed for '%s': %w", typeName, err)
	}
	return p, nil
}

// GetNotifier returns a configured notification provider for typeName
func (f *Factory) GetNotifier(ctx context.Context, typeName string, cfg map[string]string) (Notifier, error) {
	p, ok := f.registry.Notifier(typeName)
	if !ok {
		return nil, fmt.Errorf("no notification provider '%s'", typeName)
	}
	if c, okC := p.(interface{ New() Notifier }); okC {
		p = c.New()
	}
	if err := p.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid notification config for '%s': %w", typeName, err)
	}
	if err := p.TestConnection(ctx, cfg); err != nil {
		return nil, fmt.Errorf("notification connection test failed for '%s': %w", typeName, err)
	}
	if err := p.Configure(cfg); err != nil {
		return nil, fmt.Errorf("can't configure notifier '%s': %w", typeName, err)
	}
	return p, nil
}
