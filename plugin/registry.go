package plugin

import (
	"context"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/teranos/lookbridge/errors"
)

// Registry manages all extensions and the commands they contribute
type Registry struct {
	mu         sync.RWMutex
	extensions map[string]Extension
	commands   map[string]commandEntry
	order      []string
	version    string // lookbridge version
	loop       Loop
	rec        CommandRecorder
}

// CommandRecorder counts command runs. metrics.Registry satisfies it.
type CommandRecorder interface {
	CommandRun(command string, err error)
}

type commandEntry struct {
	extension string
	fn        CommandFunc
}

// NewRegistry creates a new extension registry
func NewRegistry(hostVersion string) *Registry {
	return &Registry{
		extensions: make(map[string]Extension),
		commands:   make(map[string]commandEntry),
		version:    hostVersion,
	}
}

// SetRecorder makes RunCommand report every run to rec
func (r *Registry) SetRecorder(rec CommandRecorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec = rec
}

// Register registers an extension and its commands.
// Returns error if the extension name or a command name conflicts, or the
// host version is incompatible.
func (r *Registry) Register(ext Extension) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	metadata := ext.Metadata()

	if _, exists := r.extensions[metadata.Name]; exists {
		return errors.Newf("extension already registered: %s", metadata.Name)
	}

	if err := r.validateVersion(metadata); err != nil {
		return errors.Wrapf(err, "version incompatible for %s", metadata.Name)
	}

	commands := ext.Commands()
	for name := range commands {
		if owner, exists := r.commands[name]; exists {
			return errors.Newf("command %s of %s already registered by %s", name, metadata.Name, owner.extension)
		}
	}
	for name, fn := range commands {
		r.commands[name] = commandEntry{extension: metadata.Name, fn: fn}
	}

	r.extensions[metadata.Name] = ext
	r.order = append(r.order, metadata.Name)
	return nil
}

// Get retrieves an extension by name
func (r *Registry) Get(name string) (Extension, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext, ok := r.extensions[name]
	return ext, ok
}

// List returns all registered extension names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.extensions))
	for name := range r.extensions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Commands returns every registered command name mapped to its extension
func (r *Registry) Commands() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]string, len(r.commands))
	for name, entry := range r.commands {
		result[name] = entry.extension
	}
	return result
}

// RunCommand runs a registered command. Once InitializeAll has run, the
// command executes on the host's event loop and RunCommand waits for it.
func (r *Registry) RunCommand(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	entry, ok := r.commands[name]
	loop := r.loop
	rec := r.rec
	r.mu.RUnlock()

	if !ok {
		return nil, errors.NewNotFoundError("command %s", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	var (
		result interface{}
		err    error
	)
	if loop == nil {
		result, err = entry.fn(ctx, args)
	} else if callErr := loop.Call(ctx, func() {
		result, err = entry.fn(ctx, args)
	}); callErr != nil {
		// fn may still run later and write result, so neither is read here
		callErr = errors.Wrapf(callErr, "command %s did not run", name)
		r.record(rec, name, callErr)
		return nil, callErr
	}
	r.record(rec, name, err)
	return result, err
}

func (r *Registry) record(rec CommandRecorder, name string, err error) {
	if rec != nil {
		rec.CommandRun(name, err)
	}
}

// snapshot returns extensions in registration order
func (r *Registry) snapshot() []Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exts := make([]Extension, 0, len(r.order))
	for _, name := range r.order {
		exts = append(exts, r.extensions[name])
	}
	return exts
}

// InitializeAll initializes extensions in registration order
func (r *Registry) InitializeAll(ctx context.Context, services HostServices) error {
	r.mu.Lock()
	r.loop = services.Loop()
	r.mu.Unlock()

	for _, ext := range r.snapshot() {
		if err := ext.Initialize(ctx, services); err != nil {
			return errors.Wrapf(err, "failed to initialize extension %s", ext.Metadata().Name)
		}
	}
	return nil
}

// ShutdownAll shuts down all extensions in reverse registration order.
// Every extension gets its turn even if an earlier one fails.
func (r *Registry) ShutdownAll(ctx context.Context) error {
	exts := r.snapshot()

	var errs []error
	for i := len(exts) - 1; i >= 0; i-- {
		if err := exts[i].Shutdown(ctx); err != nil {
			errs = append(errs, errors.Wrapf(err, "failed to shutdown extension %s", exts[i].Metadata().Name))
		}
	}

	if len(errs) > 0 {
		combined := errs[0]
		for _, err := range errs[1:] {
			combined = errors.WithSecondaryError(combined, err)
		}
		return errors.Wrapf(combined, "%d shutdown errors", len(errs))
	}
	return nil
}

// HealthCheckAll checks health of all extensions
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	results := make(map[string]HealthStatus)
	for _, ext := range r.snapshot() {
		results[ext.Metadata().Name] = ext.Health(ctx)
	}
	return results
}

// validateVersion checks if the extension is compatible with the host version
func (r *Registry) validateVersion(metadata Metadata) error {
	if metadata.HostVersion == "" {
		// No version constraint specified
		return nil
	}

	hostVer, err := semver.NewVersion(r.version)
	if err != nil {
		return errors.Wrapf(err, "invalid host version %s", r.version)
	}

	constraint, err := semver.NewConstraint(metadata.HostVersion)
	if err != nil {
		return errors.Wrapf(err, "invalid version constraint %s", metadata.HostVersion)
	}

	if !constraint.Check(hostVer) {
		return errors.Newf("extension requires lookbridge %s, but running %s", metadata.HostVersion, r.version)
	}
	return nil
}
