// Package plugin provides the extension contract between lookbridge and its host.
//
// An extension represents one companion-process integration (e.g. DLPrecise,
// the segmentation server). Each extension registers named commands and owns
// its connection lifecycle.
//
// Architecture:
//   - The host hands every extension the same HostServices
//   - Extensions never talk to each other; they only run host commands
//   - All extension state is owned by the host's event loop
//
// Extensions:
//   - deeplook: DLPrecise measurement and mass-view integration
//   - segmentation: AI segmentation server notifications and downloads
package plugin

import (
	"context"
)

// Extension defines the interface that all extensions must implement.
type Extension interface {
	// Metadata returns information about this extension
	Metadata() Metadata

	// Initialize is called once when the host starts.
	// The extension receives the host services it may use.
	Initialize(ctx context.Context, services HostServices) error

	// Shutdown is called when the host unloads
	Shutdown(ctx context.Context) error

	// Commands returns the commands this extension contributes, keyed by name
	Commands() map[string]CommandFunc

	// Health returns the health status of this extension
	Health(ctx context.Context) HealthStatus
}

// CommandFunc runs one extension command. Commands execute on the host's event
// loop, so they may touch extension state without locking.
type CommandFunc func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Metadata describes an extension
type Metadata struct {
	// Name is the extension identifier (e.g., "deeplook")
	Name string

	// Version is the extension version (semver)
	Version string

	// HostVersion is the required lookbridge version (semver constraint)
	HostVersion string

	// Description is a human-readable description
	Description string

	// Author is the extension author/maintainer
	Author string
}

// HealthStatus represents the health of an extension
type HealthStatus struct {
	Healthy bool
	Message string
	Details map[string]interface{}
}
