// Package ontap provides a NetApp ONTAP REST client for volume move operations.
package ontap

import (
	"context"
)

// API defines the interface for cluster operations used by the orchestrator.
// This interface enables mocking for unit tests.
type API interface {
	// Ping verifies connectivity to the cluster management interface.
	Ping(ctx context.Context) error

	// LookupVolume resolves a volume name to its cluster-side details.
	LookupVolume(ctx context.Context, name string) (*VolumeInfo, error)

	// FindActiveMove returns the in-flight move for a volume, or nil if none.
	FindActiveMove(ctx context.Context, volume string) (*MoveStatus, error)

	// SubmitMove starts a volume move to the given destination.
	SubmitMove(ctx context.Context, volume string, dest Destination) error

	// PollMove returns the current state and progress of a volume's move.
	PollMove(ctx context.Context, volume string) (*MoveStatus, error)

	// AbortMove cancels a volume's in-flight move. Best effort.
	AbortMove(ctx context.Context, volume string) error
}

// Ensure Client implements API
var _ API = (*Client)(nil)
