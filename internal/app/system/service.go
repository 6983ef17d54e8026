package system

import "context"

// Service represents a lifecycle-managed component. Background workers
// implement it so the manager can start and stop them deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
