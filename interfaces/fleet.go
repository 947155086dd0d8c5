package interfaces

import "context"

// TenantStatus is a read-only snapshot of one tenant worker, exposed on the
// status endpoint.
type TenantStatus struct {
	TenantID      string   `json:"tenantId"`
	Running       bool     `json:"running"`
	ActivePollers []string `json:"activePollers"`
}

// FleetService owns the top-level tenant worker registry.
type FleetService interface {
	// Reconcile makes the running worker set equal to the store's tenant
	// set. Safe to call repeatedly; concurrent calls are serialized by
	// the scheduler driving it.
	Reconcile(ctx context.Context) error
	// Stop cancels every tenant worker and waits for the drain to finish
	// or the context to expire.
	Stop(ctx context.Context)
	Status() []TenantStatus
}
