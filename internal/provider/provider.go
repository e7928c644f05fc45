package provider

import (
	"context"

	"github.com/gratbox/graph-csv-sync/internal/record"
)

// Provider is the remote binding for one reconciliation task. Fetch
// materializes the complete current state; Add/Update/Remove apply one
// planned change each. Implementations route all requests through the
// backoff caller.
type Provider interface {
	Fetch(ctx context.Context) ([]record.RemoteRecord, error)
	Add(ctx context.Context, desired record.DesiredRecord) error
	Update(ctx context.Context, desired record.DesiredRecord, remote record.RemoteRecord) error
	Remove(ctx context.Context, remote record.RemoteRecord) error
}
