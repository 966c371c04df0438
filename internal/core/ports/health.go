package ports

import "context"

// HealthChecker is one dependency reported by GET /health.
type HealthChecker interface {
	// Ping returns nil when the dependency can serve ingestion traffic.
	Ping(ctx context.Context) error
	// Name keys the dependency in the health response.
	Name() string
}
