package port

import "context"

// HealthChecker is implemented by infrastructure dependencies probed by readiness checks.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
