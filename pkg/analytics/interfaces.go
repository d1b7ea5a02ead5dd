package analytics

import (
	"context"

	dashboard "github.com/goliatone/go-commerce-dashboard/components/dashboard"
)

// HealthChecker reports whether the analytics API is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Client is a convenience union for backends that serve every analytics
// endpoint plus the contact relay.
type Client interface {
	dashboard.AnalyticsBackend
	dashboard.ContactSender
	HealthChecker
}
