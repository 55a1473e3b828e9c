// Package skill defines the remote skill invocation port (interface).
package skill

import "context"

// Invoker is the capability the outer transport layer supplies: call a
// named skill on a remote agent instance and report liveness. The wire
// protocol behind it is not this core's concern.
type Invoker interface {
	// Invoke calls the skill on the instance at endpoint. Transport
	// failures and dependency-side errors are reported wrapped in
	// domain.ErrTransient when retryable.
	Invoke(ctx context.Context, agentType, endpoint, skillName string, params map[string]any) (map[string]any, error)

	// HealthCheck probes the instance's liveness endpoint.
	HealthCheck(ctx context.Context, endpoint string) bool
}
