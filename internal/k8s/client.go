package k8s

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
)

// Client defines the interface for the control-plane operations the
// provisioning pipeline depends on. Implementations must not retry
// internally; retry policy belongs to the caller.
type Client interface {
	// Access object creation
	AccessProvisioner

	// Token issuance primitives
	TokenManager

	// Cluster discovery
	DiscoveryManager
}

// AccessProvisioner creates the three access-control objects of one
// provisioning request. All three operations treat an existing object with
// the same name as a Conflict, never as an idempotent upsert.
type AccessProvisioner interface {
	// CreateServiceAccount creates a ServiceAccount in the given namespace.
	CreateServiceAccount(ctx context.Context, name, namespace string) (*corev1.ServiceAccount, error)

	// CreateRole creates a namespaced Role carrying the given policy rules.
	CreateRole(ctx context.Context, name, namespace string, rules []rbacv1.PolicyRule) (*rbacv1.Role, error)

	// CreateRoleBinding binds the named Role to the named ServiceAccount.
	// The subject namespace is always the binding's own namespace.
	CreateRoleBinding(ctx context.Context, name, namespace, roleName, serviceAccountName string) (*rbacv1.RoleBinding, error)
}

// TokenManager exposes the two token issuance primitives. RequestToken is
// the preferred path; the Secret operations exist only for the fallback on
// clusters without TokenRequest support.
type TokenManager interface {
	// RequestToken requests a bound token for the named ServiceAccount via
	// the TokenRequest subresource.
	RequestToken(ctx context.Context, serviceAccountName, namespace string, audiences []string, ttlSeconds int64) (string, error)

	// CreateTokenSecret creates a service-account-token Secret annotated to
	// bind it to the named ServiceAccount. The token controller populates
	// the Secret's data asynchronously.
	CreateTokenSecret(ctx context.Context, serviceAccountName, namespace string) (*corev1.Secret, error)

	// GetSecret reads a Secret back, typically after the settle delay.
	GetSecret(ctx context.Context, name, namespace string) (*corev1.Secret, error)
}

// DiscoveryManager enumerates cluster-level information used to populate
// permission pickers.
type DiscoveryManager interface {
	// ListNamespaces returns the names of all namespaces visible to the client.
	ListNamespaces(ctx context.Context) ([]string, error)

	// ListAPIResources returns the discoverable resource kinds keyed by API
	// group, with the core group under the empty string. Subresources
	// (names containing '/') are excluded.
	ListAPIResources(ctx context.Context) (map[string][]APIResourceInfo, error)
}

// PermissionRequest is one caller-supplied permission: a resource, the verbs
// to grant on it, and an optional API group. An empty APIGroup means the
// core API group.
type PermissionRequest struct {
	Resource string   `json:"resource"`
	Verbs    []string `json:"verbs"`
	APIGroup string   `json:"apiGroup,omitempty"`
}

// APIResourceInfo describes one discoverable resource kind.
type APIResourceInfo struct {
	Name       string   `json:"name"`
	Verbs      []string `json:"verbs"`
	Namespaced bool     `json:"namespaced"`
}

// ConnectionProfile is a read-only snapshot of how the issuing process
// reaches the control plane. It is discovered once and safe to cache for
// the process lifetime.
type ConnectionProfile struct {
	// Server is the API server URL.
	Server string

	// CACertData is the base64-encoded CA trust anchor, or "" when no CA
	// material could be read. An empty value is a degrade, not an error.
	CACertData string
}
