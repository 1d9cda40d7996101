package k8s

import "time"

const (
	// Service account paths - default Kubernetes in-cluster locations
	DefaultServiceAccountPath = "/var/run/secrets/kubernetes.io/serviceaccount"
	DefaultTokenPath          = DefaultServiceAccountPath + "/token"
	DefaultCACertPath         = DefaultServiceAccountPath + "/ca.crt"
	DefaultNamespacePath      = DefaultServiceAccountPath + "/namespace"

	// Default performance settings
	DefaultQPSLimit   = 20.0
	DefaultBurstLimit = 30
	DefaultTimeout    = 30 // seconds

	// DefaultTokenTTLSeconds is the expiry requested for issued tokens (one year).
	DefaultTokenTTLSeconds = int64(31536000)

	// DefaultTokenAudience identifies the cluster's default API service endpoint.
	DefaultTokenAudience = "https://kubernetes.default.svc"

	// DefaultSettleDelay is how long the fallback token path waits for the
	// token controller to populate the service-account-token Secret before
	// the single read-back. It is one fixed wait, not a poll loop.
	DefaultSettleDelay = 2 * time.Second

	// DefaultClusterName is used in the assembled kubeconfig when no cluster
	// display name is configured.
	DefaultClusterName = "kubernetes"

	// ServiceAccountNameAnnotation binds a token Secret to its ServiceAccount.
	ServiceAccountNameAnnotation = "kubernetes.io/service-account.name"
)
