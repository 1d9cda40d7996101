package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/clusterforge/kubegrant/internal/k8s"
)

// ProvisioningService is the contract between the HTTP surface and the
// provisioning core. *k8s.Provisioner implements it; handler tests supply an
// in-memory fake.
type ProvisioningService interface {
	ListNamespaces(ctx context.Context) ([]string, error)
	ListAPIResources(ctx context.Context) (map[string][]k8s.APIResourceInfo, error)
	IssueScopedRole(ctx context.Context, name, namespace string, permissions []k8s.PermissionRequest) (string, error)
	IssueCredentialBundle(ctx context.Context, name, namespace string, resources, verbs []string) (string, error)
}

// Config holds the server-level configuration.
type Config struct {
	// ServerName identifies the service in logs and health responses.
	ServerName string

	// Version is injected at build time.
	Version string

	// AllowedOrigins restricts CORS; empty allows any origin (the original
	// deployment serves a browser frontend from another host).
	AllowedOrigins []string

	// DefaultNamespace is used when a request omits the namespace.
	DefaultNamespace string
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		ServerName:       "kubegrant",
		DefaultNamespace: "default",
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.AllowedOrigins != nil {
		clone.AllowedOrigins = make([]string, len(c.AllowedOrigins))
		copy(clone.AllowedOrigins, c.AllowedOrigins)
	}
	return &clone
}

// ServerContext encapsulates all dependencies needed by the HTTP server and
// provides a clean abstraction for dependency injection and lifecycle
// management.
type ServerContext struct {
	provisioner ProvisioningService
	logger      *slog.Logger
	config      *Config
	metrics     *Metrics

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new ServerContext with default values. Use the
// provided functional options to customize the context.
func NewServerContext(ctx context.Context, opts ...Option) (*ServerContext, error) {
	serverCtx, cancel := context.WithCancel(ctx)

	sc := &ServerContext{
		ctx:     serverCtx,
		cancel:  cancel,
		config:  NewDefaultConfig(),
		logger:  slog.Default(),
		metrics: NewMetrics(nil),
	}

	for _, opt := range opts {
		if err := opt(sc); err != nil {
			cancel()
			return nil, err
		}
	}

	if sc.provisioner == nil {
		cancel()
		return nil, ErrMissingProvisioner
	}

	return sc, nil
}

// Provisioner returns the provisioning service.
func (sc *ServerContext) Provisioner() ProvisioningService {
	return sc.provisioner
}

// Logger returns the configured logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Config returns the server configuration.
func (sc *ServerContext) Config() *Config {
	return sc.config
}

// Metrics returns the provisioning metrics.
func (sc *ServerContext) Metrics() *Metrics {
	return sc.metrics
}

// Context returns the server's lifecycle context.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// IsShutdown reports whether Shutdown has been called.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown cancels the server context. It is safe to call more than once.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.shutdown {
		return nil
	}
	sc.shutdown = true
	sc.cancel()
	return nil
}
