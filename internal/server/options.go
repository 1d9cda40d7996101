package server

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Errors returned when required dependencies are missing.
var (
	ErrMissingProvisioner = errors.New("provisioning service is required")
	ErrMissingLogger      = errors.New("logger is required")
	ErrMissingConfig      = errors.New("config is required")
)

// Option is a functional option for configuring ServerContext.
type Option func(*ServerContext) error

// WithProvisioner sets the provisioning service for the ServerContext.
func WithProvisioner(p ProvisioningService) Option {
	return func(sc *ServerContext) error {
		if p == nil {
			return ErrMissingProvisioner
		}
		sc.provisioner = p
		return nil
	}
}

// WithLogger sets the logger for the ServerContext.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) error {
		if logger == nil {
			return ErrMissingLogger
		}
		sc.logger = logger
		return nil
	}
}

// WithConfig sets the configuration for the ServerContext.
func WithConfig(config *Config) Option {
	return func(sc *ServerContext) error {
		if config == nil {
			return ErrMissingConfig
		}
		sc.config = config.Clone()
		return nil
	}
}

// WithVersion sets the version reported by health endpoints.
func WithVersion(version string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.Version = version
		return nil
	}
}

// WithAllowedOrigins sets the CORS allow-list.
func WithAllowedOrigins(origins []string) Option {
	return func(sc *ServerContext) error {
		if sc.config == nil {
			sc.config = NewDefaultConfig()
		}
		sc.config.AllowedOrigins = make([]string, len(origins))
		copy(sc.config.AllowedOrigins, origins)
		return nil
	}
}

// WithMetricsRegistry registers the server's metrics on the given registry
// instead of the default one. Tests use this to isolate registration.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(sc *ServerContext) error {
		sc.metrics = NewMetrics(reg)
		return nil
	}
}
