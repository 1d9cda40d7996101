// Package logging provides structured logging utilities for kubegrant.
//
// This package centralizes logging patterns to ensure consistent, structured
// logging throughout the codebase using the standard library's slog package.
//
// # Key Features
//
//   - Structured logging with slog
//   - Token masking (issued bearer tokens are never logged)
//   - Host/URL sanitization for security
//   - Consistent attribute naming across the codebase
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "issue-credential-bundle")
//	logger.Info("provisioning access",
//	    logging.Namespace("default"),
//	    logging.ResourceName("ci-reader"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("token issued",
//	    "token", logging.SanitizeToken(token),
//	    logging.Host(apiServer))
//
// # Security Considerations
//
// This package is designed with security in mind:
//   - API server URLs have IP addresses redacted to prevent topology leakage
//   - Issued tokens are never logged directly, only their length
package logging
