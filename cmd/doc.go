// Package cmd provides the command-line interface for kubegrant.
//
// This package implements a Cobra-based CLI with multiple subcommands:
//   - serve: Starts the HTTP API server (default behavior when no subcommand is provided)
//   - version: Displays the application version
//
// Command Structure:
//
//	kubegrant [flags]            # Starts the API server (default)
//	kubegrant serve [flags]      # Explicitly starts the API server
//	kubegrant version            # Shows version information
//	kubegrant help [command]     # Shows help information
//
// The serve command supports flags for selecting the authentication mode
// (in-cluster service account vs. kubeconfig file), the listen address, the
// cluster display name embedded in issued kubeconfigs, CORS origins, and
// Kubernetes client rate limiting.
package cmd
