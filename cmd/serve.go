package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/clusterforge/kubegrant/internal/k8s"
	"github.com/clusterforge/kubegrant/internal/logging"
	"github.com/clusterforge/kubegrant/internal/server"
)

// defaultShutdownTimeout bounds how long in-flight requests may run after a
// shutdown signal.
const defaultShutdownTimeout = 15 * time.Second

// newServeCmd creates the Cobra command for starting the API server.
func newServeCmd() *cobra.Command {
	var (
		addr           string
		inCluster      bool
		kubeconfigPath string
		kubeContext    string
		clusterName    string
		allowedOrigins []string
		settleDelay    time.Duration
		qpsLimit       float32
		burstLimit     int
		timeout        time.Duration
		debugMode      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kubegrant API server",
		Long: `Start the kubegrant API server.

Authentication modes:
  - Kubeconfig (default): Uses standard kubeconfig file authentication
  - In-cluster: Uses the mounted service account when running inside a pod

The cluster display name embedded in issued kubeconfigs comes from
--cluster-name, falling back to the CLUSTER_NAME environment variable and
then to "kubernetes".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clusterName == "" {
				clusterName = os.Getenv("CLUSTER_NAME")
			}
			if clusterName == "" {
				clusterName = k8s.DefaultClusterName
			}

			level := slog.LevelInfo
			if debugMode {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)
			adapter := logging.NewSlogAdapter(logger)

			client, err := k8s.NewClient(&k8s.ClientConfig{
				KubeconfigPath: kubeconfigPath,
				Context:        kubeContext,
				InCluster:      inCluster,
				QPSLimit:       qpsLimit,
				BurstLimit:     burstLimit,
				Timeout:        timeout,
				Logger:         adapter,
			})
			if err != nil {
				return fmt.Errorf("failed to create kubernetes client: %w", err)
			}

			// Discovered once; safe to hold for the process lifetime.
			connection := k8s.DiscoverConnection(client.RESTConfig(), adapter)
			logger.Info("discovered cluster connection",
				logging.Host(connection.Server),
				logging.Cluster(clusterName),
			)

			provisioner, err := k8s.NewProvisioner(k8s.ProvisionerConfig{
				Client:      client,
				Connection:  connection,
				ClusterName: clusterName,
				SettleDelay: settleDelay,
				Logger:      adapter,
			})
			if err != nil {
				return fmt.Errorf("failed to create provisioner: %w", err)
			}

			config := server.NewDefaultConfig()
			config.Version = rootCmd.Version
			config.AllowedOrigins = allowedOrigins

			// One registry serves /metrics and collects everything: runtime
			// stats, HTTP request counters and provisioning outcomes.
			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			sc, err := server.NewServerContext(cmd.Context(),
				server.WithProvisioner(provisioner),
				server.WithLogger(logging.WithCluster(logger, clusterName)),
				server.WithConfig(config),
				server.WithMetricsRegistry(registry),
			)
			if err != nil {
				return fmt.Errorf("failed to create server context: %w", err)
			}
			defer func() {
				if err := sc.Shutdown(); err != nil {
					logger.Error("error during server context shutdown", logging.Err(err))
				}
			}()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runHTTPServer(ctx, sc, addr, registry)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":5005", "Address for the HTTP server to listen on")
	cmd.Flags().BoolVar(&inCluster, "in-cluster", false, "Use in-cluster service account authentication")
	cmd.Flags().StringVar(&kubeconfigPath, "kubeconfig", "", "Path to the kubeconfig file (defaults to KUBECONFIG or ~/.kube/config)")
	cmd.Flags().StringVar(&kubeContext, "context", "", "Kubeconfig context to use (defaults to the current context)")
	cmd.Flags().StringVar(&clusterName, "cluster-name", "", "Cluster display name embedded in issued kubeconfigs (default CLUSTER_NAME env or \"kubernetes\")")
	cmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origins", nil, "CORS allow-list (empty allows any origin)")
	cmd.Flags().DurationVar(&settleDelay, "settle-delay", k8s.DefaultSettleDelay, "Wait before reading back the fallback token secret")
	cmd.Flags().Float32Var(&qpsLimit, "qps-limit", k8s.DefaultQPSLimit, "Kubernetes API request rate limit")
	cmd.Flags().IntVar(&burstLimit, "burst-limit", k8s.DefaultBurstLimit, "Kubernetes API request burst limit")
	cmd.Flags().DurationVar(&timeout, "timeout", k8s.DefaultTimeout*time.Second, "Kubernetes API request timeout")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	return cmd
}

// runHTTPServer runs the HTTP server until ctx is cancelled or the server
// stops on its own.
func runHTTPServer(ctx context.Context, sc *server.ServerContext, addr string, registry *prometheus.Registry) error {
	handler := server.NewRouter(sc, registry)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sc.Logger().Info("HTTP server starting",
		"addr", addr,
		"endpoints", []string{"/api/namespaces", "/api/resources", "/api/generate-role", "/api/generate-kubeconfig"},
	)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		sc.Logger().Info("shutdown signal received, stopping HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		sc.Logger().Info("HTTP server stopped normally")
	}

	sc.Logger().Info("HTTP server gracefully stopped")
	return nil
}
