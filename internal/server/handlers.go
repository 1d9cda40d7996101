package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clusterforge/kubegrant/internal/k8s"
	"github.com/clusterforge/kubegrant/internal/logging"
	"github.com/clusterforge/kubegrant/internal/server/middleware"
)

// generateRoleRequest is the body of POST /api/generate-role.
type generateRoleRequest struct {
	Name        string                  `json:"name"`
	Namespace   string                  `json:"namespace"`
	Permissions []k8s.PermissionRequest `json:"permissions"`
}

// generateKubeconfigRequest is the body of POST /api/generate-kubeconfig.
type generateKubeconfigRequest struct {
	Name      string   `json:"name"`
	Namespace string   `json:"namespace"`
	Resources []string `json:"resources"`
	Verbs     []string `json:"verbs"`
}

// errorResponse is the body of every failed request. It exposes the
// normalized error kind plus the raw upstream status and reason so the
// caller can decide whether to retry.
type errorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Status int    `json:"status,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// NewRouter builds the HTTP routing tree: the four API operations, health
// probes and the metrics endpoint. A nil registry falls back to the default
// prometheus registry.
func NewRouter(sc *ServerContext, reg *prometheus.Registry) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(sc.Config().AllowedOrigins))

	var metricsHandler http.Handler
	if reg != nil {
		r.Use(middleware.NewHTTPMetrics(reg).Middleware)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	} else {
		r.Use(middleware.NewHTTPMetrics(prometheus.DefaultRegisterer).Middleware)
		metricsHandler = promhttp.Handler()
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/namespaces", sc.handleListNamespaces)
		r.Get("/resources", sc.handleListAPIResources)
		r.Post("/generate-role", sc.handleGenerateRole)
		r.Post("/generate-kubeconfig", sc.handleGenerateKubeconfig)
	})

	healthChecker := NewHealthChecker(sc)
	r.Method(http.MethodGet, "/healthz", healthChecker.LivenessHandler())
	r.Method(http.MethodGet, "/readyz", healthChecker.ReadinessHandler())
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	return r
}

// handleListNamespaces serves GET /api/namespaces.
func (sc *ServerContext) handleListNamespaces(w http.ResponseWriter, r *http.Request) {
	namespaces, err := sc.provisioner.ListNamespaces(r.Context())
	if err != nil {
		sc.writeError(w, "list-namespaces", err)
		return
	}

	sc.writeJSON(w, http.StatusOK, map[string]interface{}{
		"namespaces": namespaces,
	})
}

// handleListAPIResources serves GET /api/resources.
func (sc *ServerContext) handleListAPIResources(w http.ResponseWriter, r *http.Request) {
	resources, err := sc.provisioner.ListAPIResources(r.Context())
	if err != nil {
		sc.writeError(w, "list-api-resources", err)
		return
	}

	sc.writeJSON(w, http.StatusOK, resources)
}

// handleGenerateRole serves POST /api/generate-role.
func (sc *ServerContext) handleGenerateRole(w http.ResponseWriter, r *http.Request) {
	var req generateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sc.writeBadRequest(w, "invalid request body")
		return
	}
	if req.Namespace == "" {
		req.Namespace = sc.config.DefaultNamespace
	}

	roleYAML, err := sc.provisioner.IssueScopedRole(r.Context(), req.Name, req.Namespace, req.Permissions)
	sc.metrics.RecordProvision("scoped-role", err)
	if err != nil {
		sc.writeError(w, "generate-role", err)
		return
	}

	logging.WithOperation(sc.logger, "generate-role").Info("role created",
		logging.Namespace(req.Namespace),
		logging.ResourceName(req.Name),
		logging.Status(logging.StatusSuccess),
	)

	sc.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Role created successfully",
		"role":    roleYAML,
	})
}

// handleGenerateKubeconfig serves POST /api/generate-kubeconfig.
func (sc *ServerContext) handleGenerateKubeconfig(w http.ResponseWriter, r *http.Request) {
	var req generateKubeconfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sc.writeBadRequest(w, "invalid request body")
		return
	}
	if req.Namespace == "" {
		req.Namespace = sc.config.DefaultNamespace
	}

	kubeconfig, err := sc.provisioner.IssueCredentialBundle(r.Context(), req.Name, req.Namespace, req.Resources, req.Verbs)
	sc.metrics.RecordProvision("credential-bundle", err)
	if err != nil {
		sc.writeError(w, "generate-kubeconfig", err)
		return
	}

	logging.WithOperation(sc.logger, "generate-kubeconfig").Info("kubeconfig generated",
		logging.Namespace(req.Namespace),
		logging.ResourceName(req.Name),
		logging.Status(logging.StatusSuccess),
	)

	sc.writeJSON(w, http.StatusOK, map[string]string{
		"message":    "Kubeconfig generated successfully",
		"kubeconfig": kubeconfig,
	})
}

// writeJSON renders a successful JSON response.
func (sc *ServerContext) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		sc.logger.Error("failed to encode response", logging.Err(err))
	}
}

// writeBadRequest renders a local framing error that never reached the core.
func (sc *ServerContext) writeBadRequest(w http.ResponseWriter, reason string) {
	sc.writeJSON(w, http.StatusBadRequest, errorResponse{
		Error: reason,
		Kind:  string(k8s.ErrKindValidation),
	})
}

// writeError maps a provisioning failure to an HTTP status and renders the
// normalized error body.
func (sc *ServerContext) writeError(w http.ResponseWriter, operation string, err error) {
	sc.logger.Error("request failed",
		logging.Operation(operation),
		logging.Status(logging.StatusError),
		logging.Err(err),
	)

	if apiErr, ok := k8s.AsAPIError(err); ok {
		sc.writeJSON(w, apiErr.HTTPStatus(), errorResponse{
			Error:  err.Error(),
			Kind:   string(apiErr.Kind),
			Status: apiErr.Status,
			Reason: apiErr.Reason,
		})
		return
	}

	sc.writeJSON(w, http.StatusInternalServerError, errorResponse{
		Error: err.Error(),
		Kind:  string(k8s.ErrKindUnreachable),
	})
}
