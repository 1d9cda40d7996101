package k8s

import (
	"context"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"
)

// Provisioner sequences the credential issuance pipeline. Each call runs as
// one sequential, blocking pipeline with no rollback: objects created before
// a failing step remain on the cluster, and the failing step's error is
// surfaced unchanged.
//
// Concurrent calls for distinct names are independent; two calls racing on
// the same name resolve through the control plane's uniqueness enforcement,
// with the loser observing a Conflict.
type Provisioner struct {
	client      Client
	connection  ConnectionProfile
	clusterName string
	issuer      *TokenIssuer
	logger      Logger
}

// ProvisionerConfig holds the dependencies of a Provisioner. The connection
// profile is passed in explicitly rather than discovered lazily so tests can
// substitute a fake profile without touching process globals.
type ProvisionerConfig struct {
	Client      Client
	Connection  ConnectionProfile
	ClusterName string
	SettleDelay time.Duration
	Logger      Logger
}

// NewProvisioner creates a Provisioner from the given configuration.
func NewProvisioner(config ProvisionerConfig) (*Provisioner, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if config.ClusterName == "" {
		config.ClusterName = DefaultClusterName
	}

	return &Provisioner{
		client:      config.Client,
		connection:  config.Connection,
		clusterName: config.ClusterName,
		issuer:      NewTokenIssuer(config.Client, config.SettleDelay, config.Logger),
		logger:      config.Logger,
	}, nil
}

// IssueScopedRole creates a standalone Role from explicit permission
// requests and returns its YAML serialization. It assumes an identity
// already exists; no ServiceAccount or RoleBinding is created.
func (p *Provisioner) IssueScopedRole(ctx context.Context, name, namespace string, permissions []PermissionRequest) (string, error) {
	if name == "" {
		return "", newValidationError("issue-scoped-role", "name is required")
	}
	if namespace == "" {
		return "", newValidationError("issue-scoped-role", "namespace is required")
	}
	if len(permissions) == 0 {
		return "", newValidationError("issue-scoped-role", "at least one permission is required")
	}

	rules := CompileRules(permissions)

	role, err := p.client.CreateRole(ctx, name, namespace, rules)
	if err != nil {
		return "", err
	}

	if p.logger != nil {
		p.logger.Info("role created",
			"name", name,
			"namespace", namespace,
			"rules", len(role.Rules),
		)
	}

	// The API server strips TypeMeta from created objects; restore it so the
	// serialized document stands alone.
	role.TypeMeta = metav1.TypeMeta{
		APIVersion: "rbac.authorization.k8s.io/v1",
		Kind:       "Role",
	}

	out, err := yaml.Marshal(role)
	if err != nil {
		return "", fmt.Errorf("failed to marshal role: %w", err)
	}
	return string(out), nil
}

// IssueCredentialBundle runs the full pipeline: ServiceAccount, Role,
// RoleBinding, token, connection discovery, kubeconfig assembly. Every named
// resource is granted every named verb. Returns the serialized kubeconfig.
func (p *Provisioner) IssueCredentialBundle(ctx context.Context, name, namespace string, resources, verbs []string) (string, error) {
	if name == "" {
		return "", newValidationError("issue-credential-bundle", "name is required")
	}
	if namespace == "" {
		return "", newValidationError("issue-credential-bundle", "namespace is required")
	}
	if len(resources) == 0 {
		return "", newValidationError("issue-credential-bundle", "at least one resource is required")
	}
	if len(verbs) == 0 {
		return "", newValidationError("issue-credential-bundle", "at least one verb is required")
	}

	if _, err := p.client.CreateServiceAccount(ctx, name, namespace); err != nil {
		return "", err
	}

	permissions := make([]PermissionRequest, 0, len(resources))
	for _, resource := range resources {
		permissions = append(permissions, PermissionRequest{
			Resource: resource,
			Verbs:    verbs,
		})
	}

	if _, err := p.client.CreateRole(ctx, name, namespace, CompileRules(permissions)); err != nil {
		return "", err
	}

	if _, err := p.client.CreateRoleBinding(ctx, name, namespace, name, name); err != nil {
		return "", err
	}

	token, err := p.issuer.Issue(ctx, name, namespace, []string{DefaultTokenAudience}, DefaultTokenTTLSeconds)
	if err != nil {
		return "", err
	}

	if p.logger != nil {
		p.logger.Info("credential bundle issued",
			"name", name,
			"namespace", namespace,
			"cluster", p.clusterName,
		)
	}

	kubeconfig := AssembleKubeconfig(
		p.clusterName,
		p.connection.Server,
		p.connection.CACertData,
		namespace,
		token,
		name,
	)
	return kubeconfig.Marshal()
}

// ListNamespaces exposes namespace discovery to the API surface.
func (p *Provisioner) ListNamespaces(ctx context.Context) ([]string, error) {
	return p.client.ListNamespaces(ctx)
}

// ListAPIResources exposes resource discovery to the API surface.
func (p *Provisioner) ListAPIResources(ctx context.Context) (map[string][]APIResourceInfo, error) {
	return p.client.ListAPIResources(ctx)
}
