package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	authenticationv1 "k8s.io/api/authentication/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// provisionerClient implements the Client interface using client-go.
type provisionerClient struct {
	clientset  kubernetes.Interface
	restConfig *rest.Config

	logger Logger
}

// ClientConfig holds configuration for the provisioning client.
type ClientConfig struct {
	// Kubeconfig settings
	KubeconfigPath string
	Context        string

	// InCluster uses the service account mounted into the pod instead of a
	// kubeconfig file.
	InCluster bool

	// Performance settings
	QPSLimit   float32
	BurstLimit int
	Timeout    time.Duration

	// Logging
	Logger Logger
}

// Logger interface for client logging.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NewClient creates a new provisioning client with the given configuration.
func NewClient(config *ClientConfig) (*provisionerClient, error) {
	if config == nil {
		return nil, fmt.Errorf("client configuration is required")
	}

	// Set defaults
	if config.QPSLimit == 0 {
		config.QPSLimit = DefaultQPSLimit
	}
	if config.BurstLimit == 0 {
		config.BurstLimit = DefaultBurstLimit
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout * time.Second
	}

	restConfig, err := buildRESTConfig(config)
	if err != nil {
		return nil, err
	}

	// Apply performance settings
	restConfig.QPS = config.QPSLimit
	restConfig.Burst = config.BurstLimit
	restConfig.Timeout = config.Timeout

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	if config.Logger != nil {
		if config.InCluster {
			config.Logger.Info("using in-cluster authentication")
		} else {
			config.Logger.Info("using kubeconfig authentication", "context", config.Context)
		}
	}

	return &provisionerClient{
		clientset:  clientset,
		restConfig: restConfig,
		logger:     config.Logger,
	}, nil
}

// NewClientFromClientset wraps an existing clientset and rest config. This is
// the construction path tests use with the client-go fake clientset.
func NewClientFromClientset(clientset kubernetes.Interface, restConfig *rest.Config) (*provisionerClient, error) {
	if clientset == nil {
		return nil, fmt.Errorf("clientset is required")
	}
	if restConfig == nil {
		return nil, fmt.Errorf("rest config is required")
	}
	return &provisionerClient{
		clientset:  clientset,
		restConfig: restConfig,
	}, nil
}

// buildRESTConfig resolves the rest.Config for the configured authentication
// mode. In-cluster mode validates the mounted service account files first so
// misconfigured deployments fail at startup, not on the first request.
func buildRESTConfig(config *ClientConfig) (*rest.Config, error) {
	if config.InCluster {
		if err := validateInClusterEnvironment(); err != nil {
			return nil, fmt.Errorf("in-cluster authentication not available: %w", err)
		}
		restConfig, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to create in-cluster rest config: %w", err)
		}
		return restConfig, nil
	}

	kubeconfigPath := config.KubeconfigPath
	{
		kconf := os.Getenv("KUBECONFIG")
		if strings.HasPrefix(kconf, "~/") {
			uhd, _ := os.UserHomeDir()
			kconf = filepath.Join(uhd, kconf[2:])
		}

		if kconf != "" && kubeconfigPath == "" {
			kubeconfigPath = kconf
		}
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		loadingRules.ExplicitPath = kubeconfigPath
	}

	contextConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules,
		&clientcmd.ConfigOverrides{
			CurrentContext: config.Context,
		},
	)

	restConfig, err := contextConfig.ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create rest config for context %q: %w", config.Context, err)
	}
	return restConfig, nil
}

// validateInClusterEnvironment checks that the mounted service account files
// are present.
func validateInClusterEnvironment() error {
	if _, err := os.Stat(DefaultTokenPath); os.IsNotExist(err) {
		return fmt.Errorf("service account token not found at %s", DefaultTokenPath)
	}
	if _, err := os.Stat(DefaultCACertPath); os.IsNotExist(err) {
		return fmt.Errorf("service account CA certificate not found at %s", DefaultCACertPath)
	}
	if _, err := os.Stat(DefaultNamespacePath); os.IsNotExist(err) {
		return fmt.Errorf("service account namespace not found at %s", DefaultNamespacePath)
	}
	return nil
}

// RESTConfig returns the rest config the client was built with. The
// connection discoverer reads the API server address and CA material from it.
func (c *provisionerClient) RESTConfig() *rest.Config {
	return c.restConfig
}

// logOperation logs an operation for debugging and audit purposes.
func (c *provisionerClient) logOperation(operation, namespace, name string) {
	if c.logger != nil {
		c.logger.Debug("kubernetes operation",
			"operation", operation,
			"namespace", namespace,
			"name", name,
		)
	}
}

// AccessProvisioner implementation

// CreateServiceAccount creates a ServiceAccount in the given namespace.
func (c *provisionerClient) CreateServiceAccount(ctx context.Context, name, namespace string) (*corev1.ServiceAccount, error) {
	c.logOperation("create-serviceaccount", namespace, name)

	sa := &corev1.ServiceAccount{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
	}

	created, err := c.clientset.CoreV1().ServiceAccounts(namespace).Create(ctx, sa, metav1.CreateOptions{})
	if err != nil {
		return nil, normalizeAPIError("create-serviceaccount", err)
	}
	return created, nil
}

// CreateRole creates a namespaced Role carrying the given policy rules.
func (c *provisionerClient) CreateRole(ctx context.Context, name, namespace string, rules []rbacv1.PolicyRule) (*rbacv1.Role, error) {
	c.logOperation("create-role", namespace, name)

	role := &rbacv1.Role{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
		Rules: rules,
	}

	created, err := c.clientset.RbacV1().Roles(namespace).Create(ctx, role, metav1.CreateOptions{})
	if err != nil {
		return nil, normalizeAPIError("create-role", err)
	}
	return created, nil
}

// CreateRoleBinding binds the named Role to the named ServiceAccount in the
// same namespace.
func (c *provisionerClient) CreateRoleBinding(ctx context.Context, name, namespace, roleName, serviceAccountName string) (*rbacv1.RoleBinding, error) {
	c.logOperation("create-rolebinding", namespace, name)

	binding := &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
		RoleRef: rbacv1.RoleRef{
			APIGroup: rbacv1.GroupName,
			Kind:     "Role",
			Name:     roleName,
		},
		Subjects: []rbacv1.Subject{
			{
				Kind:      rbacv1.ServiceAccountKind,
				Name:      serviceAccountName,
				Namespace: namespace,
			},
		},
	}

	created, err := c.clientset.RbacV1().RoleBindings(namespace).Create(ctx, binding, metav1.CreateOptions{})
	if err != nil {
		return nil, normalizeAPIError("create-rolebinding", err)
	}
	return created, nil
}

// TokenManager implementation

// RequestToken requests a bound token via the TokenRequest subresource.
func (c *provisionerClient) RequestToken(ctx context.Context, serviceAccountName, namespace string, audiences []string, ttlSeconds int64) (string, error) {
	c.logOperation("request-token", namespace, serviceAccountName)

	tokenRequest := &authenticationv1.TokenRequest{
		Spec: authenticationv1.TokenRequestSpec{
			Audiences:         audiences,
			ExpirationSeconds: &ttlSeconds,
		},
	}

	resp, err := c.clientset.CoreV1().ServiceAccounts(namespace).CreateToken(ctx, serviceAccountName, tokenRequest, metav1.CreateOptions{})
	if err != nil {
		return "", normalizeAPIError("request-token", err)
	}
	if resp.Status.Token == "" {
		return "", &APIError{
			Kind:   ErrKindUnsupported,
			Op:     "request-token",
			Reason: "token request returned an empty token",
		}
	}
	return resp.Status.Token, nil
}

// CreateTokenSecret creates a service-account-token Secret named
// "<serviceAccountName>-token" bound to the ServiceAccount via annotation.
// The token controller populates its data asynchronously.
func (c *provisionerClient) CreateTokenSecret(ctx context.Context, serviceAccountName, namespace string) (*corev1.Secret, error) {
	name := serviceAccountName + "-token"
	c.logOperation("create-token-secret", namespace, name)

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Annotations: map[string]string{
				ServiceAccountNameAnnotation: serviceAccountName,
			},
		},
		Type: corev1.SecretTypeServiceAccountToken,
	}

	created, err := c.clientset.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{})
	if err != nil {
		return nil, normalizeAPIError("create-token-secret", err)
	}
	return created, nil
}

// GetSecret reads a Secret back.
func (c *provisionerClient) GetSecret(ctx context.Context, name, namespace string) (*corev1.Secret, error) {
	c.logOperation("get-secret", namespace, name)

	secret, err := c.clientset.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, normalizeAPIError("get-secret", err)
	}
	return secret, nil
}

// DiscoveryManager implementation

// ListNamespaces returns the names of all namespaces visible to the client.
func (c *provisionerClient) ListNamespaces(ctx context.Context) ([]string, error) {
	c.logOperation("list-namespaces", "", "")

	list, err := c.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, normalizeAPIError("list-namespaces", err)
	}

	names := make([]string, 0, len(list.Items))
	for _, ns := range list.Items {
		names = append(names, ns.Name)
	}
	return names, nil
}

// ListAPIResources returns the discoverable resource kinds keyed by API
// group. Subresources are skipped so the result maps cleanly onto RBAC rule
// resources, and a resource appearing under several versions of a group is
// reported once.
func (c *provisionerClient) ListAPIResources(ctx context.Context) (map[string][]APIResourceInfo, error) {
	c.logOperation("list-api-resources", "", "")

	_, apiResourceLists, err := c.clientset.Discovery().ServerGroupsAndResources()
	if err != nil {
		// Partial discovery failures still return the lists that succeeded.
		if apiResourceLists == nil {
			return nil, normalizeAPIError("list-api-resources", err)
		}
		if c.logger != nil {
			c.logger.Warn("partial API discovery failure", "error", err)
		}
	}

	result := make(map[string][]APIResourceInfo)
	seen := make(map[string]bool)
	for _, apiResourceList := range apiResourceLists {
		gv, err := schema.ParseGroupVersion(apiResourceList.GroupVersion)
		if err != nil {
			if c.logger != nil {
				c.logger.Warn("failed to parse group version",
					"groupVersion", apiResourceList.GroupVersion, "error", err)
			}
			continue
		}

		for _, apiResource := range apiResourceList.APIResources {
			// Skip sub-resources (they contain '/')
			if strings.Contains(apiResource.Name, "/") {
				continue
			}
			if seen[gv.Group+"/"+apiResource.Name] {
				continue
			}
			seen[gv.Group+"/"+apiResource.Name] = true

			result[gv.Group] = append(result[gv.Group], APIResourceInfo{
				Name:       apiResource.Name,
				Verbs:      apiResource.Verbs,
				Namespaced: apiResource.Namespaced,
			})
		}
	}

	return result, nil
}
