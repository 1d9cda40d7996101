package k8s

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	authenticationv1 "k8s.io/api/authentication/v1"
	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
	clienttesting "k8s.io/client-go/testing"
	"sigs.k8s.io/yaml"
)

// newTestProvisioner wires a Provisioner over the fake clientset with a
// token reactor so the primary token path succeeds.
func newTestProvisioner(t *testing.T) (*Provisioner, *fake.Clientset) {
	t.Helper()
	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("create", "serviceaccounts", func(action clienttesting.Action) (bool, runtime.Object, error) {
		if action.GetSubresource() != "token" {
			return false, nil, nil
		}
		return true, &authenticationv1.TokenRequest{
			Status: authenticationv1.TokenRequestStatus{Token: "issued-token"},
		}, nil
	})

	client, err := NewClientFromClientset(clientset, &rest.Config{Host: "https://test:6443"})
	require.NoError(t, err)

	prov, err := NewProvisioner(ProvisionerConfig{
		Client:      client,
		Connection:  ConnectionProfile{Server: "https://test:6443", CACertData: "Y2EtZGF0YQ=="},
		ClusterName: "test-cluster",
		SettleDelay: time.Millisecond,
	})
	require.NoError(t, err)
	return prov, clientset
}

func TestNewProvisionerValidation(t *testing.T) {
	_, err := NewProvisioner(ProvisionerConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client is required")
}

func TestNewProvisionerDefaultsClusterName(t *testing.T) {
	client, err := NewClientFromClientset(fake.NewSimpleClientset(), &rest.Config{Host: "https://test:6443"})
	require.NoError(t, err)

	prov, err := NewProvisioner(ProvisionerConfig{Client: client})
	require.NoError(t, err)
	assert.Equal(t, DefaultClusterName, prov.clusterName)
}

func TestIssueScopedRoleValidation(t *testing.T) {
	prov, _ := newTestProvisioner(t)
	ctx := context.Background()

	perms := []PermissionRequest{{Resource: "pods", Verbs: []string{"get"}}}

	tests := []struct {
		name        string
		roleName    string
		namespace   string
		permissions []PermissionRequest
	}{
		{"missing name", "", "default", perms},
		{"missing namespace", "reader", "", perms},
		{"empty permissions", "reader", "default", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := prov.IssueScopedRole(ctx, tt.roleName, tt.namespace, tt.permissions)
			require.Error(t, err)
			assert.Equal(t, ErrKindValidation, KindOf(err))
		})
	}
}

func TestIssueScopedRole(t *testing.T) {
	prov, clientset := newTestProvisioner(t)
	ctx := context.Background()

	permissions := []PermissionRequest{
		{Resource: "pods", Verbs: []string{"get", "list"}},
		{Resource: "deployments", Verbs: []string{"get"}, APIGroup: "apps"},
		{Resource: "services", Verbs: []string{"watch"}},
	}

	out, err := prov.IssueScopedRole(ctx, "reader", "team-a", permissions)
	require.NoError(t, err)

	// Rule count equals permission count, in request order.
	stored, err := clientset.RbacV1().Roles("team-a").Get(ctx, "reader", metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, stored.Rules, 3)
	assert.Equal(t, []string{"pods"}, stored.Rules[0].Resources)
	assert.Equal(t, []string{"deployments"}, stored.Rules[1].Resources)
	assert.Equal(t, []string{"services"}, stored.Rules[2].Resources)

	// No ServiceAccount or RoleBinding is created by this workflow.
	sas, err := clientset.CoreV1().ServiceAccounts("team-a").List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, sas.Items)
	bindings, err := clientset.RbacV1().RoleBindings("team-a").List(ctx, metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, bindings.Items)

	// The serialized document stands alone.
	var role rbacv1.Role
	require.NoError(t, yaml.Unmarshal([]byte(out), &role))
	assert.Equal(t, "Role", role.Kind)
	assert.Equal(t, "rbac.authorization.k8s.io/v1", role.APIVersion)
	assert.Equal(t, "reader", role.Name)
	assert.Len(t, role.Rules, 3)
}

func TestIssueScopedRoleConflict(t *testing.T) {
	prov, _ := newTestProvisioner(t)
	ctx := context.Background()

	perms := []PermissionRequest{{Resource: "pods", Verbs: []string{"get"}}}

	_, err := prov.IssueScopedRole(ctx, "reader", "team-a", perms)
	require.NoError(t, err)

	_, err = prov.IssueScopedRole(ctx, "reader", "team-a", perms)
	require.Error(t, err)
	assert.Equal(t, ErrKindConflict, KindOf(err))
}

func TestIssueCredentialBundleValidation(t *testing.T) {
	prov, _ := newTestProvisioner(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		bundleName string
		namespace  string
		resources  []string
		verbs      []string
	}{
		{"missing name", "", "default", []string{"pods"}, []string{"get"}},
		{"missing namespace", "reader", "", []string{"pods"}, []string{"get"}},
		{"empty resources", "reader", "default", nil, []string{"get"}},
		{"empty verbs", "reader", "default", []string{"pods"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := prov.IssueCredentialBundle(ctx, tt.bundleName, tt.namespace, tt.resources, tt.verbs)
			require.Error(t, err)
			assert.Equal(t, ErrKindValidation, KindOf(err))
		})
	}
}

func TestIssueCredentialBundle(t *testing.T) {
	prov, clientset := newTestProvisioner(t)
	ctx := context.Background()

	out, err := prov.IssueCredentialBundle(ctx, "ci-reader", "team-a",
		[]string{"pods", "services"}, []string{"get", "list"})
	require.NoError(t, err)

	// Exactly two rules, each carrying both verbs.
	role, err := clientset.RbacV1().Roles("team-a").Get(ctx, "ci-reader", metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, role.Rules, 2)
	for _, rule := range role.Rules {
		assert.Equal(t, []string{"get", "list"}, rule.Verbs)
		assert.Equal(t, []string{""}, rule.APIGroups)
	}

	// ServiceAccount and RoleBinding exist with matching names.
	_, err = clientset.CoreV1().ServiceAccounts("team-a").Get(ctx, "ci-reader", metav1.GetOptions{})
	require.NoError(t, err)
	binding, err := clientset.RbacV1().RoleBindings("team-a").Get(ctx, "ci-reader", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ci-reader", binding.RoleRef.Name)
	assert.Equal(t, "ci-reader", binding.Subjects[0].Name)
	assert.Equal(t, "team-a", binding.Subjects[0].Namespace)

	// The artifact embeds the configured connection and the issued token.
	var kc Kubeconfig
	require.NoError(t, yaml.Unmarshal([]byte(out), &kc))
	assert.Equal(t, "ci-reader@test-cluster", kc.CurrentContext)
	assert.Equal(t, "https://test:6443", kc.Clusters[0].Cluster.Server)
	assert.Equal(t, "Y2EtZGF0YQ==", kc.Clusters[0].Cluster.CertificateAuthorityData)
	assert.Equal(t, "team-a", kc.Contexts[0].Context.Namespace)
	assert.Equal(t, "issued-token", kc.Users[0].User.Token)
}

func TestIssueCredentialBundleBindingFailureLeavesEarlierObjects(t *testing.T) {
	prov, clientset := newTestProvisioner(t)
	ctx := context.Background()

	bindingErr := errors.New("admission webhook denied the request")
	clientset.PrependReactor("create", "rolebindings", func(action clienttesting.Action) (bool, runtime.Object, error) {
		return true, nil, bindingErr
	})

	_, err := prov.IssueCredentialBundle(ctx, "ci-reader", "team-a",
		[]string{"pods"}, []string{"get"})
	require.Error(t, err)

	// The surfaced error is the binding step's own failure.
	assert.ErrorIs(t, err, bindingErr)

	// Earlier objects remain; no compensating deletion happens.
	_, err = clientset.CoreV1().ServiceAccounts("team-a").Get(ctx, "ci-reader", metav1.GetOptions{})
	require.NoError(t, err)
	_, err = clientset.RbacV1().Roles("team-a").Get(ctx, "ci-reader", metav1.GetOptions{})
	require.NoError(t, err)

	for _, action := range clientset.Actions() {
		assert.NotEqual(t, "delete", action.GetVerb())
	}
}

func TestIssueCredentialBundleStopsAtFirstConflict(t *testing.T) {
	prov, clientset := newTestProvisioner(t)
	ctx := context.Background()

	_, err := prov.IssueCredentialBundle(ctx, "ci-reader", "team-a",
		[]string{"pods"}, []string{"get"})
	require.NoError(t, err)

	before := len(clientset.Actions())

	// Re-invoking with the same name fails at the first step whose object
	// already exists.
	_, err = prov.IssueCredentialBundle(ctx, "ci-reader", "team-a",
		[]string{"pods"}, []string{"get"})
	require.Error(t, err)
	assert.Equal(t, ErrKindConflict, KindOf(err))

	// Only the ServiceAccount create was attempted on the second call.
	assert.Equal(t, before+1, len(clientset.Actions()))
}

func TestIssueCredentialBundleConcurrentDistinctNames(t *testing.T) {
	prov, _ := newTestProvisioner(t)
	ctx := context.Background()

	names := []string{"reader-a", "reader-b", "reader-c", "reader-d"}
	results := make([]error, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			_, results[i] = prov.IssueCredentialBundle(ctx, name, "team-a",
				[]string{"pods"}, []string{"get"})
		}(i, name)
	}
	wg.Wait()

	for i, err := range results {
		assert.NoError(t, err, "bundle %s", names[i])
	}
}

func TestIssueCredentialBundleConcurrentSameName(t *testing.T) {
	prov, _ := newTestProvisioner(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = prov.IssueCredentialBundle(ctx, "racer", "team-a",
				[]string{"pods"}, []string{"get"})
		}(i)
	}
	wg.Wait()

	// Exactly one success and one conflict.
	var successes, conflicts int
	for _, err := range errs {
		if err == nil {
			successes++
		} else if KindOf(err) == ErrKindConflict {
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
}

func TestIssueCredentialBundleFallbackToken(t *testing.T) {
	clientset := fake.NewSimpleClientset()

	// Primary path unsupported; the token controller double populates the
	// secret on read-back.
	clientset.PrependReactor("create", "serviceaccounts", func(action clienttesting.Action) (bool, runtime.Object, error) {
		if action.GetSubresource() != "token" {
			return false, nil, nil
		}
		return true, nil, apierrors.NewMethodNotSupported(
			schema.GroupResource{Resource: "serviceaccounts"}, "token")
	})
	clientset.PrependReactor("get", "secrets", func(action clienttesting.Action) (bool, runtime.Object, error) {
		getAction := action.(clienttesting.GetAction)
		return true, &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{
				Name:      getAction.GetName(),
				Namespace: getAction.GetNamespace(),
			},
			Type: corev1.SecretTypeServiceAccountToken,
			Data: map[string][]byte{
				corev1.ServiceAccountTokenKey: []byte("fallback-token"),
			},
		}, nil
	})

	client, err := NewClientFromClientset(clientset, &rest.Config{Host: "https://test:6443"})
	require.NoError(t, err)
	prov, err := NewProvisioner(ProvisionerConfig{
		Client:      client,
		Connection:  ConnectionProfile{Server: "https://test:6443"},
		SettleDelay: time.Millisecond,
	})
	require.NoError(t, err)

	out, err := prov.IssueCredentialBundle(context.Background(), "ci-reader", "team-a",
		[]string{"pods"}, []string{"get"})
	require.NoError(t, err)

	var kc Kubeconfig
	require.NoError(t, yaml.Unmarshal([]byte(out), &kc))
	assert.Equal(t, "fallback-token", kc.Users[0].User.Token)
}
