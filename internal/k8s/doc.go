// Package k8s implements the credential provisioning core for kubegrant.
//
// This package defines the Client interface that abstracts the four
// control-plane primitives the provisioning pipeline needs (ServiceAccount,
// Role, RoleBinding and token issuance), together with the pipeline itself:
//
//   - AccessProvisioner: creation of ServiceAccount, Role and RoleBinding
//   - TokenManager: bound token issuance via the TokenRequest subresource,
//     plus the legacy service-account-token Secret fallback
//   - DiscoveryManager: namespace and API resource enumeration
//
// On top of the Client interface the package provides:
//
//   - CompileRules: translation of caller permission requests into RBAC
//     policy rules
//   - TokenIssuer: the two-path token issuance state machine
//   - DiscoverConnection: snapshot of the API server address and CA trust
//     material the issuing process itself uses
//   - AssembleKubeconfig: rendering of the portable kubeconfig document
//   - Provisioner: the orchestrator sequencing all of the above into the
//     two public workflows, IssueScopedRole and IssueCredentialBundle
//
// Example usage:
//
//	client, err := k8s.NewClient(&k8s.ClientConfig{InCluster: true})
//	if err != nil {
//		return err
//	}
//
//	prov, err := k8s.NewProvisioner(k8s.ProvisionerConfig{
//		Client:      client,
//		Connection:  k8s.DiscoverConnection(client.RESTConfig(), nil),
//		ClusterName: "production",
//	})
//	if err != nil {
//		return err
//	}
//
//	kubeconfig, err := prov.IssueCredentialBundle(ctx, "ci-reader", "default",
//		[]string{"pods", "services"}, []string{"get", "list"})
//
// The Client interface exists so the orchestrator's sequencing logic can be
// tested against the client-go fake clientset without a real cluster.
package k8s
