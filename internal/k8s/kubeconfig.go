package k8s

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

// Kubeconfig is the portable client configuration document. The field names
// and nesting are a compatibility surface: kubectl and every other
// kubeconfig consumer expect exactly this structure.
type Kubeconfig struct {
	APIVersion     string            `json:"apiVersion"`
	Kind           string            `json:"kind"`
	CurrentContext string            `json:"current-context"`
	Clusters       []namedCluster    `json:"clusters"`
	Contexts       []namedContext    `json:"contexts"`
	Users          []namedAuthConfig `json:"users"`
}

type namedCluster struct {
	Name    string       `json:"name"`
	Cluster clusterEntry `json:"cluster"`
}

type clusterEntry struct {
	Server                   string `json:"server"`
	CertificateAuthorityData string `json:"certificate-authority-data"`
}

type namedContext struct {
	Name    string       `json:"name"`
	Context contextEntry `json:"context"`
}

type contextEntry struct {
	Cluster   string `json:"cluster"`
	Namespace string `json:"namespace"`
	User      string `json:"user"`
}

type namedAuthConfig struct {
	Name string    `json:"name"`
	User authEntry `json:"user"`
}

type authEntry struct {
	Token string `json:"token"`
}

// AssembleKubeconfig renders the kubeconfig document: one cluster entry, one
// context entry named "<userName>@<clusterName>", and one token-only user
// entry. Pure and deterministic; no network or disk access.
func AssembleKubeconfig(clusterName, apiServer, caCertData, namespace, token, userName string) *Kubeconfig {
	contextName := fmt.Sprintf("%s@%s", userName, clusterName)

	return &Kubeconfig{
		APIVersion:     "v1",
		Kind:           "Config",
		CurrentContext: contextName,
		Clusters: []namedCluster{
			{
				Name: clusterName,
				Cluster: clusterEntry{
					Server:                   apiServer,
					CertificateAuthorityData: caCertData,
				},
			},
		},
		Contexts: []namedContext{
			{
				Name: contextName,
				Context: contextEntry{
					Cluster:   clusterName,
					Namespace: namespace,
					User:      userName,
				},
			},
		},
		Users: []namedAuthConfig{
			{
				Name: userName,
				User: authEntry{
					Token: token,
				},
			},
		},
	}
}

// Marshal serializes the document to YAML.
func (k *Kubeconfig) Marshal() (string, error) {
	out, err := yaml.Marshal(k)
	if err != nil {
		return "", fmt.Errorf("failed to marshal kubeconfig: %w", err)
	}
	return string(out), nil
}
