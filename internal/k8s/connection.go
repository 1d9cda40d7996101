package k8s

import (
	"encoding/base64"
	"os"

	"k8s.io/client-go/rest"
)

// DiscoverConnection snapshots the API server address and CA trust material
// from the rest config the process itself uses to reach the control plane.
// The result is immutable and safe to cache for the process lifetime.
//
// Missing or unreadable CA material degrades to an empty CACertData rather
// than failing: a client using the resulting kubeconfig then has to trust
// the server through its system trust store.
func DiscoverConnection(restConfig *rest.Config, logger Logger) ConnectionProfile {
	profile := ConnectionProfile{
		Server: restConfig.Host,
	}

	if len(restConfig.TLSClientConfig.CAData) > 0 {
		profile.CACertData = base64.StdEncoding.EncodeToString(restConfig.TLSClientConfig.CAData)
		return profile
	}

	caPath := restConfig.TLSClientConfig.CAFile
	if caPath == "" {
		if logger != nil {
			logger.Warn("no CA certificate configured, kubeconfig will carry no trust anchor")
		}
		return profile
	}

	info, err := os.Stat(caPath)
	if err != nil || !info.Mode().IsRegular() {
		if logger != nil {
			logger.Warn("CA certificate path is not a readable file", "path", caPath, "error", err)
		}
		return profile
	}

	data, err := os.ReadFile(caPath)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to read CA certificate", "path", caPath, "error", err)
		}
		return profile
	}

	profile.CACertData = base64.StdEncoding.EncodeToString(data)
	return profile
}
