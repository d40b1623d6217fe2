//go:build integration

// Package integration holds husako's one opt-in, real-cluster
// integration test: the Cluster K8s resource source strategy against a
// live kind-provisioned API server (spec §4.1). Build with -tags
// integration; requires a working docker daemon and the kind/kubectl
// binaries discoverable by sigs.k8s.io/kind's own exec plumbing.
package integration

import (
	"context"
	"fmt"
	"os"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
	"sigs.k8s.io/kind/pkg/cluster"
	"sigs.k8s.io/kind/pkg/cmd"
)

// KindClusterConfig configures a kind cluster for one test run.
type KindClusterConfig struct {
	Name string
	// Image is the kind node image. Empty uses KIND_NODE_IMAGE or a
	// known-good default.
	Image string
}

// KindCluster is a running (or reused) kind cluster plus the
// credentials needed to talk to it.
type KindCluster struct {
	Name       string
	Kubeconfig string
	provider   *cluster.Provider
	clientset  *kubernetes.Clientset
}

// SetupKindCluster creates cfg.Name if it doesn't already exist, then
// waits for its API server to accept requests.
func SetupKindCluster(cfg *KindClusterConfig) (*KindCluster, error) {
	provider := cluster.NewProvider(cluster.ProviderWithLogger(cmd.NewLogger()))

	clusters, err := provider.List()
	if err != nil {
		return nil, fmt.Errorf("listing kind clusters: %w", err)
	}
	exists := false
	for _, c := range clusters {
		if c == cfg.Name {
			exists = true
			break
		}
	}

	if !exists {
		nodeImage := cfg.Image
		if nodeImage == "" {
			nodeImage = os.Getenv("KIND_NODE_IMAGE")
		}
		if nodeImage == "" {
			nodeImage = "kindest/node:v1.32.0"
		}
		opts := []cluster.CreateOption{
			cluster.CreateWithWaitForReady(5 * time.Minute),
			cluster.CreateWithNodeImage(nodeImage),
		}
		if err := provider.Create(cfg.Name, opts...); err != nil {
			return nil, fmt.Errorf("creating kind cluster: %w", err)
		}
	}

	kubeconfig, err := provider.KubeConfig(cfg.Name, false)
	if err != nil {
		return nil, fmt.Errorf("reading kind kubeconfig: %w", err)
	}

	restConfig, err := clientcmd.RESTConfigFromKubeConfig([]byte(kubeconfig))
	if err != nil {
		return nil, fmt.Errorf("building rest config: %w", err)
	}
	restConfig.QPS = 0
	restConfig.Burst = 0

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes client: %w", err)
	}

	kc := &KindCluster{Name: cfg.Name, Kubeconfig: kubeconfig, provider: provider, clientset: clientset}
	if err := waitForAPIServer(clientset, 2*time.Minute); err != nil {
		return nil, fmt.Errorf("waiting for API server: %w", err)
	}
	return kc, nil
}

func waitForAPIServer(clientset *kubernetes.Clientset, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for API server")
		case <-ticker.C:
			if _, err := clientset.Discovery().ServerVersion(); err == nil {
				return nil
			}
		}
	}
}

// Teardown deletes the kind cluster, unless KEEP_CLUSTER=true.
func (k *KindCluster) Teardown() error {
	if os.Getenv("KEEP_CLUSTER") == "true" {
		return nil
	}
	if err := k.provider.Delete(k.Name, ""); err != nil {
		return fmt.Errorf("deleting kind cluster: %w", err)
	}
	return nil
}
