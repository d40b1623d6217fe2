// Copyright 2025 Philipp Hossner
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resolver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"

	"husako/pkg/errkind"
	"husako/pkg/schema"
)

// clusterCredentials is what resolveCluster extracts from a kubeconfig
// before talking to the live API server.
type clusterCredentials struct {
	Server                   string
	Token                    string
	CertificateAuthorityData []byte
	InsecureSkipTLSVerify    bool
}

// resolveCluster implements the Cluster (K8s) strategy (spec §4.1): a
// kubeconfig credential lookup followed by a live /openapi/v3 fetch.
// When token is already supplied by ClusterConfig (explicit [cluster]
// token field), kubeconfig scanning is skipped entirely.
func resolveCluster(ctx context.Context, kubeDir, server, explicitToken string) (map[string]schema.Bundle, error) {
	creds := clusterCredentials{Server: server, Token: explicitToken}
	if creds.Token == "" {
		found, err := findKubeconfigCredentials(kubeDir, server)
		if err != nil {
			return nil, err
		}
		creds = *found
	}

	client, err := httpClientFor(creds)
	if err != nil {
		return nil, err
	}

	index, err := fetchOpenAPIIndex(ctx, client, creds.Server)
	if err != nil {
		return nil, err
	}

	out := map[string]schema.Bundle{}
	for path, rel := range index {
		key, ok := clusterDiscoveryKey(path)
		if !ok {
			continue
		}
		data, err := httpGetBytes(ctx, client, creds.Server+rel)
		if err != nil {
			return nil, err
		}
		bundle, err := parseBundle(path, data)
		if err != nil {
			return nil, err
		}
		out[key] = bundle
	}
	return out, nil
}

// clusterDiscoveryKey turns an /openapi/v3 index path ("apis/apps/v1",
// "api/v1") directly into a DiscoveryKey: the live server already uses
// the same convention husako does.
func clusterDiscoveryKey(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	return path, true
}

type openAPIV3Index struct {
	Paths map[string]struct {
		ServerRelativeURL string `json:"serverRelativeURL"`
	} `json:"paths"`
}

func fetchOpenAPIIndex(ctx context.Context, client *http.Client, server string) (map[string]string, error) {
	data, err := httpGetBytes(ctx, client, server+"/openapi/v3")
	if err != nil {
		return nil, err
	}
	var idx openAPIV3Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, errkind.Wrap(errkind.Fetch, server, "parsing /openapi/v3 index", err)
	}
	out := make(map[string]string, len(idx.Paths))
	for path, entry := range idx.Paths {
		out[path] = entry.ServerRelativeURL
	}
	return out, nil
}

func httpClientFor(creds clusterCredentials) (*http.Client, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: creds.InsecureSkipTLSVerify}
	if len(creds.CertificateAuthorityData) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(creds.CertificateAuthorityData) {
			return nil, errkind.New(errkind.Fetch, creds.Server, "invalid certificate-authority-data")
		}
		tlsConfig.RootCAs = pool
	}
	transport := &authenticatingTransport{
		token: creds.Token,
		base:  &http.Transport{TLSClientConfig: tlsConfig},
	}
	return &http.Client{Transport: transport}, nil
}

// authenticatingTransport attaches the bearer token to every request;
// a named type (rather than http.Client.Transport func literal) so it
// is easy to unit-test in isolation from a live server.
type authenticatingTransport struct {
	token string
	base  http.RoundTripper
}

func (t *authenticatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.token != "" {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	return t.base.RoundTrip(req)
}

// findKubeconfigCredentials scans files directly in kubeDir (no
// recursion), parsing each as a kubeconfig, looking for a cluster whose
// server matches, the context that references it, and the bearer token
// on the referenced user entry (spec §4.1 Cluster strategy).
func findKubeconfigCredentials(kubeDir, server string) (*clusterCredentials, error) {
	entries, err := os.ReadDir(kubeDir)
	if err != nil {
		return nil, errkind.Wrap(errkind.Fetch, kubeDir, "listing kubeconfig directory", err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(kubeDir, e.Name())
		cfg, err := clientcmd.LoadFromFile(path)
		if err != nil {
			continue
		}
		if creds := credentialsFromConfig(cfg, server); creds != nil {
			return creds, nil
		}
	}
	return nil, errkind.New(errkind.Fetch, server, fmt.Sprintf("no kubeconfig in %s declares a cluster with this server", kubeDir)).
		WithSuggestion("add the cluster to a kubeconfig file or set [cluster] token directly")
}

func credentialsFromConfig(cfg *clientcmdapi.Config, server string) *clusterCredentials {
	var clusterName string
	var cluster *clientcmdapi.Cluster
	for name, c := range cfg.Clusters {
		if c.Server == server {
			clusterName, cluster = name, c
			break
		}
	}
	if cluster == nil {
		return nil
	}

	var userName string
	for _, c := range cfg.Contexts {
		if c.Cluster == clusterName {
			userName = c.AuthInfo
			break
		}
	}
	user := cfg.AuthInfos[userName]
	if user == nil {
		return nil
	}

	return &clusterCredentials{
		Server:                   server,
		Token:                    user.Token,
		CertificateAuthorityData: cluster.CertificateAuthorityData,
		InsecureSkipTLSVerify:    cluster.InsecureSkipTLSVerify,
	}
}
