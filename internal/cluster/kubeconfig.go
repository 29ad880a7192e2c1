package cluster

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ResolveCredentials fills Host, BearerToken and CA material when no host
// was configured explicitly. It prefers in-cluster configuration and falls
// back to the kubeconfig at path.
func ResolveCredentials(cfg Config, kubeconfig string) (Config, error) {
	if strings.TrimSpace(cfg.Host) != "" {
		return cfg, nil
	}
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		path := strings.TrimSpace(kubeconfig)
		if path == "" {
			return cfg, errors.New("cluster host not configured: set K8S_API_HOST or KUBECONFIG")
		}
		restCfg, err = clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return cfg, fmt.Errorf("load kubeconfig: %w", err)
		}
	}
	return mergeRESTConfig(cfg, restCfg)
}

func mergeRESTConfig(cfg Config, restCfg *rest.Config) (Config, error) {
	cfg.Host = restCfg.Host
	if cfg.BearerToken == "" {
		cfg.BearerToken = restCfg.BearerToken
		if cfg.BearerToken == "" && restCfg.BearerTokenFile != "" {
			data, err := os.ReadFile(restCfg.BearerTokenFile)
			if err != nil {
				return cfg, fmt.Errorf("read bearer token file: %w", err)
			}
			cfg.BearerToken = strings.TrimSpace(string(data))
		}
	}
	if cfg.CAFile == "" && len(cfg.CAData) == 0 && !restCfg.Insecure {
		cfg.CAFile = restCfg.CAFile
		cfg.CAData = restCfg.CAData
	}
	return cfg, nil
}
