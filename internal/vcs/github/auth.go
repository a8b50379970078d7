package github

import (
	"fmt"
	"os"

	"github.com/rostilos/codecrow/internal/vcs"
)

// resolveToken gets the API token from the environment. Uses cfg.TokenEnvVar
// if set, otherwise the provider default.
func resolveToken(cfg vcs.Config, defaultEnvVar string) (string, error) {
	envVar := defaultEnvVar
	if cfg.TokenEnvVar != "" {
		envVar = cfg.TokenEnvVar
	}

	token := os.Getenv(envVar)
	if token == "" {
		return "", fmt.Errorf("%s environment variable is not set (required for provider API access)", envVar)
	}

	return token, nil
}
