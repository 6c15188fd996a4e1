package tabichan

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// envCredentials is the process-wide credential store: clients fall back to
// it when no API key is passed explicitly.
type envCredentials struct {
	APIKey  string `env:"TABICHAN_API_KEY"`
	BaseURL string `env:"TABICHAN_BASE_URL"`
}

func credentialsFromEnv() (envCredentials, error) {
	var creds envCredentials
	if err := env.Parse(&creds); err != nil {
		return envCredentials{}, fmt.Errorf("parse environment: %w", err)
	}
	return creds, nil
}
