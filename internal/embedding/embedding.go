package embedding

import "context"

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config holds embedding provider configuration.
type Config struct {
	Provider  string `json:"provider"` // "api" or "local"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
}

// NewProvider builds the configured provider. Anything other than "api"
// falls back to the local hash provider, which needs no external service.
func NewProvider(cfg Config) Provider {
	if cfg.Provider == "api" {
		return NewAPIProvider(cfg)
	}
	return NewLocalProvider(cfg)
}
