package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full service configuration, read from the environment once
// at startup. Empty connection values disable the optional collaborator they
// belong to.
type Config struct {
	Port          int
	PostgresDSN   string
	RedisURL      string
	MigrationsDir string

	QdrantHost string
	QdrantPort int

	Embedding EmbeddingConfig
	Engine    EngineConfig
	Dispatch  DispatchConfig
	Dialogue  DialogueConfig
	Gateway   GatewayConfig

	SessionTTL time.Duration
}

// EmbeddingConfig selects and parameterizes the embedding provider.
type EmbeddingConfig struct {
	Provider  string
	Endpoint  string
	Model     string
	APIKey    string
	Dimension int
}

// EngineConfig parameterizes the external LLM CLI.
type EngineConfig struct {
	CLIPath         string
	Model           string
	ConsultantModel string
	MaxTokens       int
	TimeoutSeconds  int
}

// DispatchConfig bounds concurrent agent executions.
type DispatchConfig struct {
	MaxGlobalConcurrent int
	MaxPerTeam          int
	MaxPerAgent         int
	Workers             int
}

// DialogueConfig bounds the planning dialogue.
type DialogueConfig struct {
	MaxTurns          int
	PrimaryTimeout    time.Duration
	ConsultantTimeout time.Duration
}

// GatewayConfig enables outbound notification adapters. An adapter is
// enabled when its token is set.
type GatewayConfig struct {
	SlackToken     string
	SlackChannel   string
	DiscordToken   string
	DiscordChannel string
}

// Load reads the configuration from the environment.
func Load() Config {
	return Config{
		Port:          envInt("HIVEMIND_PORT", 8080),
		PostgresDSN:   os.Getenv("HIVEMIND_POSTGRES_DSN"),
		RedisURL:      os.Getenv("HIVEMIND_REDIS_URL"),
		MigrationsDir: envStr("HIVEMIND_MIGRATIONS_DIR", "migrations"),

		QdrantHost: os.Getenv("HIVEMIND_QDRANT_HOST"),
		QdrantPort: envInt("HIVEMIND_QDRANT_PORT", 6334),

		Embedding: EmbeddingConfig{
			Provider:  envStr("HIVEMIND_EMBEDDING_PROVIDER", "local"),
			Endpoint:  os.Getenv("HIVEMIND_EMBEDDING_ENDPOINT"),
			Model:     os.Getenv("HIVEMIND_EMBEDDING_MODEL"),
			APIKey:    os.Getenv("HIVEMIND_EMBEDDING_API_KEY"),
			Dimension: envInt("HIVEMIND_EMBEDDING_DIMENSION", 256),
		},

		Engine: EngineConfig{
			CLIPath:         envStr("HIVEMIND_ENGINE_CLI", "claude"),
			Model:           envStr("HIVEMIND_ENGINE_MODEL", "claude-sonnet-4"),
			ConsultantModel: os.Getenv("HIVEMIND_CONSULTANT_MODEL"),
			MaxTokens:       envInt("HIVEMIND_ENGINE_MAX_TOKENS", 8192),
			TimeoutSeconds:  envInt("HIVEMIND_ENGINE_TIMEOUT", 300),
		},

		Dispatch: DispatchConfig{
			MaxGlobalConcurrent: envInt("HIVEMIND_MAX_CONCURRENT", 32),
			MaxPerTeam:          envInt("HIVEMIND_MAX_PER_TEAM", 4),
			MaxPerAgent:         envInt("HIVEMIND_MAX_PER_AGENT", 1),
			Workers:             envInt("HIVEMIND_WORKERS", 4),
		},

		Dialogue: DialogueConfig{
			MaxTurns:       envInt("HIVEMIND_DIALOGUE_MAX_TURNS", 10),
			PrimaryTimeout: time.Duration(envInt("HIVEMIND_PRIMARY_TIMEOUT", 60)) * time.Second,
			// HIVEMIND_CLAUDE_TIMEOUT bounds each consultant evaluation turn.
			ConsultantTimeout: time.Duration(envInt("HIVEMIND_CLAUDE_TIMEOUT", 45)) * time.Second,
		},

		Gateway: GatewayConfig{
			SlackToken:     os.Getenv("HIVEMIND_SLACK_TOKEN"),
			SlackChannel:   os.Getenv("HIVEMIND_SLACK_CHANNEL"),
			DiscordToken:   os.Getenv("HIVEMIND_DISCORD_TOKEN"),
			DiscordChannel: os.Getenv("HIVEMIND_DISCORD_CHANNEL"),
		},

		SessionTTL: time.Duration(envInt("HIVEMIND_SESSION_TTL", 3600)) * time.Second,
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
