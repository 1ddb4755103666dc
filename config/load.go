package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	vault "github.com/hashicorp/vault/api"
)

// Runtime holds host-side configuration that is never persisted in the agent
// state snapshot: server binding, store endpoints, secrets. Tunables that the
// control plane can patch live in AgentConfig instead.
type Runtime struct {
	Server  ServerConfig
	Logging LoggingConfig
	Store   StoreConfig
	Vault   VaultConfig
	Secrets Secrets
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	AllowedOrigins  string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// APIToken guards every endpoint; KillTokenHash is a bcrypt hash of the
	// stronger secret that guards /kill.
	APIToken      string
	KillTokenHash string
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level       string
	Output      string
	JSONFormat  bool
	IncludeFile bool
}

// StoreConfig holds state store and audit database configuration
type StoreConfig struct {
	RedisEnabled  bool
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	FilePath      string // fallback snapshot path when Redis is disabled
	PostgresDSN   string // optional audit mirror; empty disables it
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool
	Address    string
	Token      string
	MountPath  string
	SecretPath string
}

// Secrets holds provider credentials. Loaded from environment, optionally
// overridden from Vault KV.
type Secrets struct {
	BrokerageKey    string
	BrokerageSecret string
	AnthropicKey    string
	OpenAIKey       string
	DeepSeekKey     string
	TwitterKey      string
	AlertWebhookURL string
}

// LoadRuntime builds the runtime configuration from the environment.
func LoadRuntime() (*Runtime, error) {
	rt := &Runtime{
		Server: ServerConfig{
			Port:            getEnvInt("AGENT_PORT", 8090),
			Host:            getEnv("AGENT_HOST", "0.0.0.0"),
			AllowedOrigins:  getEnv("AGENT_ALLOWED_ORIGINS", "*"),
			ReadTimeout:     time.Duration(getEnvInt("AGENT_READ_TIMEOUT", 30)) * time.Second,
			WriteTimeout:    time.Duration(getEnvInt("AGENT_WRITE_TIMEOUT", 30)) * time.Second,
			ShutdownTimeout: time.Duration(getEnvInt("AGENT_SHUTDOWN_TIMEOUT", 10)) * time.Second,
			APIToken:        getEnv("AGENT_API_TOKEN", ""),
			KillTokenHash:   getEnv("AGENT_KILL_TOKEN_HASH", ""),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "INFO"),
			Output:      getEnv("LOG_OUTPUT", "stdout"),
			JSONFormat:  getEnv("LOG_JSON", "true") == "true",
			IncludeFile: getEnv("LOG_INCLUDE_FILE", "false") == "true",
		},
		Store: StoreConfig{
			RedisEnabled:  getEnv("REDIS_ENABLED", "true") == "true",
			RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			FilePath:      getEnv("STATE_FILE", "agent_state.json"),
			PostgresDSN:   getEnv("POSTGRES_DSN", ""),
		},
		Vault: VaultConfig{
			Enabled:    getEnv("VAULT_ENABLED", "false") == "true",
			Address:    getEnv("VAULT_ADDR", "http://localhost:8200"),
			Token:      getEnv("VAULT_TOKEN", ""),
			MountPath:  getEnv("VAULT_MOUNT_PATH", "secret"),
			SecretPath: getEnv("VAULT_SECRET_PATH", "trading-agent/api-keys"),
		},
		Secrets: Secrets{
			BrokerageKey:    getEnv("BROKERAGE_API_KEY", ""),
			BrokerageSecret: getEnv("BROKERAGE_API_SECRET", ""),
			AnthropicKey:    getEnv("ANTHROPIC_API_KEY", ""),
			OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
			DeepSeekKey:     getEnv("DEEPSEEK_API_KEY", ""),
			TwitterKey:      getEnv("TWITTER_API_KEY", ""),
			AlertWebhookURL: getEnv("ALERT_WEBHOOK_URL", ""),
		},
	}

	if rt.Vault.Enabled {
		if err := loadSecretsFromVault(rt); err != nil {
			return nil, fmt.Errorf("load secrets from vault: %w", err)
		}
	}
	return rt, nil
}

// loadSecretsFromVault overrides Secrets with values stored under the KV v2
// mount. Absent keys keep their environment values.
func loadSecretsFromVault(rt *Runtime) error {
	cfg := vault.DefaultConfig()
	cfg.Address = rt.Vault.Address

	client, err := vault.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("create vault client: %w", err)
	}
	client.SetToken(rt.Vault.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	secret, err := client.KVv2(rt.Vault.MountPath).Get(ctx, rt.Vault.SecretPath)
	if err != nil {
		return fmt.Errorf("read %s/%s: %w", rt.Vault.MountPath, rt.Vault.SecretPath, err)
	}

	set := func(dst *string, key string) {
		if v, ok := secret.Data[key].(string); ok && v != "" {
			*dst = v
		}
	}
	set(&rt.Secrets.BrokerageKey, "brokerage_api_key")
	set(&rt.Secrets.BrokerageSecret, "brokerage_api_secret")
	set(&rt.Secrets.AnthropicKey, "anthropic_api_key")
	set(&rt.Secrets.OpenAIKey, "openai_api_key")
	set(&rt.Secrets.DeepSeekKey, "deepseek_api_key")
	set(&rt.Secrets.TwitterKey, "twitter_api_key")
	set(&rt.Secrets.AlertWebhookURL, "alert_webhook_url")
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
