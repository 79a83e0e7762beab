package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Defaults applied when the config leaves them unset
const (
	DefaultSessionTTL      = 24 * time.Hour
	DefaultStateTTL        = 10 * time.Minute
	DefaultPendingTTL      = time.Hour
	DefaultCleanupInterval = 5 * time.Minute
	DefaultResumePath      = "/dashboard"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != "v1" {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	// Parse directly into the typed Config struct. The custom
	// UnmarshalJSON methods resolve env vars immediately.
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func applyDefaults(config *Config) {
	if config.Auth.SessionTTL == 0 {
		config.Auth.SessionTTL = DefaultSessionTTL
	}
	if config.Auth.StateTTL == 0 {
		config.Auth.StateTTL = DefaultStateTTL
	}
	if config.Resume.Storage == "" {
		config.Resume.Storage = StorageKindMemory
	}
	if config.Resume.PendingTTL == 0 {
		config.Resume.PendingTTL = DefaultPendingTTL
	}
	if config.Resume.CleanupInterval == 0 {
		config.Resume.CleanupInterval = DefaultCleanupInterval
	}
	if config.Resume.DefaultPath == "" {
		config.Resume.DefaultPath = DefaultResumePath
	}
	if config.Resume.Storage == StorageKindFirestore {
		if config.Resume.FirestoreDatabase == "" {
			config.Resume.FirestoreDatabase = "(default)"
		}
		if config.Resume.FirestoreCollection == "" {
			config.Resume.FirestoreCollection = "resume_contexts"
		}
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if err := validateAuth(&config.Auth); err != nil {
		return fmt.Errorf("auth config: %w", err)
	}

	if config.Impact.BaseURL == "" {
		return fmt.Errorf("impact.baseURL is required")
	}

	if err := validateResume(&config.Resume); err != nil {
		return fmt.Errorf("resume config: %w", err)
	}

	if config.Ops != nil {
		if config.Ops.Username == "" {
			return fmt.Errorf("ops.username is required")
		}
		if config.Ops.HashedPassword == "" {
			return fmt.Errorf("ops.password is required")
		}
	}

	return nil
}

func validateAuth(auth *AuthConfig) error {
	if auth.APIURL == "" {
		return fmt.Errorf("apiUrl is required")
	}
	if len(auth.JWTSecret) < 32 {
		return fmt.Errorf("jwtSecret must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(auth.JWTSecret))
	}
	if len(auth.EncryptionKey) != 32 {
		return fmt.Errorf("encryptionKey must be exactly 32 characters (got %d). Generate with: openssl rand -base64 32 | head -c 32", len(auth.EncryptionKey))
	}

	p := &auth.Provider
	switch p.Kind {
	case ProviderKindGoogle:
		if p.ClientID == "" || p.ClientSecret == "" {
			return fmt.Errorf("provider clientId and clientSecret are required")
		}
		if p.RedirectURI == "" {
			return fmt.Errorf("provider redirectUri is required")
		}
	case ProviderKindOIDC:
		if p.ClientID == "" || p.ClientSecret == "" {
			return fmt.Errorf("provider clientId and clientSecret are required")
		}
		if p.RedirectURI == "" {
			return fmt.Errorf("provider redirectUri is required")
		}
		if p.AuthURL == "" || p.TokenURL == "" || p.UserInfoURL == "" {
			return fmt.Errorf("oidc provider requires authUrl, tokenUrl and userInfoUrl")
		}
	case "":
		// no direct provider; password and confirmation flows only
		if p.ClientID != "" {
			return fmt.Errorf("provider kind is required when a clientId is set")
		}
	default:
		return fmt.Errorf("unknown provider kind: %s", p.Kind)
	}

	return nil
}

func validateResume(resume *ResumeConfig) error {
	switch resume.Storage {
	case StorageKindMemory:
	case StorageKindRedis:
		if resume.RedisAddr == "" {
			return fmt.Errorf("redisAddr is required when using redis storage")
		}
	case StorageKindFirestore:
		if resume.GCPProject == "" {
			return fmt.Errorf("gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage kind: %s", resume.Storage)
	}

	if resume.PendingTTL < 0 {
		return fmt.Errorf("pendingTtl cannot be negative")
	}
	if resume.CleanupInterval < 0 {
		return fmt.Errorf("cleanupInterval cannot be negative")
	}

	return nil
}
