package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// ProviderKind identifies the external identity provider
type ProviderKind string

const (
	ProviderKindGoogle ProviderKind = "google"
	ProviderKindOIDC   ProviderKind = "oidc"
)

// StorageKind identifies the resume context storage backend
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindRedis     StorageKind = "redis"
	StorageKindFirestore StorageKind = "firestore"
)

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	BaseURL string `json:"baseURL"`
	Addr    string `json:"addr"`
	Name    string `json:"name"`
}

// ProviderConfig holds identity provider OAuth settings
type ProviderConfig struct {
	Kind         ProviderKind `json:"kind"`
	ClientID     string       `json:"clientId"`
	ClientSecret Secret       `json:"clientSecret"`
	RedirectURI  string       `json:"redirectUri"`
	// OIDC-only endpoints; unused for the google kind
	AuthURL     string   `json:"authUrl,omitempty"`
	TokenURL    string   `json:"tokenUrl,omitempty"`
	UserInfoURL string   `json:"userInfoUrl,omitempty"`
	Scopes      []string `json:"scopes,omitempty"`
}

// AuthConfig holds settings for the hosted auth service and local
// credential handling
type AuthConfig struct {
	Provider      ProviderConfig `json:"provider"`
	APIURL        string         `json:"apiUrl"`
	APIKey        Secret         `json:"apiKey"`
	JWTSecret     Secret         `json:"jwtSecret"`
	EncryptionKey Secret         `json:"encryptionKey"`
	SessionTTL    time.Duration  `json:"sessionTtl"`
	StateTTL      time.Duration  `json:"stateTtl"`
}

// ImpactConfig holds settings for the impact backend
type ImpactConfig struct {
	BaseURL      string `json:"baseURL"`
	ServiceToken Secret `json:"serviceToken"`
}

// ResumeConfig holds resume pipeline settings
type ResumeConfig struct {
	Storage             StorageKind   `json:"storage"`
	RedisAddr           string        `json:"redisAddr,omitempty"`
	RedisPassword       Secret        `json:"redisPassword,omitempty"`
	RedisDB             int           `json:"redisDb,omitempty"`
	GCPProject          string        `json:"gcpProject,omitempty"`
	FirestoreDatabase   string        `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string        `json:"firestoreCollection,omitempty"`
	DefaultPath         string        `json:"defaultPath"`
	PendingTTL          time.Duration `json:"pendingTtl"`
	CleanupInterval     time.Duration `json:"cleanupInterval"`
}

// OpsConfig holds settings for the basic-auth protected ops endpoints
type OpsConfig struct {
	Username       string          `json:"username"`
	PasswordRaw    json.RawMessage `json:"password"`
	HashedPassword Secret          `json:"-"`
}

// Config represents the full config structure with resolved values
type Config struct {
	Server ServerConfig `json:"server"`
	Auth   AuthConfig   `json:"auth"`
	Impact ImpactConfig `json:"impact"`
	Resume ResumeConfig `json:"resume"`
	Ops    *OpsConfig   `json:"ops,omitempty"`
}

// ParseConfigValue parses a JSON value that could be a plain string or a
// {"$env": "VAR"} reference object resolved at load time
func ParseConfigValue(raw json.RawMessage) (string, error) {
	// Try plain string first
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	// Try reference object
	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}

	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}
