package config

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// UnmarshalJSON implements custom unmarshaling for ProviderConfig
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	type rawProvider struct {
		Kind         ProviderKind    `json:"kind"`
		ClientID     json.RawMessage `json:"clientId"`
		ClientSecret json.RawMessage `json:"clientSecret"`
		RedirectURI  json.RawMessage `json:"redirectUri"`
		AuthURL      string          `json:"authUrl,omitempty"`
		TokenURL     string          `json:"tokenUrl,omitempty"`
		UserInfoURL  string          `json:"userInfoUrl,omitempty"`
		Scopes       []string        `json:"scopes,omitempty"`
	}

	var raw rawProvider
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Kind = raw.Kind
	p.AuthURL = raw.AuthURL
	p.TokenURL = raw.TokenURL
	p.UserInfoURL = raw.UserInfoURL
	p.Scopes = raw.Scopes

	if raw.ClientID != nil {
		value, err := ParseConfigValue(raw.ClientID)
		if err != nil {
			return fmt.Errorf("parsing clientId: %w", err)
		}
		p.ClientID = value
	}

	if raw.ClientSecret != nil {
		value, err := ParseConfigValue(raw.ClientSecret)
		if err != nil {
			return fmt.Errorf("parsing clientSecret: %w", err)
		}
		p.ClientSecret = Secret(value)
	}

	if raw.RedirectURI != nil {
		value, err := ParseConfigValue(raw.RedirectURI)
		if err != nil {
			return fmt.Errorf("parsing redirectUri: %w", err)
		}
		p.RedirectURI = value
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for AuthConfig
func (a *AuthConfig) UnmarshalJSON(data []byte) error {
	type rawAuth struct {
		Provider      json.RawMessage `json:"provider"`
		APIURL        json.RawMessage `json:"apiUrl"`
		APIKey        json.RawMessage `json:"apiKey"`
		JWTSecret     json.RawMessage `json:"jwtSecret"`
		EncryptionKey json.RawMessage `json:"encryptionKey"`
		SessionTTL    string          `json:"sessionTtl"`
		StateTTL      string          `json:"stateTtl"`
	}

	var raw rawAuth
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.Provider != nil {
		if err := json.Unmarshal(raw.Provider, &a.Provider); err != nil {
			return fmt.Errorf("parsing provider: %w", err)
		}
	}

	if raw.APIURL != nil {
		value, err := ParseConfigValue(raw.APIURL)
		if err != nil {
			return fmt.Errorf("parsing apiUrl: %w", err)
		}
		a.APIURL = value
	}

	if raw.APIKey != nil {
		value, err := ParseConfigValue(raw.APIKey)
		if err != nil {
			return fmt.Errorf("parsing apiKey: %w", err)
		}
		a.APIKey = Secret(value)
	}

	if raw.JWTSecret != nil {
		value, err := ParseConfigValue(raw.JWTSecret)
		if err != nil {
			return fmt.Errorf("parsing jwtSecret: %w", err)
		}
		a.JWTSecret = Secret(value)
	}

	if raw.EncryptionKey != nil {
		value, err := ParseConfigValue(raw.EncryptionKey)
		if err != nil {
			return fmt.Errorf("parsing encryptionKey: %w", err)
		}
		a.EncryptionKey = Secret(value)
	}

	if raw.SessionTTL != "" {
		ttl, err := time.ParseDuration(raw.SessionTTL)
		if err != nil {
			return fmt.Errorf("parsing sessionTtl: %w", err)
		}
		a.SessionTTL = ttl
	}

	if raw.StateTTL != "" {
		ttl, err := time.ParseDuration(raw.StateTTL)
		if err != nil {
			return fmt.Errorf("parsing stateTtl: %w", err)
		}
		a.StateTTL = ttl
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for ImpactConfig
func (i *ImpactConfig) UnmarshalJSON(data []byte) error {
	type rawImpact struct {
		BaseURL      json.RawMessage `json:"baseURL"`
		ServiceToken json.RawMessage `json:"serviceToken"`
	}

	var raw rawImpact
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if raw.BaseURL != nil {
		value, err := ParseConfigValue(raw.BaseURL)
		if err != nil {
			return fmt.Errorf("parsing baseURL: %w", err)
		}
		i.BaseURL = value
	}

	if raw.ServiceToken != nil {
		value, err := ParseConfigValue(raw.ServiceToken)
		if err != nil {
			return fmt.Errorf("parsing serviceToken: %w", err)
		}
		i.ServiceToken = Secret(value)
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for ResumeConfig
func (r *ResumeConfig) UnmarshalJSON(data []byte) error {
	type rawResume struct {
		Storage             StorageKind     `json:"storage"`
		RedisAddr           string          `json:"redisAddr,omitempty"`
		RedisPassword       json.RawMessage `json:"redisPassword,omitempty"`
		RedisDB             int             `json:"redisDb,omitempty"`
		GCPProject          string          `json:"gcpProject,omitempty"`
		FirestoreDatabase   string          `json:"firestoreDatabase,omitempty"`
		FirestoreCollection string          `json:"firestoreCollection,omitempty"`
		DefaultPath         string          `json:"defaultPath"`
		PendingTTL          string          `json:"pendingTtl"`
		CleanupInterval     string          `json:"cleanupInterval"`
	}

	var raw rawResume
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Storage = raw.Storage
	r.RedisAddr = raw.RedisAddr
	r.RedisDB = raw.RedisDB
	r.GCPProject = raw.GCPProject
	r.FirestoreDatabase = raw.FirestoreDatabase
	r.FirestoreCollection = raw.FirestoreCollection
	r.DefaultPath = raw.DefaultPath

	if raw.RedisPassword != nil {
		value, err := ParseConfigValue(raw.RedisPassword)
		if err != nil {
			return fmt.Errorf("parsing redisPassword: %w", err)
		}
		r.RedisPassword = Secret(value)
	}

	if raw.PendingTTL != "" {
		ttl, err := time.ParseDuration(raw.PendingTTL)
		if err != nil {
			return fmt.Errorf("parsing pendingTtl: %w", err)
		}
		r.PendingTTL = ttl
	}

	if raw.CleanupInterval != "" {
		interval, err := time.ParseDuration(raw.CleanupInterval)
		if err != nil {
			return fmt.Errorf("parsing cleanupInterval: %w", err)
		}
		r.CleanupInterval = interval
	}

	return nil
}

// UnmarshalJSON implements custom unmarshaling for OpsConfig.
// The password is resolved and bcrypt-hashed at load time so the
// plaintext never sits in the config struct.
func (o *OpsConfig) UnmarshalJSON(data []byte) error {
	type rawOps OpsConfig
	var raw rawOps

	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	o.Username = raw.Username
	o.PasswordRaw = raw.PasswordRaw

	if o.PasswordRaw != nil {
		value, err := ParseConfigValue(o.PasswordRaw)
		if err != nil {
			return fmt.Errorf("parsing password: %w", err)
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(value), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		o.HashedPassword = Secret(hashed)
	}

	return nil
}
