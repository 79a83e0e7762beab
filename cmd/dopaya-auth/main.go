package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/Dopaya1/dopaya-app-sub001/internal"
	"github.com/Dopaya1/dopaya-app-sub001/internal/config"
	"github.com/Dopaya1/dopaya-app-sub001/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": "v1",
		"server": map[string]any{
			"baseURL": "https://dopaya.org",
			"addr":    ":8080",
			"name":    "dopaya-auth",
		},
		"auth": map[string]any{
			"apiUrl":        "https://auth.dopaya.org/auth/v1",
			"apiKey":        map[string]string{"$env": "AUTH_API_KEY"},
			"jwtSecret":     map[string]string{"$env": "AUTH_JWT_SECRET"},
			"encryptionKey": map[string]string{"$env": "SESSION_ENCRYPTION_KEY"},
			"sessionTtl":    "24h",
			"stateTtl":      "10m",
			"provider": map[string]any{
				"kind":         "google",
				"clientId":     map[string]string{"$env": "GOOGLE_CLIENT_ID"},
				"clientSecret": map[string]string{"$env": "GOOGLE_CLIENT_SECRET"},
				"redirectUri":  "https://dopaya.org/auth/callback",
			},
		},
		"impact": map[string]any{
			"baseURL":      "https://api.dopaya.org",
			"serviceToken": map[string]string{"$env": "IMPACT_SERVICE_TOKEN"},
		},
		"resume": map[string]any{
			"storage":         "memory",
			"defaultPath":     "/dashboard",
			"pendingTtl":      "1h",
			"cleanupInterval": "5m",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	flag.Parse()

	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	if *validate {
		fmt.Printf("Config OK: %s\n", *conf)
		return
	}

	log.LogInfoWithFields("main", "Starting dopaya-auth", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	app, err := internal.NewApp(context.Background(), cfg)
	if err != nil {
		log.LogError("Failed to build application: %v", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		log.LogError("Application error: %v", err)
		os.Exit(1)
	}
}
