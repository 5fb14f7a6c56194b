package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgellow/customer-auth/internal"
	"github.com/dgellow/customer-auth/internal/config"
	"github.com/dgellow/customer-auth/internal/log"
	"github.com/dgellow/customer-auth/internal/tracing"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.Version,
		"server": map[string]any{
			"baseURL":        "https://shop.yourcompany.com",
			"addr":           ":8080",
			"name":           "customer-auth",
			"allowedOrigins": []string{"https://shop.yourcompany.com"},
			"rateLimit": map[string]any{
				"requestsPerSecond": 5,
				"burst":             20,
			},
			"trustedProxies": []string{},
		},
		"provider": map[string]any{
			"shopId":        map[string]string{"$env": "SHOPIFY_CUSTOMER_SHOP_ID"},
			"clientId":      map[string]string{"$env": "SHOPIFY_CUSTOMER_ACCOUNT_CLIENT_ID"},
			"clientSecret":  map[string]string{"$env": "SHOPIFY_CUSTOMER_ACCOUNT_CLIENT_SECRET"},
			"flow":          "token_exchange",
			"timeout":       "10s",
			"verifyIdToken": true,
		},
		"session": map[string]any{
			"secret":          map[string]string{"$env": "CUSTOMER_AUTH_SESSION_SECRET"},
			"storage":         "memory",
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

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Printf("  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Printf("  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Printf("  - %s\n", warn.Message)
			}
		}
	}

	fmt.Println()
	switch {
	case len(result.Errors) > 0:
		fmt.Println("Result: FAIL")
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	case len(result.Warnings) > 0:
		fmt.Println("Result: PASS (with warnings)")
	default:
		fmt.Println("Result: PASS")
	}
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

func main() {
	conf := flag.String("config", "", "path to config file (environment variables are used when omitted)")
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

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting customer-auth", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Server.Name, BuildVersion)
	if err != nil {
		log.LogError("Failed to setup tracing: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.LogWarnWithFields("main", "Failed to flush traces", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	app, err := internal.NewCustomerAuth(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create customer auth: %v", err)
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.LogError("Server stopped: %v", err)
		stop()
		os.Exit(1)
	}
}
