package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

var bashStyleRegex = regexp.MustCompile(`\$\{?([A-Z_][A-Z0-9_]*)\}?`)

// ValidationResult holds validation errors and warnings
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// ValidationError represents a validation issue
type ValidationError struct {
	Path    string
	Message string
}

// IsValid returns true if there are no errors
func (v *ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

func (v *ValidationResult) addError(path, format string, args ...any) {
	v.Errors = append(v.Errors, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *ValidationResult) addWarning(path, format string, args ...any) {
	v.Warnings = append(v.Warnings, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// ValidateFile validates a config file structure without requiring env vars
func ValidateFile(path string) (*ValidationResult, error) {
	result := &ValidationResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		result.addError("", "invalid JSON: %v", err)
		return result, nil
	}

	checkBashStyleSyntax(rawConfig, "", result)

	version, ok := rawConfig["version"].(string)
	if !ok {
		result.addError("version", "version field is required. Hint: Add \"version\": %q", Version)
	} else if !strings.HasPrefix(version, Version) {
		result.addError("version", "unsupported version '%s' - use '%s' or '%s-<variant>'", version, Version, Version)
	}

	validateServerStructure(rawConfig, result)
	validateProviderStructure(rawConfig, result)
	validateSessionStructure(rawConfig, result)

	return result, nil
}

func validateServerStructure(rawConfig map[string]any, result *ValidationResult) {
	server, ok := rawConfig["server"].(map[string]any)
	if !ok {
		result.addError("server", "server field is required and must be an object")
		return
	}
	if _, ok := server["baseURL"]; !ok {
		result.addError("server.baseURL", "baseURL is required. Example: \"https://store.example.com\"")
	}
	if rl, ok := server["rateLimit"].(map[string]any); ok {
		if rps, ok := rl["requestsPerSecond"].(float64); !ok || rps <= 0 {
			result.addError("server.rateLimit.requestsPerSecond", "requestsPerSecond must be a positive number")
		}
	}
	if proxies, ok := server["trustedProxies"].([]any); ok {
		for i, proxy := range proxies {
			if s, ok := proxy.(string); !ok || !validProxyAddr(s) {
				result.addError(fmt.Sprintf("server.trustedProxies[%d]", i), "'%v' is not an IP address or CIDR range. Example: \"10.0.0.0/8\"", proxy)
			}
		}
	}
}

func validateProviderStructure(rawConfig map[string]any, result *ValidationResult) {
	provider, ok := rawConfig["provider"].(map[string]any)
	if !ok {
		result.addError("provider", "provider field is required and must be an object")
		return
	}

	for _, field := range []string{"shopId", "clientId"} {
		if _, ok := provider[field]; !ok {
			result.addError("provider."+field, "%s is required. Hint: use {\"$env\": \"VAR_NAME\"} to keep it out of the file", field)
		}
	}

	if secret, ok := provider["clientSecret"]; ok {
		if err := validateEnvVarReference(secret, "clientSecret", "provider.clientSecret"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	} else {
		result.addError("provider.clientSecret", "clientSecret is required")
	}

	if flow, ok := provider["flow"].(string); ok && flow != "token_exchange" && flow != "pkce" {
		result.addError("provider.flow", "invalid flow '%s' - must be 'token_exchange' or 'pkce'", flow)
	}
	if timeout, ok := provider["timeout"].(string); ok {
		if _, err := time.ParseDuration(timeout); err != nil {
			result.addError("provider.timeout", "invalid duration '%s'. Example: \"10s\"", timeout)
		}
	}
	if verify, _ := provider["verifyIdToken"].(bool); !verify {
		result.addWarning("provider.verifyIdToken", "ID token verification is off. Set \"verifyIdToken\": true to check the ID token signature and nonce")
	}
}

func validateSessionStructure(rawConfig map[string]any, result *ValidationResult) {
	session, ok := rawConfig["session"].(map[string]any)
	if !ok {
		result.addError("session", "session field is required and must be an object")
		return
	}

	if secret, ok := session["secret"]; ok {
		if err := validateEnvVarReference(secret, "secret", "session.secret"); err != nil {
			result.Errors = append(result.Errors, *err)
		}
	} else {
		result.addError("session.secret", "secret is required. Generate with: openssl rand -base64 32")
	}

	storage, _ := session["storage"].(string)
	switch storage {
	case "", "memory":
		result.addWarning("session.storage", "memory storage does not survive restarts. Use redis or firestore in production")
	case "redis":
		redis, ok := session["redis"].(map[string]any)
		if !ok {
			result.addError("session.redis", "redis is required when using redis storage")
		} else if _, ok := redis["address"]; !ok {
			result.addError("session.redis.address", "address is required. Example: \"localhost:6379\"")
		}
		if redis != nil {
			if password, ok := redis["password"]; ok {
				if err := validateEnvVarReference(password, "password", "session.redis.password"); err != nil {
					result.Errors = append(result.Errors, *err)
				}
			}
		}
	case "firestore":
		firestore, ok := session["firestore"].(map[string]any)
		if !ok {
			result.addError("session.firestore", "firestore is required when using firestore storage")
		} else if _, ok := firestore["project"]; !ok {
			result.addError("session.firestore.project", "project is required when using firestore storage")
		}
	default:
		result.addError("session.storage", "invalid storage '%s' - must be 'memory', 'redis' or 'firestore'", storage)
	}

	if interval, ok := session["cleanupInterval"].(string); ok {
		if d, err := time.ParseDuration(interval); err != nil {
			result.addError("session.cleanupInterval", "invalid duration '%s'. Example: \"5m\"", interval)
		} else if d > time.Hour {
			result.addWarning("session.cleanupInterval",
				"cleanupInterval (%s) is longer than an hour. Expired entries will remain in storage until cleanup runs.", interval)
		}
	}
}

// validateEnvVarReference validates that a field uses proper env var reference format
func validateEnvVarReference(value any, fieldName, path string) *ValidationError {
	switch v := value.(type) {
	case string:
		if matches := bashStyleRegex.FindStringSubmatch(v); len(matches) > 1 {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion and ensures security", v, matches[1]),
			}
		}
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must use environment variable reference {\"$env\": \"YOUR_ENV_VAR\"} instead of plain text. Hint: This prevents secrets from being stored in config files", fieldName),
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; !hasEnv {
			return &ValidationError{
				Path:    path,
				Message: fmt.Sprintf("%s must use {\"$env\": \"YOUR_ENV_VAR\"} format, not %v", fieldName, v),
			}
		}
		return nil
	default:
		return &ValidationError{
			Path:    path,
			Message: fmt.Sprintf("%s must be an environment variable reference {\"$env\": \"YOUR_ENV_VAR\"}, not %T", fieldName, value),
		}
	}
}

// checkBashStyleSyntax recursively checks for bash-style env var syntax
func checkBashStyleSyntax(value any, path string, result *ValidationResult) {
	switch v := value.(type) {
	case string:
		for _, match := range bashStyleRegex.FindAllString(v, -1) {
			varName := strings.Trim(match, "${}")
			result.addWarning(path, "found bash-style syntax '%s' - use {\"$env\": \"%s\"} instead. Hint: JSON syntax prevents accidental shell expansion in scripts/CI and ensures unambiguous parsing", match, varName)
		}
	case map[string]any:
		if _, hasEnv := v["$env"]; hasEnv {
			return
		}
		for key, val := range v {
			newPath := key
			if path != "" {
				newPath = path + "." + key
			}
			checkBashStyleSyntax(val, newPath, result)
		}
	case []any:
		for i, item := range v {
			checkBashStyleSyntax(item, fmt.Sprintf("%s[%d]", path, i), result)
		}
	}
}
