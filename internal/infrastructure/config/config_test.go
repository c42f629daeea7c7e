package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_DefaultValues(t *testing.T) {
	envVars := []string{
		"APP_NAME", "APP_VERSION", "APP_ENV", "APP_PORT",
		"HTTP_READ_TIMEOUT", "HTTP_WRITE_TIMEOUT", "HTTP_IDLE_TIMEOUT", "HTTP_SHUTDOWN_TIMEOUT",
		"LOG_LEVEL", "NFE_CERT_TYPE", "NFE_CERT_A1_PASSWORD",
		"SEFAZ_QUERY_TIMEOUT", "SEFAZ_AUTHORIZE_TIMEOUT", "SEFAZ_MAX_CONCURRENT",
		"NFE_SOFTWARE_VERSION", "NFE_BATCH_WORKERS",
	}
	for _, key := range envVars {
		os.Unsetenv(key)
	}

	// the default credential type requires a file path
	os.Setenv("NFE_CERT_A1_PATH", "/tmp/cert.pfx")
	defer os.Unsetenv("NFE_CERT_A1_PATH")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "ms_nfe_core" {
		t.Errorf("expected default app name 'ms_nfe_core', got %q", cfg.App.Name)
	}
	if cfg.App.Version != "0.1.0" {
		t.Errorf("expected default version '0.1.0', got %q", cfg.App.Version)
	}
	if cfg.App.Environment != "local" {
		t.Errorf("expected default environment 'local', got %q", cfg.App.Environment)
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.HTTP.Port)
	}
	if cfg.Credential.Type != "a1" {
		t.Errorf("expected default credential type 'a1', got %q", cfg.Credential.Type)
	}
	if cfg.Sefaz.QueryTimeout != 30*time.Second {
		t.Errorf("expected default query timeout 30s, got %v", cfg.Sefaz.QueryTimeout)
	}
	if cfg.Sefaz.MaxConcurrent != 20 {
		t.Errorf("expected default max concurrent 20, got %d", cfg.Sefaz.MaxConcurrent)
	}
	if cfg.Emission.BatchWorkers != 4 {
		t.Errorf("expected default batch workers 4, got %d", cfg.Emission.BatchWorkers)
	}
}

func TestLoad_WithCustomValues(t *testing.T) {
	os.Setenv("APP_NAME", "test-app")
	os.Setenv("APP_VERSION", "2.0.0")
	os.Setenv("APP_ENV", "production")
	os.Setenv("APP_PORT", "9090")
	os.Setenv("NFE_CERT_A1_PATH", "/tmp/cert.pfx")
	os.Setenv("SEFAZ_EXTRA_CA_PATH", "/etc/icp-brasil")
	defer func() {
		os.Unsetenv("APP_NAME")
		os.Unsetenv("APP_VERSION")
		os.Unsetenv("APP_ENV")
		os.Unsetenv("APP_PORT")
		os.Unsetenv("NFE_CERT_A1_PATH")
		os.Unsetenv("SEFAZ_EXTRA_CA_PATH")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "test-app" {
		t.Errorf("expected app name 'test-app', got %q", cfg.App.Name)
	}
	if cfg.App.Version != "2.0.0" {
		t.Errorf("expected version '2.0.0', got %q", cfg.App.Version)
	}
	if cfg.App.Environment != "production" {
		t.Errorf("expected environment 'production', got %q", cfg.App.Environment)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Sefaz.ExtraCAPath != "/etc/icp-brasil" {
		t.Errorf("expected extra CA path '/etc/icp-brasil', got %q", cfg.Sefaz.ExtraCAPath)
	}
}

func TestLoad_A1RequiresPath(t *testing.T) {
	os.Setenv("NFE_CERT_TYPE", "a1")
	os.Unsetenv("NFE_CERT_A1_PATH")
	defer os.Unsetenv("NFE_CERT_TYPE")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when NFE_CERT_TYPE=a1 and NFE_CERT_A1_PATH is missing")
	}
	if err.Error() != "invalid config: NFE_CERT_A1_PATH is required when NFE_CERT_TYPE=a1" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoad_A3RequiresTokenLabel(t *testing.T) {
	os.Setenv("NFE_CERT_TYPE", "a3")
	os.Unsetenv("NFE_CERT_A3_TOKEN_LABEL")
	defer os.Unsetenv("NFE_CERT_TYPE")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when NFE_CERT_TYPE=a3 and NFE_CERT_A3_TOKEN_LABEL is missing")
	}
	if err.Error() != "invalid config: NFE_CERT_A3_TOKEN_LABEL is required when NFE_CERT_TYPE=a3" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestLoad_RejectsUnknownCredentialType(t *testing.T) {
	os.Setenv("NFE_CERT_TYPE", "a4")
	defer os.Unsetenv("NFE_CERT_TYPE")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown credential type")
	}
}

func TestHTTPSettings_Address(t *testing.T) {
	settings := HTTPSettings{Port: 8080}
	if addr := settings.Address(); addr != ":8080" {
		t.Errorf("expected address ':8080', got %q", addr)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	if value := getEnv("TEST_KEY", "default"); value != "test-value" {
		t.Errorf("expected 'test-value', got %q", value)
	}
	if value := getEnv("NON_EXISTENT_KEY", "default-value"); value != "default-value" {
		t.Errorf("expected 'default-value', got %q", value)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback int
		expected int
	}{
		{"valid int", "123", 0, 123},
		{"zero", "0", 999, 0},
		{"negative", "-10", 0, -10},
		{"invalid value", "not-a-number", 42, 42},
		{"missing key", "", 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_INT", tt.envValue)
				defer os.Unsetenv("TEST_INT")
			} else {
				os.Unsetenv("TEST_INT")
			}

			if result := getEnvAsInt("TEST_INT", tt.fallback); result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		fallback time.Duration
		expected time.Duration
	}{
		{"valid duration", "10s", 0, 10 * time.Second},
		{"minutes", "5m", 0, 5 * time.Minute},
		{"hours", "2h", 0, 2 * time.Hour},
		{"invalid value", "not-a-duration", 30 * time.Second, 30 * time.Second},
		{"missing key", "", 30 * time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv("TEST_DURATION", tt.envValue)
				defer os.Unsetenv("TEST_DURATION")
			} else {
				os.Unsetenv("TEST_DURATION")
			}

			if result := getEnvAsDuration("TEST_DURATION", tt.fallback); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}
