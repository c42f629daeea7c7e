package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig encapsulates all runtime configuration knobs.
type AppConfig struct {
	App        AppSettings
	HTTP       HTTPSettings
	Log        LogSettings
	Database   DatabaseSettings
	Credential CredentialSettings
	Sefaz      SefazSettings
	Emission   EmissionSettings
}

type AppSettings struct {
	Name        string
	Version     string
	Environment string
}

type HTTPSettings struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	// BatchTimeout bounds batch emission requests, which hold the connection
	// while a whole lot is signed and transmitted. Must stay below WriteTimeout.
	BatchTimeout time.Duration
}

type LogSettings struct {
	Level string
}

type DatabaseSettings struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// CredentialSettings selects and configures the signing credential.
// Type "a1" loads a PKCS#12 file; "a3" binds a PKCS#11 token.
type CredentialSettings struct {
	Type         string
	A1Path       string
	A1Password   string
	A3Library    string // empty probes the usual middleware paths
	A3TokenLabel string
	A3PIN        string
}

// SefazSettings tunes the authorizer transport.
type SefazSettings struct {
	// ExtraCAPath points at a PEM file or directory appended to the system
	// trust store, for hosts missing the ICP-Brasil chain.
	ExtraCAPath         string
	QueryTimeout        time.Duration
	AuthorizeTimeout    time.Duration
	MaxConcurrent       int
	BreakerFailures     int
	BreakerCooldown     time.Duration
	ReceiptPollAttempts int
	ReceiptPollInterval time.Duration
}

// EmissionSettings tunes document production.
type EmissionSettings struct {
	SoftwareVersion string // verProc emitted in every document
	BatchWorkers    int
}

// Load resolves the application configuration from environment variables.
// It first attempts to load variables from a .env file if it exists.
// Environment variables set in the system take precedence over .env file values.
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		App: AppSettings{
			Name:        getEnv("APP_NAME", "ms_nfe_core"),
			Version:     getEnv("APP_VERSION", "0.1.0"),
			Environment: getEnv("APP_ENV", "local"),
		},
		HTTP: HTTPSettings{
			Port:            getEnvAsInt("APP_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("HTTP_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvAsDuration("HTTP_WRITE_TIMEOUT", 120*time.Second),
			IdleTimeout:     getEnvAsDuration("HTTP_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 30*time.Second),
			BatchTimeout:    getEnvAsDuration("HTTP_BATCH_TIMEOUT", 110*time.Second),
		},
		Log: LogSettings{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseSettings{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Database:        getEnv("DB_NAME", "ms_nfe_core"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Credential: CredentialSettings{
			Type:         strings.ToLower(getEnv("NFE_CERT_TYPE", "a1")),
			A1Path:       strings.TrimSpace(os.Getenv("NFE_CERT_A1_PATH")),
			A1Password:   os.Getenv("NFE_CERT_A1_PASSWORD"),
			A3Library:    strings.TrimSpace(os.Getenv("NFE_CERT_A3_LIBRARY")),
			A3TokenLabel: strings.TrimSpace(os.Getenv("NFE_CERT_A3_TOKEN_LABEL")),
			A3PIN:        os.Getenv("NFE_CERT_A3_PIN"),
		},
		Sefaz: SefazSettings{
			ExtraCAPath:         strings.TrimSpace(os.Getenv("SEFAZ_EXTRA_CA_PATH")),
			QueryTimeout:        getEnvAsDuration("SEFAZ_QUERY_TIMEOUT", 30*time.Second),
			AuthorizeTimeout:    getEnvAsDuration("SEFAZ_AUTHORIZE_TIMEOUT", 60*time.Second),
			MaxConcurrent:       getEnvAsInt("SEFAZ_MAX_CONCURRENT", 20),
			BreakerFailures:     getEnvAsInt("SEFAZ_BREAKER_FAILURES", 5),
			BreakerCooldown:     getEnvAsDuration("SEFAZ_BREAKER_COOLDOWN", 30*time.Second),
			ReceiptPollAttempts: getEnvAsInt("SEFAZ_RECEIPT_POLL_ATTEMPTS", 5),
			ReceiptPollInterval: getEnvAsDuration("SEFAZ_RECEIPT_POLL_INTERVAL", 2*time.Second),
		},
		Emission: EmissionSettings{
			SoftwareVersion: getEnv("NFE_SOFTWARE_VERSION", "ms_nfe_core-0.1.0"),
			BatchWorkers:    getEnvAsInt("NFE_BATCH_WORKERS", 4),
		},
	}

	switch cfg.Credential.Type {
	case "a1":
		if cfg.Credential.A1Path == "" {
			return cfg, errors.New("invalid config: NFE_CERT_A1_PATH is required when NFE_CERT_TYPE=a1")
		}
	case "a3":
		if cfg.Credential.A3TokenLabel == "" {
			return cfg, errors.New("invalid config: NFE_CERT_A3_TOKEN_LABEL is required when NFE_CERT_TYPE=a3")
		}
	default:
		return cfg, fmt.Errorf("invalid config: NFE_CERT_TYPE must be a1 or a3, got %q", cfg.Credential.Type)
	}

	if cfg.Sefaz.MaxConcurrent <= 0 {
		return cfg, errors.New("invalid config: SEFAZ_MAX_CONCURRENT must be greater than 0")
	}
	if cfg.Emission.BatchWorkers <= 0 {
		return cfg, errors.New("invalid config: NFE_BATCH_WORKERS must be greater than 0")
	}

	return cfg, nil
}

// Address returns the HTTP listen address in host:port form.
func (h HTTPSettings) Address() string {
	return fmt.Sprintf(":%d", h.Port)
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
