package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/smallbiznis/integration-hub/internal/domain/integration"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	ServiceName          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	StateTTL             time.Duration
	RequestTimeout       time.Duration
	ShutdownTimeout      time.Duration
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
	Providers            map[integration.Provider]integration.ProviderConfig
}

type providerDefaults struct {
	authURL    string
	tokenURL   string
	apiBaseURL string
	scopes     []string
}

var defaults = map[integration.Provider]providerDefaults{
	integration.ProviderHubSpot: {
		authURL:    "https://app.hubspot.com/oauth/authorize",
		tokenURL:   "https://api.hubspot.com/oauth/v1/token",
		apiBaseURL: "https://api.hubspot.com/crm/v3",
		scopes: []string{
			"crm.objects.contacts.read",
			"crm.objects.companies.read",
			"crm.objects.deals.read",
			"oauth",
		},
	},
	integration.ProviderNotion: {
		authURL:    "https://api.notion.com/v1/oauth/authorize",
		tokenURL:   "https://api.notion.com/v1/oauth/token",
		apiBaseURL: "https://api.notion.com/v1",
	},
	integration.ProviderAirtable: {
		authURL:    "https://airtable.com/oauth2/v1/authorize",
		tokenURL:   "https://airtable.com/oauth2/v1/token",
		apiBaseURL: "https://api.airtable.com/v0",
		scopes: []string{
			"data.records:read",
			"data.records:write",
			"data.recordComments:read",
			"data.recordComments:write",
			"schema.bases:read",
			"schema.bases:write",
		},
	},
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", "8000"),
		ServiceName:          getEnv("SERVICE_NAME", "smallbiznis-integration-hub"),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		StateTTL:             getDuration("STATE_TTL", 10*time.Minute),
		RequestTimeout:       getDuration("PROVIDER_REQUEST_TIMEOUT", 10*time.Second),
		ShutdownTimeout:      getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
		Providers:            make(map[integration.Provider]integration.ProviderConfig),
	}

	if cfg.StateTTL <= 0 {
		return Config{}, fmt.Errorf("STATE_TTL must be positive")
	}

	for _, name := range integration.Providers() {
		provider, err := loadProvider(name, cfg.HTTPPort)
		if err != nil {
			return Config{}, err
		}
		cfg.Providers[name] = provider
	}

	return cfg, nil
}

func loadProvider(name integration.Provider, httpPort string) (integration.ProviderConfig, error) {
	prefix := strings.ToUpper(string(name))
	def := defaults[name]

	clientID := strings.TrimSpace(os.Getenv(prefix + "_CLIENT_ID"))
	if clientID == "" {
		return integration.ProviderConfig{}, fmt.Errorf("%s_CLIENT_ID is required", prefix)
	}
	clientSecret := strings.TrimSpace(os.Getenv(prefix + "_CLIENT_SECRET"))
	if clientSecret == "" {
		return integration.ProviderConfig{}, fmt.Errorf("%s_CLIENT_SECRET is required", prefix)
	}

	defaultRedirect := fmt.Sprintf("http://localhost:%s/integrations/%s/oauth2callback", httpPort, name)

	return integration.ProviderConfig{
		Name:         name,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      getEnv(prefix+"_AUTH_URL", def.authURL),
		TokenURL:     getEnv(prefix+"_TOKEN_URL", def.tokenURL),
		APIBaseURL:   getEnv(prefix+"_API_BASE_URL", def.apiBaseURL),
		RedirectURI:  getEnv(prefix+"_REDIRECT_URI", defaultRedirect),
		Scopes:       getList(prefix+"_SCOPES", def.scopes),
	}, nil
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
