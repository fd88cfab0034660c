package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

const (
	DefaultFreeCreditLimit    = 10
	DefaultLowCreditThreshold = 2
	DefaultChatTimeout        = 30 * time.Second
	DefaultAnalysisTimeout    = 45 * time.Second
)

type Config struct {
	Logs        LogConfig
	DB          PostgresConfig
	Auth        AuthConfig
	LLMProvider string
	OpenAI      OpenAIConfig
	Gemini      GeminiConfig
	Stripe      StripeConfig
	Cloudinary  CloudinaryConfig
	Credits     CreditConfig
	HTTP        HTTPConfig
}

type LogConfig struct {
	Style string
	Level string
}

type PostgresConfig struct {
	DatabaseURL string
	Username    string
	Password    string
	URL         string
	Port        string
	Name        string
	SSLMode     string
}

type AuthConfig struct {
	Issuer    string
	Audience  string
	JWKSURL   string
	JWTSecret string
	Disabled  bool
}

type OpenAIConfig struct {
	APIKey      string
	Model       string
	VisionModel string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type StripeConfig struct {
	SecretKey      string
	WebhookSecret  string
	PriceIDPremium string
	SiteURL        string
}

type CloudinaryConfig struct {
	URL string
}

type CreditConfig struct {
	FreeLimit    int
	LowThreshold int
}

type HTTPConfig struct {
	Addr            string
	CORSOrigins     []string
	ChatTimeout     time.Duration
	AnalysisTimeout time.Duration
}

func LoadConfig() (*Config, error) {
	freeLimit, err := intFromEnv("FREE_CREDIT_LIMIT", DefaultFreeCreditLimit)
	if err != nil {
		return nil, err
	}

	lowThreshold, err := intFromEnv("LOW_CREDIT_THRESHOLD", DefaultLowCreditThreshold)
	if err != nil {
		return nil, err
	}
	if freeLimit <= 0 || lowThreshold < 0 || lowThreshold >= freeLimit {
		return nil, fmt.Errorf("LOW_CREDIT_THRESHOLD (%d) must be below FREE_CREDIT_LIMIT (%d)", lowThreshold, freeLimit)
	}

	chatTimeout, err := durationFromEnv("CHAT_TIMEOUT", DefaultChatTimeout)
	if err != nil {
		return nil, err
	}

	analysisTimeout, err := durationFromEnv("ANALYSIS_TIMEOUT", DefaultAnalysisTimeout)
	if err != nil {
		return nil, err
	}

	authDisabled := false
	if raw := strings.TrimSpace(os.Getenv("AUTH_DISABLED")); raw != "" {
		authDisabled, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("error parsing AUTH_DISABLED: %w", err)
		}
	}

	cfg := &Config{
		LLMProvider: strings.ToLower(envOr("LLM_PROVIDER", "openai")),
		Logs: LogConfig{
			Style: os.Getenv("LOG_STYLE"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		DB: PostgresConfig{
			DatabaseURL: os.Getenv("DATABASE_URL"),
			Username:    os.Getenv("POSTGRES_USER"),
			Password:    os.Getenv("POSTGRES_PWD"),
			URL:         os.Getenv("POSTGRES_URL"),
			Port:        envOr("POSTGRES_PORT", "5432"),
			Name:        envOr("POSTGRES_DB", "postgres"),
			SSLMode:     envOr("POSTGRES_SSLMODE", "require"),
		},
		Auth: AuthConfig{
			Issuer:    issuerFromEnv(),
			Audience:  envOr("AUTH_AUDIENCE", "authenticated"),
			JWKSURL:   os.Getenv("AUTH_JWKS_URL"),
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
			Disabled:  authDisabled,
		},
		OpenAI: OpenAIConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Model:       envOr("OPENAI_MODEL", "gpt-4o-mini"),
			VisionModel: envOr("OPENAI_VISION_MODEL", "gpt-4o"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  envOr("GEMINI_MODEL", "gemini-1.5-flash"),
		},
		Stripe: StripeConfig{
			SecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PriceIDPremium: os.Getenv("STRIPE_PRICE_ID_PREMIUM"),
			SiteURL:        strings.TrimRight(os.Getenv("SITE_URL"), "/"),
		},
		Cloudinary: CloudinaryConfig{
			URL: os.Getenv("CLOUDINARY_URL"),
		},
		Credits: CreditConfig{
			FreeLimit:    freeLimit,
			LowThreshold: lowThreshold,
		},
		HTTP: HTTPConfig{
			Addr:            envOr("HTTP_ADDR", "0.0.0.0:8080"),
			CORSOrigins:     splitList(envOr("CORS_ORIGINS", "*")),
			ChatTimeout:     chatTimeout,
			AnalysisTimeout: analysisTimeout,
		},
	}

	return cfg, nil
}

// DSN prefers DATABASE_URL and falls back to the individual POSTGRES_* parts.
func (p PostgresConfig) DSN() string {
	if p.DatabaseURL != "" {
		return p.DatabaseURL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.Username, p.Password),
		Host:     p.URL + ":" + p.Port,
		Path:     "/" + p.Name,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

// BillingConfigured reports whether checkout and portal sessions can be created.
func (s StripeConfig) BillingConfigured() bool {
	return s.SecretKey != "" && s.PriceIDPremium != "" && s.SiteURL != ""
}

func issuerFromEnv() string {
	if issuer := strings.TrimSpace(os.Getenv("AUTH_ISSUER")); issuer != "" {
		return issuer
	}
	base := strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/")
	if base == "" {
		return ""
	}
	return base + "/auth/v1"
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func intFromEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("error converting string to int: %s: %w", key, err)
	}
	return n, nil
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("error parsing duration: %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
