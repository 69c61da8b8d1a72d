package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process-wide configuration: loaded once at startup, immutable
// afterwards, and passed explicitly to every component instead of being read
// from the environment inside handlers.
type Config struct {
	HTTPAddr   string
	AppBaseURL string

	DBDriver    string // "postgres" or "sqlite"
	DBDSN       string
	AutoMigrate bool

	JWTSecret  []byte
	BcryptCost int

	AccessTokenTTL     time.Duration
	RefreshTTLRemember time.Duration
	RefreshTTLSession  time.Duration

	TwoFactorTTL         time.Duration
	TwoFactorMaxAttempts int

	EmailVerificationTTL     time.Duration
	ResetTTL                 time.Duration
	RequireEmailVerification bool

	AllowedOrigins []string
	CookieSecure   bool

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

func loadConfig() Config {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-insecure-secret-change" // development fallback
	}
	baseURL := strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:8081"), "/")
	return Config{
		HTTPAddr:   getEnv("HTTP_ADDR", ":8081"),
		AppBaseURL: baseURL,

		DBDriver:    getEnv("DB_DRIVER", "postgres"),
		DBDSN:       os.Getenv("DB_DSN"),
		AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),

		JWTSecret:  []byte(secret),
		BcryptCost: getEnvInt("BCRYPT_COST", 0),

		AccessTokenTTL:     time.Duration(getEnvInt("ACCESS_TOKEN_TTL_MIN", 30)) * time.Minute,
		RefreshTTLRemember: time.Duration(getEnvInt("REFRESH_TTL_DAYS_REMEMBER", 30)) * 24 * time.Hour,
		RefreshTTLSession:  time.Duration(getEnvInt("REFRESH_TTL_DAYS_SESSION", 1)) * 24 * time.Hour,

		TwoFactorTTL:         time.Duration(getEnvInt("TWO_FACTOR_TTL_MIN", 10)) * time.Minute,
		TwoFactorMaxAttempts: getEnvInt("TWO_FACTOR_MAX_ATTEMPTS", 5),

		EmailVerificationTTL:     time.Duration(getEnvInt("EMAIL_VERIFICATION_TTL_MIN", 60)) * time.Minute,
		ResetTTL:                 time.Duration(getEnvInt("RESET_TTL_MIN", 30)) * time.Minute,
		RequireEmailVerification: getEnvBool("REQUIRE_EMAIL_VERIFICATION", true),

		AllowedOrigins: getEnvSlice("ALLOWED_ORIGINS", nil),
		// TLS usually terminates in front of the process, so the direct
		// connection says nothing about what the browser sees.
		CookieSecure: getEnvBool("COOKIE_SECURE", strings.HasPrefix(baseURL, "https://")),

		GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		GoogleRedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     getEnvInt("SMTP_PORT", 465),
		SMTPUsername: os.Getenv("SMTP_USERNAME"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPFrom:     getEnv("SMTP_FROM", "no-reply@kovoy.app"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return fallback
}
