// Package config assembles server settings from the environment.
//
// A .env file in the working directory is loaded first if present; variables
// already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/balancebuddy/authflow"
	"github.com/balancebuddy/authflow/internal/mailer"
	"github.com/joho/godotenv"
)

const devJWTSecret = "dev_jwt_secret_change_me_0123456789"

type Config struct {
	Env             string
	HTTPAddr        string
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	CORSOrigins     []string
	ShutdownTimeout time.Duration
	// TrustProxyHeaders lets the router read the client address from
	// forwarding headers.
	TrustProxyHeaders bool
	// AuditLogPath, when set, receives audit events as JSON lines in
	// addition to the server log.
	AuditLogPath string

	SMTP mailer.SMTPConfig

	Engine authflow.Config

	// DotEnvLoaded reports whether a .env file was read.
	DotEnvLoaded bool
}

// Development reports whether APP_ENV selects development mode.
func (c Config) Development() bool {
	return c.Env == "development"
}

// SMTPEnabled reports whether outgoing mail is configured. Without it the
// server logs messages instead.
func (c Config) SMTPEnabled() bool {
	return c.SMTP.Host != ""
}

func Load() (Config, error) {
	loaded := godotenv.Load() == nil

	cfg := Config{
		Env:           getEnv("APP_ENV", "production"),
		HTTPAddr:      getEnv("HTTP_ADDR", ":5000"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		AuditLogPath:  getEnv("AUDIT_LOG_PATH", ""),
		DotEnvLoaded:  loaded,
	}

	frontend := strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:3000"), "/")
	cfg.CORSOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS",
		frontend+",http://localhost:3000,http://localhost:5173"))

	var err error
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.TrustProxyHeaders, err = getBool("TRUST_PROXY_HEADERS", false); err != nil {
		return Config{}, err
	}

	port, err := getInt("EMAIL_PORT", 587)
	if err != nil {
		return Config{}, err
	}
	cfg.SMTP = mailer.SMTPConfig{
		Host:     getEnv("EMAIL_HOST", ""),
		Port:     port,
		Username: getEnv("EMAIL_USERNAME", ""),
		Password: getEnv("EMAIL_PASSWORD", ""),
		From:     getEnv("EMAIL_FROM", ""),
		FromName: getEnv("EMAIL_FROM_NAME", ""),
	}

	engine := authflow.DefaultConfig()
	engine.AppName = getEnv("APP_NAME", engine.AppName)
	engine.PasswordReset.LinkBase = frontend + "/reset-password"

	secret := getEnv("JWT_SECRET", "")
	if secret == "" {
		if !cfg.Development() {
			return Config{}, errors.New("config: JWT_SECRET is required outside development")
		}
		secret = devJWTSecret
	}
	engine.JWT.PrivateKey = []byte(secret)

	if engine.Registration.Window, err = getDuration("REGISTRATION_OTP_WINDOW", engine.Registration.Window); err != nil {
		return Config{}, err
	}
	if engine.EmailOTP.Window, err = getDuration("EMAIL_OTP_WINDOW", engine.EmailOTP.Window); err != nil {
		return Config{}, err
	}
	if engine.PasswordReset.SweepInterval, err = getDuration("RESET_SWEEP_INTERVAL", engine.PasswordReset.SweepInterval); err != nil {
		return Config{}, err
	}
	if engine.Audit.Enabled, err = getBool("AUDIT_ENABLED", true); err != nil {
		return Config{}, err
	}

	if err := engine.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.Engine = engine
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}

func splitList(v string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimRight(strings.TrimSpace(part), "/")
		if part == "" {
			continue
		}
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}
