package utils

import (
	"os"
	"strconv"
	"time"
)

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration

	// bcrypt hash of the single operator password; empty disables the
	// admin surface entirely.
	AdminUser         string
	AdminPasswordHash string
}

func LoadAuthConfig() AuthConfig {
	secret := os.Getenv("PRICEWATCH_JWT_SECRET")
	if secret == "" {
		// dev default (change for demo / production)
		secret = "dev-secret-change-me"
	}

	issuer := os.Getenv("PRICEWATCH_JWT_ISSUER")
	if issuer == "" {
		issuer = "pricewatch"
	}

	user := os.Getenv("PRICEWATCH_ADMIN_USER")
	if user == "" {
		user = "admin"
	}

	dur := 24 * time.Hour
	if ttl := os.Getenv("PRICEWATCH_JWT_TTL_HOURS"); ttl != "" {
		if h, err := strconv.Atoi(ttl); err == nil && h > 0 {
			dur = time.Duration(h) * time.Hour
		}
	}

	return AuthConfig{
		JWTSecret:         secret,
		JWTIssuer:         issuer,
		JWTDuration:       dur,
		AdminUser:         user,
		AdminPasswordHash: os.Getenv("PRICEWATCH_ADMIN_PASSWORD_HASH"),
	}
}
