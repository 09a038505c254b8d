// Command admin-token prints a bearer token for the administrative routes.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"retail-order-service/internal/api"
	"retail-order-service/internal/config"
)

var logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

func main() {
	name := flag.String("name", "admin", "name embedded in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.JWTSecret == "" {
		logger.Fatal().Msg("JWT_SECRET is not set")
	}
	token, err := api.NewAdminToken(cfg.JWTSecret, *name, *ttl)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to sign token")
	}
	fmt.Println(token)
}
