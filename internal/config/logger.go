package config

import (
	"strings"

	"github.com/rs/zerolog"
)

// SetupLogger applies LOG_LEVEL to every package-level zerolog logger.
func SetupLogger(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
