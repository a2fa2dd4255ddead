package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/Skotchmaster/therapy_shop/pkg/config"
)

type ServiceConfig struct {
	config.Config

	CORSOrigins  []string
	CookieSecure bool
	TrustProxy   bool
}

// Load reads envFile if it exists, then the process environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (ServiceConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("warning: could not load %s: %v", envFile, err)
		}
	}

	cfg := ServiceConfig{
		Config:       config.Load(),
		CORSOrigins:  config.CSV(config.EnvDefault("CORS_ORIGINS", "*")),
		CookieSecure: strings.EqualFold(os.Getenv("COOKIE_SECURE"), "true"),
		TrustProxy:   strings.EqualFold(os.Getenv("TRUST_PROXY"), "true"),
	}
	if err := cfg.Validate(); err != nil {
		return ServiceConfig{}, err
	}
	return cfg, nil
}
