package config

import (
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads .env.<APP_ENV>.local, .env.local, .env.<APP_ENV> and .env, in that
// priority. Variables already set in the process environment are never overwritten.
// Returns the files actually loaded.
func LoadDotEnv() []string {
	return loadDotEnv(os.Getenv("APP_ENV"))
}

func loadDotEnv(env string) []string {
	var candidates []string
	if env != "" {
		candidates = append(candidates, ".env."+env+".local")
	}
	candidates = append(candidates, ".env.local")
	if env != "" {
		candidates = append(candidates, ".env."+env)
	}
	candidates = append(candidates, ".env")

	var loaded []string
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}
