// Package config loads typed configuration from environment variables using
// github.com/caarlos0/env/v11, with optional dotenv files read through github.com/joho/godotenv.
package config
