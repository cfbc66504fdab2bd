package config

import "github.com/caarlos0/env/v10"

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort            string `env:"HTTP_PORT" envDefault:"8080"`
	GeminiAPIKey        string `env:"GEMINI_API_KEY,required"`
	GeminiBaseURL       string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	GeminiModel         string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiFallbackModel string `env:"GEMINI_FALLBACK_MODEL" envDefault:"gemini-1.5-flash"`
	DatabaseURL         string `env:"DATABASE_URL"`
	RedisAddr           string `env:"REDIS_ADDR"`
	RedisPassword       string `env:"REDIS_PASSWORD"`
	RedisDB             int    `env:"REDIS_DB" envDefault:"0"`
	MaxConversations    int    `env:"MAX_CONVERSATIONS" envDefault:"50"`
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
