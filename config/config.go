package config

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server       Server
	Database     Database
	Session      Session
	Media        Media
	Auth         Auth
	GeminiApiKey string
}

type Server struct {
	Port string
}

type Database struct {
	Driver   string // "postgres" (default) or "memory" for local development
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

type Session struct {
	ConnectTimeout   time.Duration
	GracePeriod      time.Duration
	RequiredChecks   []string
	SubmitRetries    int
	SubmitBackoff    time.Duration
	AttemptRetention time.Duration // how long finished attempts stay readable
}

type Media struct {
	Endpoint string // websocket URL of the media gateway
}

type Auth struct {
	TokenSecret string
	TokenTTL    time.Duration
}

func NewConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Warn().Err(err).Msg("Error reading config file")
	}

	viper.SetDefault("DATABASE_DRIVER", "postgres")
	viper.SetDefault("SESSION_CONNECT_TIMEOUT", "15s")
	viper.SetDefault("SESSION_GRACE_PERIOD", "30s")
	viper.SetDefault("SESSION_REQUIRED_CHECKS", []string{"microphone", "speaker", "network"})
	viper.SetDefault("SESSION_SUBMIT_RETRIES", 3)
	viper.SetDefault("SESSION_SUBMIT_BACKOFF", "500ms")
	viper.SetDefault("SESSION_ATTEMPT_RETENTION", "5m")
	viper.SetDefault("AUTH_TOKEN_TTL", "10m")

	var config Config

	config.Server.Port = viper.GetString("SERVER_PORT")
	config.Database.Driver = viper.GetString("DATABASE_DRIVER")
	config.Database.Host = viper.GetString("DATABASE_HOST")
	config.Database.Port = viper.GetString("DATABASE_PORT")
	config.Database.User = viper.GetString("DATABASE_USER")
	config.Database.Password = viper.GetString("DATABASE_PASSWORD")
	config.Database.Name = viper.GetString("DATABASE_NAME")

	config.Session.ConnectTimeout = viper.GetDuration("SESSION_CONNECT_TIMEOUT")
	config.Session.GracePeriod = viper.GetDuration("SESSION_GRACE_PERIOD")
	config.Session.RequiredChecks = viper.GetStringSlice("SESSION_REQUIRED_CHECKS")
	config.Session.SubmitRetries = viper.GetInt("SESSION_SUBMIT_RETRIES")
	config.Session.SubmitBackoff = viper.GetDuration("SESSION_SUBMIT_BACKOFF")
	config.Session.AttemptRetention = viper.GetDuration("SESSION_ATTEMPT_RETENTION")

	config.Media.Endpoint = viper.GetString("MEDIA_ENDPOINT")

	config.Auth.TokenSecret = viper.GetString("AUTH_TOKEN_SECRET")
	config.Auth.TokenTTL = viper.GetDuration("AUTH_TOKEN_TTL")

	config.GeminiApiKey = viper.GetString("GEMINI_API_KEY")

	log.Info().Str("port", config.Server.Port).Str("dbDriver", config.Database.Driver).Msg("Config loaded")
	return &config, nil
}
