package database

import (
	"fmt"

	"github.com/lshigami/Pangolin/config"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewDatabase opens the postgres connection used by the gorm-backed stores.
// Returns nil when the memory driver is selected so fx can still wire the app
// without a running database.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("DATABASE_DRIVER=memory: skipping postgres connection, histories are not durable")
		return nil, nil
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	log.Info().Str("host", cfg.Database.Host).Str("dbname", cfg.Database.Name).Msg("Database connected")
	return db, nil
}
