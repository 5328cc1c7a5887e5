package db

import (
	"fmt"
	"log"

	"daon/internal/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Store struct {
	DB *gorm.DB
}

func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		log.Printf("POSTGRES_DSN not set; starting in no-db mode.")
		return &Store{DB: nil}, nil
	}

	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &Store{DB: gdb}, nil
}

// Migrate creates or updates the schema. Called once at startup; a
// no-db store skips it.
func (s *Store) Migrate() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.AutoMigrate(
		&ContentRecordModel{},
		&TransferEntryModel{},
		&DetectionEventModel{},
		&WebhookModel{},
		&WebhookDeliveryModel{},
	)
}

func (s *Store) Available() bool {
	return s != nil && s.DB != nil
}
