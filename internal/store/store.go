package store

import (
	"context"
	"net/http"
	"time"

	"github.com/seednote/seed-worker/internal/store/model"
	"github.com/seednote/seed-worker/pkg/migrations"
	"gorm.io/gorm"
)

// Seed is the record store the worker pulls work from.
//
// FetchPending returns nil and no error when no pending seed is available.
// Claim moves a seed from pending to processing and reports false when the
// seed was no longer pending. Update merges the non-empty fields of the update
// into the record.
type Seed interface {
	FetchPending(ctx context.Context) (*model.Seed, error)
	Claim(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, id string, update model.SeedUpdate) error
}

type Store interface {
	Seed() Seed
	// InitialMigration creates the seeds table when it is missing. It is a
	// no-op for stores that do not own their schema.
	InitialMigration() error
	Close() error
}

type DataStore struct {
	seed    Seed
	migrate func() error
	close   func() error
}

// NewStore returns a store backed by the database behind db. timeout bounds
// every query, zero means no bound.
func NewStore(db *gorm.DB, table string, timeout time.Duration) Store {
	seeds := NewSeedStore(db, table)
	seeds.timeout = timeout
	return &DataStore{
		seed: seeds,
		migrate: func() error {
			if err := migrations.MigrateStore(db); err != nil {
				return err
			}
			if seeds.table != (model.Seed{}).TableName() {
				// migrations only know the default table
				return db.Table(seeds.table).AutoMigrate(&model.Seed{})
			}
			return nil
		},
		close: func() error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}
}

// NewRestStore returns a store talking to a PostgREST endpoint.
func NewRestStore(cfg RestConfig, httpClient *http.Client) Store {
	return &DataStore{
		seed:    NewRestSeedStore(cfg, httpClient),
		migrate: func() error { return nil },
		close: func() error {
			httpClient.CloseIdleConnections()
			return nil
		},
	}
}

func (s *DataStore) Seed() Seed {
	return s.seed
}

func (s *DataStore) InitialMigration() error {
	return s.migrate()
}

func (s *DataStore) Close() error {
	return s.close()
}
