package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/seednote/seed-worker/internal/failure"
	"github.com/seednote/seed-worker/internal/store/model"
	"gorm.io/gorm"
)

// SeedStore implements Seed on top of gorm.
type SeedStore struct {
	db      *gorm.DB
	table   string
	timeout time.Duration
}

// Make sure we conform to Seed interface
var _ Seed = (*SeedStore)(nil)

func NewSeedStore(db *gorm.DB, table string) *SeedStore {
	if table == "" {
		table = model.Seed{}.TableName()
	}
	return &SeedStore{db: db, table: table}
}

func (s *SeedStore) FetchPending(ctx context.Context) (*model.Seed, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var seeds []model.Seed
	result := s.seeds(ctx).
		Where("status = ?", string(model.SeedStatusPending)).
		Order("created_at").
		Limit(1).
		Find(&seeds)
	if result.Error != nil {
		return nil, failure.NewErrTransport("fetch pending seed", errors.Wrap(result.Error, "querying seeds"))
	}
	if len(seeds) == 0 {
		return nil, nil
	}
	return &seeds[0], nil
}

func (s *SeedStore) Claim(ctx context.Context, id string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result := s.seeds(ctx).
		Where("id = ? AND status = ?", id, string(model.SeedStatusPending)).
		Update("status", string(model.SeedStatusProcessing))
	if result.Error != nil {
		return false, failure.NewErrTransport("claim seed", errors.Wrap(result.Error, "updating seed status"))
	}
	return result.RowsAffected == 1, nil
}

func (s *SeedStore) Update(ctx context.Context, id string, update model.SeedUpdate) error {
	fields := update.Fields()
	if len(fields) == 0 {
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result := s.seeds(ctx).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return failure.NewErrTransport("update seed", errors.Wrap(result.Error, "updating seed"))
	}
	return nil
}

func (s *SeedStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *SeedStore) seeds(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}
