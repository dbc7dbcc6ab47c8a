package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"
)

type PlatformRepository interface {
	FindByID(ctx context.Context, id model.PlatformID) (*model.Platform, error)
	List(ctx context.Context, filter model.PlatformFilter) ([]model.Platform, error)
}

type pgPlatformRepository struct {
	db *sql.DB
}

func NewPgPlatformRepository(db *sql.DB) PlatformRepository {
	return &pgPlatformRepository{db: db}
}

func (r *pgPlatformRepository) FindByID(ctx context.Context, id model.PlatformID) (*model.Platform, error) {
	query := `SELECT id, created_at, name FROM platforms WHERE id = $1`
	platform, err := scanPlatform(r.db.QueryRowContext(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgPlatformRepository.FindByID: %w", err)
	}
	return &platform, nil
}

func (r *pgPlatformRepository) List(ctx context.Context, _ model.PlatformFilter) ([]model.Platform, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, created_at, name FROM platforms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("pgPlatformRepository.List: %w", err)
	}
	platforms, err := collect(rows, scanPlatform)
	if err != nil {
		return nil, fmt.Errorf("pgPlatformRepository.List: %w", err)
	}
	return platforms, nil
}

func scanPlatform(row rowScanner) (model.Platform, error) {
	var p model.Platform
	err := row.Scan(&p.ID, &p.CreatedAt, &p.Name)
	return p, err
}
