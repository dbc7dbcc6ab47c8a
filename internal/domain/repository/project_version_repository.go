package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"
)

type ProjectVersionRepository interface {
	FindByID(ctx context.Context, id model.ProjectVersionID) (*model.ProjectVersion, error)
	List(ctx context.Context, filter model.ProjectVersionFilter) ([]model.ProjectVersion, error)
}

type pgProjectVersionRepository struct {
	db *sql.DB
}

func NewPgProjectVersionRepository(db *sql.DB) ProjectVersionRepository {
	return &pgProjectVersionRepository{db: db}
}

const projectVersionColumns = `id, created_at, disabled_at, project_id, platform_id, archive_url`

func (r *pgProjectVersionRepository) FindByID(ctx context.Context, id model.ProjectVersionID) (*model.ProjectVersion, error) {
	query := `SELECT ` + projectVersionColumns + ` FROM project_versions WHERE id = $1`
	version, err := scanProjectVersion(r.db.QueryRowContext(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProjectVersionRepository.FindByID: %w", err)
	}
	return &version, nil
}

func (r *pgProjectVersionRepository) List(ctx context.Context, filter model.ProjectVersionFilter) ([]model.ProjectVersion, error) {
	query := `SELECT ` + projectVersionColumns + ` FROM project_versions
	          WHERE ($1::boolean IS NULL OR (disabled_at IS NOT NULL) = $1)
	            AND ($2::bigint IS NULL OR project_id = $2)
	            AND ($3::bigint IS NULL OR platform_id = $3)
	          ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query,
		nullableBool(filter.Disabled), nullableID(filter.ProjectID), nullableID(filter.PlatformID))
	if err != nil {
		return nil, fmt.Errorf("pgProjectVersionRepository.List: %w", err)
	}
	versions, err := collect(rows, scanProjectVersion)
	if err != nil {
		return nil, fmt.Errorf("pgProjectVersionRepository.List: %w", err)
	}
	return versions, nil
}

func scanProjectVersion(row rowScanner) (model.ProjectVersion, error) {
	var v model.ProjectVersion
	err := row.Scan(&v.ID, &v.CreatedAt, &v.DisabledAt, &v.ProjectID, &v.PlatformID, &v.ArchiveURL)
	return v, err
}
