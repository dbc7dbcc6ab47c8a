package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"
)

type ProjectRepository interface {
	// FindByIDs returns the projects among ids that exist, disabled or not.
	FindByIDs(ctx context.Context, q DBTX, ids []model.ProjectID) ([]model.Project, error)
	FindByID(ctx context.Context, id model.ProjectID) (*model.Project, error)
	List(ctx context.Context, filter model.ProjectFilter) ([]model.Project, error)
}

type pgProjectRepository struct {
	db *sql.DB
}

func NewPgProjectRepository(db *sql.DB) ProjectRepository {
	return &pgProjectRepository{db: db}
}

const projectColumns = `id, created_at, disabled_at, name`

func (r *pgProjectRepository) FindByIDs(ctx context.Context, q DBTX, ids []model.ProjectID) ([]model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = ANY($1) ORDER BY id`
	rows, err := q.QueryContext(ctx, query, model.RawIDs(ids))
	if err != nil {
		return nil, fmt.Errorf("pgProjectRepository.FindByIDs: %w", err)
	}
	projects, err := collect(rows, scanProject)
	if err != nil {
		return nil, fmt.Errorf("pgProjectRepository.FindByIDs: %w", err)
	}
	return projects, nil
}

func (r *pgProjectRepository) FindByID(ctx context.Context, id model.ProjectID) (*model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`
	project, err := scanProject(r.db.QueryRowContext(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgProjectRepository.FindByID: %w", err)
	}
	return &project, nil
}

func (r *pgProjectRepository) List(ctx context.Context, filter model.ProjectFilter) ([]model.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects
	          WHERE ($1::boolean IS NULL OR (disabled_at IS NOT NULL) = $1)
	          ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, nullableBool(filter.Disabled))
	if err != nil {
		return nil, fmt.Errorf("pgProjectRepository.List: %w", err)
	}
	projects, err := collect(rows, scanProject)
	if err != nil {
		return nil, fmt.Errorf("pgProjectRepository.List: %w", err)
	}
	return projects, nil
}

func scanProject(row rowScanner) (model.Project, error) {
	var p model.Project
	err := row.Scan(&p.ID, &p.CreatedAt, &p.DisabledAt, &p.Name)
	return p, err
}
