package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"
)

type UserRepository interface {
	Create(ctx context.Context, name string) (model.UserID, error)
	FindByID(ctx context.Context, id model.UserID) (*model.User, error)
	List(ctx context.Context, filter model.UserFilter) ([]model.User, error)
}

type pgUserRepository struct {
	db *sql.DB
}

func NewPgUserRepository(db *sql.DB) UserRepository {
	return &pgUserRepository{db: db}
}

const userColumns = `id, created_at, disabled_at, name`

func (r *pgUserRepository) Create(ctx context.Context, name string) (model.UserID, error) {
	query := `INSERT INTO users (name) VALUES ($1) RETURNING id`
	var id model.UserID
	err := r.db.QueryRowContext(ctx, query, name).Scan(&id)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return 0, common.ErrUserExists
		}
		return 0, fmt.Errorf("pgUserRepository.Create: %w", err)
	}
	return id, nil
}

func (r *pgUserRepository) FindByID(ctx context.Context, id model.UserID) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgUserRepository.FindByID: %w", err)
	}
	return &user, nil
}

func (r *pgUserRepository) List(ctx context.Context, filter model.UserFilter) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
	          WHERE ($1::boolean IS NULL OR (disabled_at IS NOT NULL) = $1)
	          ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, nullableBool(filter.Disabled))
	if err != nil {
		return nil, fmt.Errorf("pgUserRepository.List: %w", err)
	}
	users, err := collect(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("pgUserRepository.List: %w", err)
	}
	return users, nil
}

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.DisabledAt, &u.Name)
	return u, err
}
