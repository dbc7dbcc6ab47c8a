package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"
)

type ResultRepository interface {
	// Create stores the output of an assignment. A second result for the same
	// assignment fails with common.ErrResultExists.
	Create(ctx context.Context, q DBTX, assignmentID model.AssignmentID, req model.SubmitResultRequest) (model.ResultID, error)
	FindByID(ctx context.Context, id model.ResultID) (*model.Result, error)
	List(ctx context.Context, filter model.ResultFilter) ([]model.Result, error)
}

type pgResultRepository struct {
	db *sql.DB
}

func NewPgResultRepository(db *sql.DB) ResultRepository {
	return &pgResultRepository{db: db}
}

const resultColumns = `id, created_at, assignment_id, stdout, stderr, exit_code`

func (r *pgResultRepository) Create(ctx context.Context, q DBTX, assignmentID model.AssignmentID, req model.SubmitResultRequest) (model.ResultID, error) {
	query := `INSERT INTO results (assignment_id, stdout, stderr, exit_code)
	          VALUES ($1, $2, $3, $4)
	          RETURNING id`
	var exitCode any
	if req.ExitCode != nil {
		exitCode = *req.ExitCode
	}
	var id model.ResultID
	err := q.QueryRowContext(ctx, query, int64(assignmentID), req.Stdout, req.Stderr, exitCode).Scan(&id)
	if err != nil {
		if common.IsUniqueViolation(err) {
			return 0, common.ErrResultExists
		}
		return 0, fmt.Errorf("pgResultRepository.Create: %w", err)
	}
	return id, nil
}

func (r *pgResultRepository) FindByID(ctx context.Context, id model.ResultID) (*model.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM results WHERE id = $1`
	result, err := scanResult(r.db.QueryRowContext(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgResultRepository.FindByID: %w", err)
	}
	return &result, nil
}

func (r *pgResultRepository) List(ctx context.Context, filter model.ResultFilter) ([]model.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM results
	          WHERE ($1::bigint IS NULL OR assignment_id = $1)
	          ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, nullableID(filter.AssignmentID))
	if err != nil {
		return nil, fmt.Errorf("pgResultRepository.List: %w", err)
	}
	results, err := collect(rows, scanResult)
	if err != nil {
		return nil, fmt.Errorf("pgResultRepository.List: %w", err)
	}
	return results, nil
}

func scanResult(row rowScanner) (model.Result, error) {
	var res model.Result
	err := row.Scan(&res.ID, &res.CreatedAt, &res.AssignmentID, &res.Stdout, &res.Stderr, &res.ExitCode)
	return res, err
}
