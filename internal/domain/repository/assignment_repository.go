package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"
)

type AssignmentRepository interface {
	// CreateForTasks inserts one init assignment per task for userID with
	// deadline_at = now() + task.deadline.
	CreateForTasks(ctx context.Context, q DBTX, taskIDs []model.TaskID, userID model.UserID) ([]model.Assignment, error)
	// FindActiveForUpdate locks the non-canceled assignment of userID on taskID.
	FindActiveForUpdate(ctx context.Context, q DBTX, taskID model.TaskID, userID model.UserID) (*model.Assignment, error)
	// MarkSubmitted moves an init assignment to submitted and reports whether it did.
	MarkSubmitted(ctx context.Context, q DBTX, id model.AssignmentID) (bool, error)
	LockOverdue(ctx context.Context, q DBTX) ([]model.AssignmentID, error)
	// Expire moves the given init assignments to expired and returns how many moved.
	Expire(ctx context.Context, q DBTX, ids []model.AssignmentID) (int64, error)
	FindByID(ctx context.Context, id model.AssignmentID) (*model.Assignment, error)
	List(ctx context.Context, filter model.AssignmentFilter) ([]model.Assignment, error)
}

type pgAssignmentRepository struct {
	db *sql.DB
}

func NewPgAssignmentRepository(db *sql.DB) AssignmentRepository {
	return &pgAssignmentRepository{db: db}
}

const assignmentColumns = `id, created_at, deadline_at, task_id, user_id, state::text`

func (r *pgAssignmentRepository) CreateForTasks(ctx context.Context, q DBTX, taskIDs []model.TaskID, userID model.UserID) ([]model.Assignment, error) {
	query := `INSERT INTO assignments (task_id, user_id, deadline_at)
	          SELECT id, $2, now() + deadline FROM tasks WHERE id = ANY($1) ORDER BY id
	          RETURNING ` + assignmentColumns
	rows, err := q.QueryContext(ctx, query, model.RawIDs(taskIDs), int64(userID))
	if err != nil {
		return nil, fmt.Errorf("pgAssignmentRepository.CreateForTasks: %w", err)
	}
	assignments, err := collect(rows, scanAssignment)
	if err != nil {
		return nil, fmt.Errorf("pgAssignmentRepository.CreateForTasks: %w", err)
	}
	return assignments, nil
}

func (r *pgAssignmentRepository) FindActiveForUpdate(ctx context.Context, q DBTX, taskID model.TaskID, userID model.UserID) (*model.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments
	          WHERE task_id = $1 AND user_id = $2 AND state <> 'canceled'
	          FOR UPDATE`
	assignment, err := scanAssignment(q.QueryRowContext(ctx, query, int64(taskID), int64(userID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgAssignmentRepository.FindActiveForUpdate: %w", err)
	}
	return &assignment, nil
}

func (r *pgAssignmentRepository) MarkSubmitted(ctx context.Context, q DBTX, id model.AssignmentID) (bool, error) {
	query := `UPDATE assignments SET state = 'submitted' WHERE id = $1 AND state = 'init'`
	res, err := q.ExecContext(ctx, query, int64(id))
	if err != nil {
		return false, fmt.Errorf("pgAssignmentRepository.MarkSubmitted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgAssignmentRepository.MarkSubmitted: %w", err)
	}
	return n == 1, nil
}

func (r *pgAssignmentRepository) LockOverdue(ctx context.Context, q DBTX) ([]model.AssignmentID, error) {
	query := `SELECT id FROM assignments
	          WHERE state = 'init' AND deadline_at < now()
	          ORDER BY id
	          FOR UPDATE`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgAssignmentRepository.LockOverdue: %w", err)
	}
	ids, err := collect(rows, func(row rowScanner) (model.AssignmentID, error) {
		var id model.AssignmentID
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("pgAssignmentRepository.LockOverdue: %w", err)
	}
	return ids, nil
}

func (r *pgAssignmentRepository) Expire(ctx context.Context, q DBTX, ids []model.AssignmentID) (int64, error) {
	query := `UPDATE assignments SET state = 'expired'
	          WHERE id = ANY($1) AND state = 'init' AND deadline_at < now()`
	res, err := q.ExecContext(ctx, query, model.RawIDs(ids))
	if err != nil {
		return 0, fmt.Errorf("pgAssignmentRepository.Expire: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pgAssignmentRepository.Expire: %w", err)
	}
	return n, nil
}

func (r *pgAssignmentRepository) FindByID(ctx context.Context, id model.AssignmentID) (*model.Assignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	assignment, err := scanAssignment(r.db.QueryRowContext(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgAssignmentRepository.FindByID: %w", err)
	}
	return &assignment, nil
}

func (r *pgAssignmentRepository) List(ctx context.Context, filter model.AssignmentFilter) ([]model.Assignment, error) {
	var state any
	if filter.State != nil {
		state = string(*filter.State)
	}
	query := `SELECT ` + assignmentColumns + ` FROM assignments
	          WHERE ($1::bigint IS NULL OR task_id = $1)
	            AND ($2::bigint IS NULL OR user_id = $2)
	            AND ($3::text IS NULL OR state::text = $3)
	          ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, nullableID(filter.TaskID), nullableID(filter.UserID), state)
	if err != nil {
		return nil, fmt.Errorf("pgAssignmentRepository.List: %w", err)
	}
	assignments, err := collect(rows, scanAssignment)
	if err != nil {
		return nil, fmt.Errorf("pgAssignmentRepository.List: %w", err)
	}
	return assignments, nil
}

func scanAssignment(row rowScanner) (model.Assignment, error) {
	var a model.Assignment
	var state string
	err := row.Scan(&a.ID, &a.CreatedAt, &a.DeadlineAt, &a.TaskID, &a.UserID, &state)
	a.State = model.AssignmentState(state)
	return a, err
}
