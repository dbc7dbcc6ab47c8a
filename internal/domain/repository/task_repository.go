package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"

	"github.com/jackc/pgx/v5/pgtype"
)

type TaskRepository interface {
	// LockEligible locks up to limit tasks of projectIDs that still have a free
	// replication slot userID may take. Rows locked by other transactions are
	// skipped rather than waited on.
	LockEligible(ctx context.Context, q DBTX, projectIDs []model.ProjectID, userID model.UserID, limit int) ([]model.Task, error)
	AddAssignee(ctx context.Context, q DBTX, taskIDs []model.TaskID, userID model.UserID) error
	// ReleaseAssignees removes the users of the given assignments from their
	// tasks' assignee lists, freeing their replication slots.
	ReleaseAssignees(ctx context.Context, q DBTX, assignmentIDs []model.AssignmentID) error
	FindByID(ctx context.Context, id model.TaskID) (*model.Task, error)
	List(ctx context.Context, filter model.TaskFilter) ([]model.Task, error)
}

type pgTaskRepository struct {
	db *sql.DB
}

func NewPgTaskRepository(db *sql.DB) TaskRepository {
	return &pgTaskRepository{db: db}
}

const taskColumns = `id, created_at, deadline, project_id, stdin, assignments_needed, assignment_user_ids`

func (r *pgTaskRepository) LockEligible(ctx context.Context, q DBTX, projectIDs []model.ProjectID, userID model.UserID, limit int) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t
	          WHERE t.project_id = ANY($1)
	            AND cardinality(t.assignment_user_ids) < t.assignments_needed
	            AND $2 <> ALL(t.assignment_user_ids)
	            AND NOT EXISTS (
	                SELECT 1 FROM assignments a
	                WHERE a.task_id = t.id AND a.user_id = $2 AND a.state <> 'canceled'
	            )
	          ORDER BY t.id
	          LIMIT $3
	          FOR UPDATE OF t SKIP LOCKED`
	rows, err := q.QueryContext(ctx, query, model.RawIDs(projectIDs), int64(userID), limit)
	if err != nil {
		return nil, fmt.Errorf("pgTaskRepository.LockEligible: %w", err)
	}
	tasks, err := collect(rows, taskScanner())
	if err != nil {
		return nil, fmt.Errorf("pgTaskRepository.LockEligible: %w", err)
	}
	return tasks, nil
}

func (r *pgTaskRepository) AddAssignee(ctx context.Context, q DBTX, taskIDs []model.TaskID, userID model.UserID) error {
	query := `UPDATE tasks
	          SET assignment_user_ids = assignment_user_ids || $2::bigint
	          WHERE id = ANY($1)`
	if _, err := q.ExecContext(ctx, query, model.RawIDs(taskIDs), int64(userID)); err != nil {
		return fmt.Errorf("pgTaskRepository.AddAssignee: %w", err)
	}
	return nil
}

func (r *pgTaskRepository) ReleaseAssignees(ctx context.Context, q DBTX, assignmentIDs []model.AssignmentID) error {
	query := `UPDATE tasks t
	          SET assignment_user_ids = ARRAY(
	              SELECT u FROM unnest(t.assignment_user_ids) AS u
	              WHERE u <> ALL(released.user_ids)
	          )
	          FROM (
	              SELECT task_id, array_agg(user_id) AS user_ids
	              FROM assignments
	              WHERE id = ANY($1)
	              GROUP BY task_id
	          ) AS released
	          WHERE t.id = released.task_id`
	if _, err := q.ExecContext(ctx, query, model.RawIDs(assignmentIDs)); err != nil {
		return fmt.Errorf("pgTaskRepository.ReleaseAssignees: %w", err)
	}
	return nil
}

func (r *pgTaskRepository) FindByID(ctx context.Context, id model.TaskID) (*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	task, err := taskScanner()(r.db.QueryRowContext(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgTaskRepository.FindByID: %w", err)
	}
	return &task, nil
}

func (r *pgTaskRepository) List(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks
	          WHERE ($1::bigint IS NULL OR project_id = $1)
	          ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, nullableID(filter.ProjectID))
	if err != nil {
		return nil, fmt.Errorf("pgTaskRepository.List: %w", err)
	}
	tasks, err := collect(rows, taskScanner())
	if err != nil {
		return nil, fmt.Errorf("pgTaskRepository.List: %w", err)
	}
	return tasks, nil
}

// taskScanner returns a scan function bound to its own type map, which the
// interval and int8[] columns need.
func taskScanner() func(rowScanner) (model.Task, error) {
	m := typeMap()
	return func(row rowScanner) (model.Task, error) {
		var (
			t        model.Task
			deadline pgtype.Interval
			userIDs  []int64
		)
		err := row.Scan(&t.ID, &t.CreatedAt, m.SQLScanner(&deadline), &t.ProjectID, &t.Stdin,
			&t.AssignmentsNeeded, m.SQLScanner(&userIDs))
		if err != nil {
			return t, err
		}
		t.Deadline = model.Interval{
			Months:       deadline.Months,
			Days:         deadline.Days,
			Microseconds: deadline.Microseconds,
		}
		t.AssignmentUserIDs = model.TypedIDs[model.UserID](userIDs)
		return t, nil
	}
}
