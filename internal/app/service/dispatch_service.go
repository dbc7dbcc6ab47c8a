package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"
	"clusterizer/internal/domain/repository"
	"clusterizer/internal/platform/metrics"

	"go.uber.org/zap"
)

// DispatchService hands tasks to workers.
type DispatchService struct {
	tx             repository.Transactor
	projectRepo    repository.ProjectRepository
	taskRepo       repository.TaskRepository
	assignmentRepo repository.AssignmentRepository
	metrics        *metrics.Collector
	logger         *zap.Logger
}

func NewDispatchService(
	tx repository.Transactor,
	projectRepo repository.ProjectRepository,
	taskRepo repository.TaskRepository,
	assignmentRepo repository.AssignmentRepository,
	collector *metrics.Collector,
	logger *zap.Logger,
) *DispatchService {
	return &DispatchService{
		tx:             tx,
		projectRepo:    projectRepo,
		taskRepo:       taskRepo,
		assignmentRepo: assignmentRepo,
		metrics:        collector,
		logger:         logger,
	}
}

// FetchTasks assigns up to req.Limit eligible tasks of the requested projects
// to userID. Every returned task has a fresh init assignment for the user and
// already lists the user in AssignmentUserIDs. Either all of them are assigned
// or none is.
func (s *DispatchService) FetchTasks(ctx context.Context, userID model.UserID, req model.FetchTasksRequest) ([]model.Task, error) {
	start := time.Now()
	limit := clampLimit(req.Limit)
	projectIDs := uniqueIDs(req.ProjectIDs)

	var tasks []model.Task
	err := s.tx.WithinTx(ctx, func(q repository.DBTX) error {
		tasks = nil

		projects, err := s.projectRepo.FindByIDs(ctx, q, projectIDs)
		if err != nil {
			return err
		}
		if len(projects) != len(projectIDs) {
			return common.ErrInvalidProject
		}

		enabled := make([]model.ProjectID, 0, len(projects))
		for _, p := range projects {
			if !p.Disabled() {
				enabled = append(enabled, p.ID)
			}
		}
		if len(enabled) == 0 {
			return nil
		}

		locked, err := s.taskRepo.LockEligible(ctx, q, enabled, userID, limit)
		if err != nil {
			return err
		}
		if len(locked) == 0 {
			return nil
		}

		taskIDs := make([]model.TaskID, len(locked))
		for i := range locked {
			taskIDs[i] = locked[i].ID
		}
		if err := s.taskRepo.AddAssignee(ctx, q, taskIDs, userID); err != nil {
			return err
		}
		if _, err := s.assignmentRepo.CreateForTasks(ctx, q, taskIDs, userID); err != nil {
			return err
		}

		for i := range locked {
			locked[i].AssignmentUserIDs = append(locked[i].AssignmentUserIDs, userID)
		}
		tasks = locked
		return nil
	})
	if err != nil {
		var apiErr *common.Error
		if errors.As(err, &apiErr) {
			s.metrics.RecordFetch(metrics.OutcomeRejected, 0, time.Since(start))
			return nil, err
		}
		s.metrics.RecordFetch(metrics.OutcomeError, 0, time.Since(start))
		return nil, common.Errorf("failed to fetch tasks for user %d: %w", userID, err)
	}

	if tasks == nil {
		tasks = []model.Task{}
	}
	s.metrics.RecordFetch(metrics.OutcomeOK, len(tasks), time.Since(start))
	s.logger.Debug("dispatched tasks",
		zap.Int64("user_id", int64(userID)),
		zap.Int("requested", req.Limit),
		zap.Int("dispatched", len(tasks)))
	return tasks, nil
}

func clampLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	return min(limit, model.HardFetchLimit)
}

func uniqueIDs[ID ~int64](ids []ID) []ID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
