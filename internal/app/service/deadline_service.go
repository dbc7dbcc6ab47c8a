package service

import (
	"context"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/repository"
)

// DeadlineService expires assignments whose deadline has passed.
type DeadlineService struct {
	tx             repository.Transactor
	assignmentRepo repository.AssignmentRepository
	taskRepo       repository.TaskRepository
}

func NewDeadlineService(tx repository.Transactor, assignmentRepo repository.AssignmentRepository, taskRepo repository.TaskRepository) *DeadlineService {
	return &DeadlineService{tx: tx, assignmentRepo: assignmentRepo, taskRepo: taskRepo}
}

// ExpireOverdue moves every overdue init assignment to expired and frees the
// replication slot its user held on the task. It returns the number of
// assignments expired.
func (s *DeadlineService) ExpireOverdue(ctx context.Context) (int64, error) {
	var expired int64
	err := s.tx.WithinTx(ctx, func(q repository.DBTX) error {
		expired = 0

		ids, err := s.assignmentRepo.LockOverdue(ctx, q)
		if err != nil || len(ids) == 0 {
			return err
		}

		expired, err = s.assignmentRepo.Expire(ctx, q, ids)
		if err != nil {
			return err
		}
		return s.taskRepo.ReleaseAssignees(ctx, q, ids)
	})
	if err != nil {
		return 0, common.Errorf("failed to expire assignments: %w", err)
	}
	return expired, nil
}
