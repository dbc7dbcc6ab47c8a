package service

import (
	"context"
	"errors"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"
	"clusterizer/internal/domain/repository"
	"clusterizer/internal/platform/metrics"

	"go.uber.org/zap"
)

type SubmissionService struct {
	tx             repository.Transactor
	assignmentRepo repository.AssignmentRepository
	resultRepo     repository.ResultRepository
	metrics        *metrics.Collector
	logger         *zap.Logger
}

func NewSubmissionService(
	tx repository.Transactor,
	assignmentRepo repository.AssignmentRepository,
	resultRepo repository.ResultRepository,
	collector *metrics.Collector,
	logger *zap.Logger,
) *SubmissionService {
	return &SubmissionService{
		tx:             tx,
		assignmentRepo: assignmentRepo,
		resultRepo:     resultRepo,
		metrics:        collector,
		logger:         logger,
	}
}

// SubmitResult records the output of userID's assignment on taskID. Only an
// init assignment moves to submitted; a result for an assignment in any other
// non-canceled state is stored without changing that state.
func (s *SubmissionService) SubmitResult(ctx context.Context, taskID model.TaskID, userID model.UserID, req model.SubmitResultRequest) error {
	var (
		assignment *model.Assignment
		resultID   model.ResultID
		moved      bool
	)
	err := s.tx.WithinTx(ctx, func(q repository.DBTX) error {
		var err error
		assignment, err = s.assignmentRepo.FindActiveForUpdate(ctx, q, taskID, userID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrInvalidTask
			}
			return err
		}

		resultID, err = s.resultRepo.Create(ctx, q, assignment.ID, req)
		if err != nil {
			return err
		}

		moved, err = s.assignmentRepo.MarkSubmitted(ctx, q, assignment.ID)
		return err
	})
	if err != nil {
		var apiErr *common.Error
		if errors.As(err, &apiErr) {
			s.metrics.RecordSubmit(metrics.OutcomeRejected)
			return err
		}
		s.metrics.RecordSubmit(metrics.OutcomeError)
		return common.Errorf("failed to submit result for task %d: %w", taskID, err)
	}

	s.metrics.RecordSubmit(metrics.OutcomeOK)
	fields := []zap.Field{
		zap.Int64("task_id", int64(taskID)),
		zap.Int64("assignment_id", int64(assignment.ID)),
		zap.Int64("result_id", int64(resultID)),
	}
	if !moved {
		s.logger.Info("result stored for assignment no longer in init", append(fields, zap.String("state", string(assignment.State)))...)
		return nil
	}
	s.logger.Debug("result submitted", fields...)
	return nil
}
