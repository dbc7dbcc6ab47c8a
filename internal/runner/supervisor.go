package runner

import (
	"context"

	"clusterizer/internal/domain/model"

	"go.uber.org/zap"
)

type Source interface {
	Fetch(ctx context.Context, limit int) []Job
}

type Runner interface {
	Execute(ctx context.Context, version model.ProjectVersionID, stdin string) (model.SubmitResultRequest, error)
}

type Sink interface {
	SubmitResult(ctx context.Context, taskID model.TaskID, req model.SubmitResultRequest) error
}

type eventKind int

const (
	fetched eventKind = iota
	executed
	submitted
)

type event struct {
	kind   eventKind
	jobs   []Job
	job    Job
	result model.SubmitResultRequest
	err    error
}

// Supervisor keeps up to threads programs running and up to queue tasks
// waiting, fetching more work as the queue drains. All its state is owned by
// the goroutine running Run; jobs report back over a channel.
type Supervisor struct {
	source  Source
	runner  Runner
	sink    Sink
	threads int
	queue   int
	logger  *zap.Logger

	tasks       []Job
	usedThreads int
	fetching    bool
	inFlight    int
	events      chan event
}

func NewSupervisor(source Source, runner Runner, sink Sink, threads, queue int, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		source:  source,
		runner:  runner,
		sink:    sink,
		threads: max(threads, 1),
		queue:   max(queue, 0),
		logger:  logger,
	}
}

// Run processes work until ctx is cancelled, then waits for in-flight jobs
// and returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	s.events = make(chan event)

	for {
		if ctx.Err() == nil {
			s.schedule(ctx)
		}
		if ctx.Err() != nil && s.inFlight == 0 {
			return ctx.Err()
		}

		ev := <-s.events
		s.inFlight--
		s.handle(ctx, ev)
	}
}

func (s *Supervisor) schedule(ctx context.Context) {
	for s.usedThreads < s.threads && len(s.tasks) > 0 {
		job := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.usedThreads++
		s.spawn(func() event {
			result, err := s.runner.Execute(ctx, job.Version.ID, job.Task.Stdin)
			return event{kind: executed, job: job, result: result, err: err}
		})
	}

	if !s.fetching && (len(s.tasks) == 0 || len(s.tasks) < s.queue) {
		limit := max(1, s.threads+s.queue-s.usedThreads-len(s.tasks))
		s.fetching = true
		s.spawn(func() event {
			return event{kind: fetched, jobs: s.source.Fetch(ctx, limit)}
		})
	}
}

func (s *Supervisor) handle(ctx context.Context, ev event) {
	switch ev.kind {
	case fetched:
		s.fetching = false
		s.tasks = append(s.tasks, ev.jobs...)

	case executed:
		s.usedThreads--
		if ev.err != nil {
			if ctx.Err() == nil {
				s.logger.Error("executing task",
					zap.Int64("task_id", int64(ev.job.Task.ID)),
					zap.Int64("project_version_id", int64(ev.job.Version.ID)),
					zap.Error(ev.err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		taskID, result := ev.job.Task.ID, ev.result
		s.spawn(func() event {
			return event{kind: submitted, job: ev.job, err: s.sink.SubmitResult(ctx, taskID, result)}
		})

	case submitted:
		if ev.err != nil {
			if ctx.Err() == nil {
				s.logger.Error("submitting result", zap.Int64("task_id", int64(ev.job.Task.ID)), zap.Error(ev.err))
			}
			return
		}
		s.logger.Info("submitted result", zap.Int64("task_id", int64(ev.job.Task.ID)))
	}
}

// spawn runs fn on its own goroutine; its event is delivered to Run.
func (s *Supervisor) spawn(fn func() event) {
	s.inFlight++
	go func() {
		s.events <- fn()
	}()
}
