package api

import (
	"net/http"
	"time"

	"clusterizer/internal/api/handler"
	"clusterizer/internal/api/middleware"
	"clusterizer/internal/app/service"
	"clusterizer/internal/domain/model"
	"clusterizer/internal/domain/repository"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Services bundles what the router needs.
type Services struct {
	Auth       *service.AuthService
	Dispatch   *service.DispatchService
	Submission *service.SubmissionService

	Users           repository.UserRepository
	Platforms       repository.PlatformRepository
	Projects        repository.ProjectRepository
	ProjectVersions repository.ProjectVersionRepository
	Tasks           repository.TaskRepository
	Assignments     repository.AssignmentRepository
	Results         repository.ResultRepository

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

func NewRouter(s Services, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	authenticated := middleware.Authenticator(s.Auth, logger)

	handler.NewAuthHandler(s.Auth, logger).RegisterRoutes(r)
	r.Group(func(worker chi.Router) {
		worker.Use(authenticated)
		handler.NewTaskHandler(s.Dispatch, s.Submission, logger).RegisterRoutes(worker)
	})

	r.Route("/users", func(users chi.Router) {
		users.With(authenticated).Get("/me", handler.Me(s.Users, logger))
		handler.NewListingHandler[model.User, model.UserID](s.Users, model.ParseUserFilter, logger).RegisterRoutes(users)
	})
	r.Route("/platforms", handler.NewListingHandler[model.Platform, model.PlatformID](s.Platforms, model.ParsePlatformFilter, logger).RegisterRoutes)
	r.Route("/projects", handler.NewListingHandler[model.Project, model.ProjectID](s.Projects, model.ParseProjectFilter, logger).RegisterRoutes)
	r.Route("/project_versions", handler.NewListingHandler[model.ProjectVersion, model.ProjectVersionID](s.ProjectVersions, model.ParseProjectVersionFilter, logger).RegisterRoutes)
	r.Route("/tasks", handler.NewListingHandler[model.Task, model.TaskID](s.Tasks, model.ParseTaskFilter, logger).RegisterRoutes)
	r.Route("/assignments", handler.NewListingHandler[model.Assignment, model.AssignmentID](s.Assignments, model.ParseAssignmentFilter, logger).RegisterRoutes)
	r.Route("/results", handler.NewListingHandler[model.Result, model.ResultID](s.Results, model.ParseResultFilter, logger).RegisterRoutes)

	return r
}
