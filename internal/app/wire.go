package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Divyesh172/SmartProctor-FullStack/internal/auth"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/handler"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/infra"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/ledger"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/projection"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/referee"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/repository"
	"github.com/Divyesh172/SmartProctor-FullStack/internal/service"
)

// RouterDeps holds all dependencies needed by NewRouter.
type RouterDeps struct {
	Store     repository.Store
	Engine    *ledger.Engine
	Cache     projection.Store
	Hub       *infra.WSHub
	Referee   *referee.Referee
	JWTMgr    *auth.JWTManager
	Reporters *auth.ReporterAuthManager
	Logger    *slog.Logger
	// Comma-separated CORS origins; "*" allows any.
	CORSOrigins string
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	logger := deps.Logger
	jwtMgr := deps.JWTMgr
	reporters := deps.Reporters

	// Services
	authSvc := service.NewAuthService(deps.Store, jwtMgr)
	examSvc := service.NewExamService(deps.Engine, jwtMgr, reporters, deps.Cache, logger)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	proctorHandler := handler.NewProctorHandler(deps.Engine, handler.MustReportValidator(), logger)
	studentHandler := handler.NewStudentHandler(examSvc, deps.Engine, logger)
	examHandler := handler.NewExamHandler(examSvc, deps.Engine, logger)
	incidentHandler := handler.NewIncidentHandler(examSvc, deps.Engine, logger)
	liveHandler := handler.NewLiveHandler(deps.Hub, examSvc, deps.Referee, logger)

	origins := deps.CORSOrigins
	if origins == "" {
		origins = "*"
	}

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(origins))
	r.Use(handler.JSONContentType)

	// Health (no auth)
	r.Get("/health", handler.HealthHandler(deps.Store))

	// Proctor accounts (no auth)
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	// Reporter-facing endpoints: detectors and the mobile watcher.
	r.Route("/api/proctor", func(r chi.Router) {
		r.Get("/health", proctorHandler.Health)
		r.With(auth.RequireReporterScope(reporters, auth.ScopeIncidentsReport)).
			Post("/report", proctorHandler.Report)
		r.With(auth.RequireReporterScope(reporters, auth.ScopeMobilePair)).
			Post("/mobile/handshake", proctorHandler.Handshake)
	})

	r.Route("/api/students", func(r chi.Router) {
		r.Post("/join", studentHandler.Join)

		r.Route("/{studentID}", func(r chi.Router) {
			// Student realm: a token may only act on its own student.
			r.Group(func(r chi.Router) {
				r.Use(auth.AuthenticateStudent(jwtMgr))
				r.Use(auth.RequireSelf(studentIDParam))

				r.Get("/status", studentHandler.Status)
				r.Post("/heartbeat", studentHandler.Heartbeat)
				r.Post("/start", studentHandler.Start)
				r.Post("/submit", studentHandler.Submit)
			})

			// Proctor realm: session ownership is checked per request.
			r.Group(func(r chi.Router) {
				r.Use(auth.AuthenticateProctor(jwtMgr))
				r.Use(auth.RequireRole(auth.AllProctorRoles()...))

				r.Get("/incidents", studentHandler.Incidents)
				r.Get("/reconcile", studentHandler.Reconcile)
				r.With(auth.RequireRole(auth.WriteRoles()...)).
					Post("/terminate", studentHandler.Terminate)
			})
		})
	})

	// Proctor-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateProctor(jwtMgr))
		r.Use(auth.RequireRole(auth.AllProctorRoles()...))
		write := auth.RequireRole(auth.WriteRoles()...)

		r.Route("/api/exams", func(r chi.Router) {
			r.Get("/", examHandler.ListMine)
			r.With(write).Post("/", examHandler.Create)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", examHandler.Get)
				r.Get("/incidents", examHandler.Incidents)
				r.Get("/pending", examHandler.Pending)
				r.Get("/summary", examHandler.Summary)
				r.Get("/students", examHandler.Roster)
				r.With(write).Post("/publish", examHandler.Publish)
				r.With(write).Post("/close", examHandler.Close)
			})
		})

		r.With(write).Patch("/api/incidents/{incidentID}", incidentHandler.Adjudicate)
		r.With(write).Post("/api/reporter-tokens", examHandler.IssueReporterToken)
	})

	// Live channels
	r.Route("/ws", func(r chi.Router) {
		r.With(auth.AuthenticateStudent(jwtMgr), auth.RequireSelf(studentIDParam)).
			Get("/students/{studentID}", liveHandler.Student)
		r.With(auth.AuthenticateProctor(jwtMgr), auth.RequireRole(auth.AllProctorRoles()...)).
			Get("/sessions/{sessionID}", liveHandler.Session)
		r.With(auth.RequireReporterScope(reporters, auth.ScopeDetectorStream)).
			Get("/detector", liveHandler.Detector)
	})

	return r
}

func studentIDParam(r *http.Request) string {
	return chi.URLParam(r, "studentID")
}
