package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/garnizeh/cleardeal/internal/config"
	"github.com/garnizeh/cleardeal/internal/escrow"
	"github.com/garnizeh/cleardeal/internal/identity"
	"github.com/garnizeh/cleardeal/internal/notify"
	"github.com/garnizeh/cleardeal/internal/ratelimit"
	"github.com/garnizeh/cleardeal/internal/submission"
	"github.com/garnizeh/cleardeal/pkg/metrics"
	"github.com/garnizeh/cleardeal/pkg/repository"
	"github.com/garnizeh/cleardeal/pkg/requestid"
)

// Deps are the collaborators the HTTP layer is wired to.
type Deps struct {
	Users       repository.UserRepo
	Jobs        *escrow.JobEngine
	Apps        *escrow.ApplicationEngine
	Broker      *notify.Broker
	Schemas     *submission.Loader
	Limiter     *ratelimit.Limiter
	Revocations *identity.Revocations
	// Metrics is optional; its collectors must be registered by the caller.
	Metrics *metrics.Middleware
	DB      Pinger
}

func SetupRoutes(cfg *config.Config, version, buildTime string, deps Deps) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(requestid.Middleware)
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddlewareWithOrigins(cfg.AllowedOrigins))
	r.Use(RecoveryMiddleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler)
	}

	// Create handlers
	systemHandler := &SystemHandler{DB: deps.DB}
	authHandler := NewAuthHandler(deps.Users, deps.Revocations, cfg.JWTSecret, cfg.TokenDuration)
	jobsHandler := NewJobsHandler(deps.Jobs, deps.Apps)
	eventsHandler := NewEventsHandler(deps.Broker, 0)

	// Preflight requests are answered by the CORS middleware.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods(http.MethodGet)
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	open := r.PathPrefix("/v1/auth").Subrouter()
	open.Use(RateLimitMiddleware(deps.Limiter))
	open.HandleFunc("/signup", authHandler.Signup).Methods(http.MethodPost)
	open.HandleFunc("/signin", authHandler.Signin).Methods(http.MethodPost)

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret, deps.Revocations))
	apiV1.Use(RateLimitMiddleware(deps.Limiter))

	apiV1.HandleFunc("/auth/signout", authHandler.Signout).Methods(http.MethodPost)
	if deps.Broker != nil {
		apiV1.HandleFunc("/events", eventsHandler.Stream).Methods(http.MethodGet)
	}

	bounded := apiV1.NewRoute().Subrouter()
	bounded.Use(TimeoutMiddleware(requestTimeout(cfg)))

	bounded.HandleFunc("/jobs", jobsHandler.CreateJob).Methods(http.MethodPost)
	bounded.HandleFunc("/jobs", jobsHandler.ListJobs).Methods(http.MethodGet)
	bounded.HandleFunc("/jobs/{id:[0-9]+}", jobsHandler.GetJob).Methods(http.MethodGet)
	bounded.HandleFunc("/jobs/{id:[0-9]+}/applications", jobsHandler.Apply).Methods(http.MethodPost)
	bounded.HandleFunc("/jobs/{id:[0-9]+}/applications", jobsHandler.ListApplications).Methods(http.MethodGet)
	bounded.HandleFunc("/jobs/{id:[0-9]+}/applications/{freelancer}/select", jobsHandler.Select).Methods(http.MethodPost)
	bounded.HandleFunc("/jobs/{id:[0-9]+}/submission", jobsHandler.SubmitWork).Methods(http.MethodPut)
	bounded.HandleFunc("/jobs/{id:[0-9]+}/approve", jobsHandler.ApproveWork).Methods(http.MethodPost)
	bounded.HandleFunc("/jobs/{id:[0-9]+}/reject", jobsHandler.RejectWork).Methods(http.MethodPost)
	bounded.HandleFunc("/jobs/{id:[0-9]+}/status", jobsHandler.Status).Methods(http.MethodGet)
	bounded.HandleFunc("/applications", jobsHandler.MyApplications).Methods(http.MethodGet)

	if deps.Schemas != nil {
		schemasHandler := NewSchemasHandler(deps.Schemas, cfg.SubmissionSchemaVersion)
		bounded.HandleFunc("/submission-schemas", schemasHandler.List).Methods(http.MethodGet)
		bounded.HandleFunc("/submission-schemas/reload", schemasHandler.Reload).Methods(http.MethodPost)
	}

	return r
}

// requestTimeout leaves room for one settlement call inside the API timeout.
func requestTimeout(cfg *config.Config) time.Duration {
	d := cfg.APITimeout
	if s := cfg.Settlement.Timeout; s > 0 && d > 0 && s+5*time.Second > d {
		d = s + 5*time.Second
	}
	return d
}
