package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/fieldops/internal/assistant"
	"github.com/garnizeh/fieldops/internal/config"
	"github.com/garnizeh/fieldops/internal/lifecycle"
	"github.com/garnizeh/fieldops/internal/media"
	"github.com/garnizeh/fieldops/internal/realtime"
	"github.com/garnizeh/fieldops/pkg/repository"
)

// Deps is everything the HTTP layer needs. Assistant and Hub may be nil.
type Deps struct {
	Config     *config.Config
	Version    string
	BuildTime  string
	Staff      repository.StaffRepo
	Jobs       repository.JobRepo
	Schemas    repository.SchemaRepo
	Controller *lifecycle.Controller
	Stager     *media.Stager
	Assistant  *assistant.Assistant
	Hub        *realtime.Hub
	// Health lists the dependency checks run by /health.
	Health map[string]HealthCheck
}

func SetupRoutes(d Deps) *mux.Router {
	cfg := d.Config
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	appVersion := AppVersionMiddleware(cfg.MinAppVersion)

	systemHandler := NewSystemHandler(d.Health)
	authHandler := NewAuthHandler(d.Staff, cfg.JWTSecret, cfg.TokenDuration, cfg.Signin.RatePerMinute, cfg.Signin.Burst)
	jobsHandler := NewJobsHandler(d.Jobs, d.Controller)
	wizardHandler := NewWizardHandler(d.Controller, d.Stager)
	assistantHandler := NewAssistantHandler(d.Assistant, d.Schemas)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(d.Version, d.BuildTime)).Methods(http.MethodGet)
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods(http.MethodGet)
	r.Handle("/v1/auth/pin", appVersion(http.HandlerFunc(authHandler.SigninPIN))).Methods(http.MethodPost)

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(appVersion)
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	apiV1.HandleFunc("/auth/signout", authHandler.Signout).Methods(http.MethodPost)

	apiV1.HandleFunc("/jobs", jobsHandler.ListJobs).Methods(http.MethodGet)
	apiV1.HandleFunc("/jobs/{id}", jobsHandler.GetJob).Methods(http.MethodGet)
	apiV1.HandleFunc("/jobs/{id}/requirements/{rid}", jobsHandler.SetRequirement).Methods(http.MethodPatch)
	apiV1.HandleFunc("/jobs/{id}/accept", jobsHandler.Accept).Methods(http.MethodPost)
	apiV1.HandleFunc("/jobs/{id}/reject", jobsHandler.Reject).Methods(http.MethodPost)
	apiV1.HandleFunc("/jobs/{id}/start", jobsHandler.Start).Methods(http.MethodPost)

	apiV1.HandleFunc("/jobs/{id}/completion", wizardHandler.Open).Methods(http.MethodPost)
	apiV1.HandleFunc("/jobs/{id}/completion", wizardHandler.State).Methods(http.MethodGet)
	completion := apiV1.PathPrefix("/jobs/{id}/completion").Subrouter()
	completion.HandleFunc("/requirements/{rid}", wizardHandler.SetRequirement).Methods(http.MethodPut)
	completion.HandleFunc("/photo-checklist/{item}", wizardHandler.SetPhotoItem).Methods(http.MethodPut)
	completion.HandleFunc("/photos", wizardHandler.AttachPhoto).Methods(http.MethodPost)
	completion.HandleFunc("/quality/{item}", wizardHandler.SetQuality).Methods(http.MethodPut)
	completion.HandleFunc("/notes", wizardHandler.SetNotes).Methods(http.MethodPut)
	completion.HandleFunc("/next", wizardHandler.Next).Methods(http.MethodPost)
	completion.HandleFunc("/back", wizardHandler.Back).Methods(http.MethodPost)
	completion.HandleFunc("/complete", wizardHandler.Complete).Methods(http.MethodPost)

	apiV1.HandleFunc("/jobs/{id}/assistant", assistantHandler.Ask).Methods(http.MethodPost)
	apiV1.HandleFunc("/jobs/{id}/assistant", assistantHandler.History).Methods(http.MethodGet)
	apiV1.HandleFunc("/assistant/schemas", assistantHandler.ListSchemas).Methods(http.MethodGet)
	apiV1.HandleFunc("/assistant/schemas", assistantHandler.PutSchema).Methods(http.MethodPut)

	if d.Hub != nil {
		realtimeHandler := NewRealtimeHandler(d.Hub, d.Jobs)
		apiV1.HandleFunc("/ws", realtimeHandler.Subscribe).Methods(http.MethodGet)
	}

	return r
}
