package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/giteamirror/internal/application"
	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// JobService starts, cancels and reads mirror jobs.
type JobService interface {
	StartJob(ctx context.Context, configID string, repositoryIDs []string) (*model.MirrorJob, error)
	CancelJob(ctx context.Context, jobID string) (*model.MirrorJob, error)
	GetJob(ctx context.Context, jobID string) (*model.MirrorJob, error)
	ListJobs(ctx context.Context, configID string) ([]model.MirrorJob, error)
}

// SyncService synchronizes a stored configuration.
type SyncService interface {
	Sync(ctx context.Context, configID string) (application.SyncResult, error)
}

// ConnectionTester checks the credentials of a stored configuration.
type ConnectionTester interface {
	TestConnection(ctx context.Context, configID string) (application.ConnectionReport, error)
}

// Runner syncs a configuration and starts its batch job immediately.
type Runner interface {
	RunNow(ctx context.Context, configID string) (*model.MirrorJob, error)
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	configs driven.ConfigStore
	repos   driven.RepositoryStore
	orgs    driven.OrganizationStore
	jobs    JobService
	syncer  SyncService
	conn    ConnectionTester
	runner  Runner
	logger  *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	configs driven.ConfigStore,
	repos driven.RepositoryStore,
	orgs driven.OrganizationStore,
	jobs JobService,
	syncer SyncService,
	conn ConnectionTester,
	runner Runner,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		configs: configs,
		repos:   repos,
		orgs:    orgs,
		jobs:    jobs,
		syncer:  syncer,
		conn:    conn,
		runner:  runner,
		logger:  logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/jobs", h.StartJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}", h.GetJob)
	mux.HandleFunc("POST /api/v1/jobs/{id}/cancel", h.CancelJob)
	mux.HandleFunc("GET /api/v1/configs", h.ListConfigs)
	mux.HandleFunc("GET /api/v1/configs/{id}/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/v1/configs/{id}/repositories", h.ListRepositories)
	mux.HandleFunc("GET /api/v1/configs/{id}/organizations", h.ListOrganizations)
	mux.HandleFunc("POST /api/v1/configs/{id}/sync", h.Sync)
	mux.HandleFunc("POST /api/v1/configs/{id}/run", h.Run)
	mux.HandleFunc("POST /api/v1/configs/{id}/test-connection", h.TestConnection)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// StartJob creates a mirror job. The job runs in the background; poll
// GET /api/v1/jobs/{id} for progress.
func (h *Handler) StartJob(w http.ResponseWriter, r *http.Request) {
	var req StartJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ConfigID == "" {
		writeError(w, http.StatusBadRequest, "config_id is required")
		return
	}

	job, err := h.jobs.StartJob(r.Context(), req.ConfigID, req.RepositoryIDs)
	if err != nil {
		h.fail(w, "failed to start job", err, "config", req.ConfigID)
		return
	}

	writeJSON(w, http.StatusCreated, toJobResponse(*job))
}

// GetJob returns a job with its full log.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "failed to get job", err, "job", r.PathValue("id"))
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(*job))
}

// CancelJob cancels a pending or running job.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.CancelJob(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "failed to cancel job", err, "job", r.PathValue("id"))
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(*job))
}

// ListConfigs returns every configuration with tokens redacted.
func (h *Handler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.configs.List(r.Context())
	if err != nil {
		h.fail(w, "failed to list configurations", err)
		return
	}

	resp := make([]ConfigResponse, 0, len(configs))
	for _, c := range configs {
		resp = append(resp, toConfigResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListJobs returns the jobs of a configuration, newest first.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.ListJobs(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "failed to list jobs", err, "config", r.PathValue("id"))
		return
	}

	resp := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toJobResponse(j))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListRepositories returns the repositories tracked by a configuration.
func (h *Handler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	configID := r.PathValue("id")
	if !h.configExists(w, r, configID) {
		return
	}

	repos, err := h.repos.ListByConfig(r.Context(), configID)
	if err != nil {
		h.fail(w, "failed to list repositories", err, "config", configID)
		return
	}

	resp := make([]RepositoryResponse, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, toRepositoryResponse(repo))
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListOrganizations returns the organizations known to a configuration.
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	configID := r.PathValue("id")
	if !h.configExists(w, r, configID) {
		return
	}

	orgs, err := h.orgs.ListByConfig(r.Context(), configID)
	if err != nil {
		h.fail(w, "failed to list organizations", err, "config", configID)
		return
	}

	resp := make([]OrganizationResponse, 0, len(orgs))
	for _, o := range orgs {
		resp = append(resp, toOrganizationResponse(o))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Sync refreshes the repository inventory of a configuration without mirroring.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncer.Sync(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "sync failed", err, "config", r.PathValue("id"))
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		Added:         result.Added,
		Updated:       result.Updated,
		Unchanged:     result.Unchanged,
		Organizations: result.Organizations,
	})
}

// Run syncs a configuration and starts a batch job for all its repositories,
// outside its schedule. 204 when there is nothing to mirror.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	job, err := h.runner.RunNow(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "run failed", err, "config", r.PathValue("id"))
		return
	}
	if job == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusAccepted, toJobResponse(*job))
}

// TestConnection checks both tokens of a configuration. Provider failures are
// reported in the body with ok=false.
func (h *Handler) TestConnection(w http.ResponseWriter, r *http.Request) {
	configID := r.PathValue("id")

	report, err := h.conn.TestConnection(r.Context(), configID)
	if errors.Is(err, driven.ErrConfigNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn("connection test failed", "config", configID, "error", err)
		writeJSON(w, http.StatusOK, ConnectionResponse{OK: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, ConnectionResponse{
		OK:          true,
		Source:      toIdentityResponse(report.Source),
		Destination: toIdentityResponse(report.Destination),
	})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) configExists(w http.ResponseWriter, r *http.Request, configID string) bool {
	if _, err := h.configs.Get(r.Context(), configID); err != nil {
		h.fail(w, "failed to load configuration", err, "config", configID)
		return false
	}
	return true
}

// fail writes the error response matching err. Only unexpected errors are
// logged at error level; their message is not exposed.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error, attrs ...any) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, append(attrs, "error", err)...)
		writeError(w, status, "internal server error")
		return
	}

	h.logger.Debug(msg, append(attrs, "status", status, "error", err)...)
	writeError(w, status, err.Error())
}

// statusFor maps domain and provider errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, driven.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, driven.ErrConfigNotFound),
		errors.Is(err, driven.ErrRepoNotFound),
		errors.Is(err, driven.ErrJobNotFound),
		errors.Is(err, driven.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, driven.ErrJobNotCancellable),
		errors.Is(err, driven.ErrRepoBusy):
		return http.StatusConflict
	case errors.Is(err, driven.ErrNoRepositories):
		return http.StatusUnprocessableEntity
	case errors.Is(err, driven.ErrRateLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, driven.ErrAuthentication),
		errors.Is(err, driven.ErrConnection):
		return http.StatusBadGateway
	case errors.Is(err, driven.ErrEncryptionKeyNotSet):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
