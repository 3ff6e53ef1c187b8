package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/peregrine/internal/dataset"
	"github.com/opensource-finance/peregrine/internal/domain"
	"github.com/opensource-finance/peregrine/internal/profiler"
	"github.com/opensource-finance/peregrine/internal/provision"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	provisioner *provision.Provisioner
	profiler    *profiler.Profiler
	project     string
	version     string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, provisioner *provision.Provisioner, prof *profiler.Profiler, project, version string) *Handler {
	return &Handler{
		repo:        repo,
		cache:       cache,
		bus:         bus,
		provisioner: provisioner,
		profiler:    prof,
		project:     project,
		version:     version,
	}
}

// profileOptions reads profiling options from query parameters.
func profileOptions(r *http.Request) profiler.Options {
	q := r.URL.Query()
	return profiler.Options{
		LabelColumn:     q.Get("labelColumn"),
		TimestampColumn: q.Get("timestampColumn"),
		FilterWarnings:  q.Get("filterWarnings") == "true",
	}
}

// Profile handles POST /profile: a CSV body in, per-column summary
// statistics out.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	table, err := dataset.Load(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CSV body: " + err.Error(),
		})
		return
	}

	profiles, err := h.profiler.SummaryStats(table, profileOptions(r))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, profiler.ErrMissingColumns) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	h.saveReport(r, profiles)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"columns": profiles,
		"rows":    table.RowCount(),
	})
}

// ProfileInputs handles POST /profile/inputs: a CSV body in, derived
// training inputs (schema, variables, labels) out.
func (h *Handler) ProfileInputs(w http.ResponseWriter, r *http.Request) {
	table, err := dataset.Load(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CSV body: " + err.Error(),
		})
		return
	}

	inputs, err := h.profiler.Inputs(table, profileOptions(r))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, profiler.ErrMissingColumns) || errors.Is(err, profiler.ErrNonBinaryLabel) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	h.saveReport(r, inputs)

	writeJSON(w, http.StatusOK, inputs)
}

// saveReport persists a profiling artifact. Failures are logged, not
// surfaced: the report is a byproduct, the response already carries it.
func (h *Handler) saveReport(r *http.Request, artifact interface{}) {
	if h.repo == nil {
		return
	}
	report, err := json.Marshal(artifact)
	if err != nil {
		return
	}
	rec := &domain.ProfileReport{
		ID:        uuid.New().String(),
		Project:   h.project,
		Report:    report,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.SaveProfileReport(r.Context(), rec); err != nil {
		slog.Error("failed to save profile report", "error", err)
	}
}

// ListProfileReports handles GET /profile/reports.
func (h *Handler) ListProfileReports(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	reports, err := h.repo.ListProfileReports(r.Context(), h.project)
	if err != nil {
		slog.Error("failed to list profile reports", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list profile reports",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

// Setup handles POST /setup: runs the full resource creation sequence
// from previously derived training inputs.
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	var inputs profiler.Inputs
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	statuses, err := h.provisioner.SetupProject(r.Context(), &inputs)
	if err != nil {
		slog.Error("project setup failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":    err.Error(),
			"statuses": statuses,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"statuses": statuses,
	})
}

// Journal handles GET /journal.
func (h *Handler) Journal(w http.ResponseWriter, r *http.Request) {
	ops, err := h.provisioner.Journal(r.Context())
	if err != nil {
		slog.Error("failed to read journal", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to read journal",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"operations": ops,
		"count":      len(ops),
	})
}

// nameRequest is the request body for single-name resource creation.
type nameRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func decodeName(w http.ResponseWriter, r *http.Request) (nameRequest, bool) {
	var req nameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return req, false
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return req, false
	}
	return req, true
}

func (h *Handler) writeStatuses(w http.ResponseWriter, statuses domain.StatusMap, err error) {
	if err != nil {
		slog.Error("provisioning call failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"statuses": statuses,
	})
}

// CreateEntityType handles POST /resources/entity-types.
func (h *Handler) CreateEntityType(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeName(w, r)
	if !ok {
		return
	}
	statuses, err := h.provisioner.CreateEntityType(r.Context(), req.Name)
	h.writeStatuses(w, statuses, err)
}

// DeleteEntityType handles DELETE /resources/entity-types/{name}.
func (h *Handler) DeleteEntityType(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.provisioner.DeleteEntityType(r.Context(), chi.URLParam(r, "name"))
	h.writeStatuses(w, statuses, err)
}

// CreateEventType handles POST /resources/event-types.
func (h *Handler) CreateEventType(w http.ResponseWriter, r *http.Request) {
	var et domain.EventType
	if err := json.NewDecoder(r.Body).Decode(&et); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if et.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "name is required",
		})
		return
	}
	statuses, err := h.provisioner.CreateEventType(r.Context(), &et)
	h.writeStatuses(w, statuses, err)
}

// DeleteEventType handles DELETE /resources/event-types/{name}.
func (h *Handler) DeleteEventType(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.provisioner.DeleteEventType(r.Context(), chi.URLParam(r, "name"))
	h.writeStatuses(w, statuses, err)
}

// CreateLabels handles POST /resources/labels.
func (h *Handler) CreateLabels(w http.ResponseWriter, r *http.Request) {
	var labels []domain.Label
	if err := json.NewDecoder(r.Body).Decode(&labels); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	statuses, err := h.provisioner.CreateLabels(r.Context(), labels)
	h.writeStatuses(w, statuses, err)
}

// DeleteLabel handles DELETE /resources/labels/{name}.
func (h *Handler) DeleteLabel(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.provisioner.DeleteLabel(r.Context(), chi.URLParam(r, "name"))
	h.writeStatuses(w, statuses, err)
}

// CreateVariables handles POST /resources/variables.
func (h *Handler) CreateVariables(w http.ResponseWriter, r *http.Request) {
	var variables []domain.Variable
	if err := json.NewDecoder(r.Body).Decode(&variables); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	statuses, err := h.provisioner.CreateVariables(r.Context(), variables)
	h.writeStatuses(w, statuses, err)
}

// DeleteVariable handles DELETE /resources/variables/{name}.
func (h *Handler) DeleteVariable(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.provisioner.DeleteVariable(r.Context(), chi.URLParam(r, "name"))
	h.writeStatuses(w, statuses, err)
}

// CreateOutcomes handles POST /resources/outcomes.
func (h *Handler) CreateOutcomes(w http.ResponseWriter, r *http.Request) {
	var outcomes []domain.Outcome
	if err := json.NewDecoder(r.Body).Decode(&outcomes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	statuses, err := h.provisioner.CreateOutcomes(r.Context(), outcomes)
	h.writeStatuses(w, statuses, err)
}

// DeleteOutcome handles DELETE /resources/outcomes/{name}.
func (h *Handler) DeleteOutcome(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.provisioner.DeleteOutcome(r.Context(), chi.URLParam(r, "name"))
	h.writeStatuses(w, statuses, err)
}

// CreateRules handles POST /resources/rules. Rules that fail the
// local lint are rejected before any remote call.
func (h *Handler) CreateRules(w http.ResponseWriter, r *http.Request) {
	var ruleDefs []domain.Rule
	if err := json.NewDecoder(r.Body).Decode(&ruleDefs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(ruleDefs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one rule is required",
		})
		return
	}
	statuses, err := h.provisioner.CreateRules(r.Context(), ruleDefs)
	h.writeStatuses(w, statuses, err)
}

// DeleteRule handles DELETE /resources/rules/{ruleId}. The rule
// version defaults to "1" and can be overridden with ?version=.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")
	version := r.URL.Query().Get("version")
	statuses, err := h.provisioner.DeleteRule(r.Context(), ruleID, version)
	h.writeStatuses(w, statuses, err)
}

// TrainRequest is the request body for POST /models/train.
type TrainRequest struct {
	TrainingDataSchema domain.TrainingDataSchema `json:"trainingDataSchema"`
	DataLocation       string                    `json:"dataLocation"`
	DataAccessRoleARN  string                    `json:"dataAccessRoleArn"`
	Wait               bool                      `json:"wait,omitempty"`
}

// Train handles POST /models/train. With wait=true (body flag or
// ?wait=true) the request blocks until training leaves the in-progress
// state, bounded by the request context.
func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if r.URL.Query().Get("wait") == "true" {
		req.Wait = true
	}

	var external *domain.ExternalEvents
	if req.DataLocation != "" {
		external = &domain.ExternalEvents{
			DataLocation:      req.DataLocation,
			DataAccessRoleARN: req.DataAccessRoleARN,
		}
	}

	statuses, err := h.provisioner.StartTraining(r.Context(), req.TrainingDataSchema, external)
	if err != nil {
		h.writeStatuses(w, statuses, err)
		return
	}

	if req.Wait {
		status, err := h.provisioner.WaitForTraining(r.Context())
		if err != nil {
			slog.Error("training failed", "error", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"error": err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": status})
		return
	}

	h.writeStatuses(w, statuses, nil)
}

// ModelStatus handles GET /models/status.
func (h *Handler) ModelStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.provisioner.ModelStatus(r.Context())
	if err != nil {
		slog.Error("failed to get model status", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// ActivateRequest is the optional request body for POST
// /models/activate. Outcomes listed here are created before the model
// version is promoted; an empty body activates against existing
// outcomes.
type ActivateRequest struct {
	Outcomes []domain.Outcome `json:"outcomes,omitempty"`
}

// Activate handles POST /models/activate.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.provisioner.Activate(r.Context(), req.Outcomes); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, provision.ErrTrainingNotComplete) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": domain.ModelStatusActive})
}

// Deactivate handles POST /models/deactivate.
func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.provisioner.Deactivate(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": domain.ModelStatusInactive})
}

// DeployRequest is the request body for POST /models/deploy.
type DeployRequest struct {
	Rules         []domain.Rule `json:"rules"`
	ExecutionMode string        `json:"executionMode,omitempty"`
}

// Deploy handles POST /models/deploy.
func (h *Handler) Deploy(w http.ResponseWriter, r *http.Request) {
	var req DeployRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Rules) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one rule is required",
		})
		return
	}

	statuses, err := h.provisioner.Deploy(r.Context(), req.Rules, req.ExecutionMode)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, provision.ErrModelNotActive) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]interface{}{
			"error":    err.Error(),
			"statuses": statuses,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"statuses": statuses,
	})
}

// Teardown handles DELETE /models/deploy.
func (h *Handler) Teardown(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.provisioner.Teardown(r.Context())
	h.writeStatuses(w, statuses, err)
}

// PredictRequest is the request body for POST /predict.
type PredictRequest struct {
	EntityID  string            `json:"entityId,omitempty"`
	Timestamp string            `json:"timestamp"`
	Variables map[string]string `json:"variables"`
}

// Predict handles POST /predict.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	var req PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Timestamp == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "timestamp is required",
		})
		return
	}

	prediction, err := h.provisioner.Predict(r.Context(), req.EntityID, req.Timestamp, req.Variables)
	if err != nil {
		slog.Error("prediction failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}

// GetPrediction handles GET /predictions/{eventId}.
func (h *Handler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	rec, err := h.repo.GetPrediction(r.Context(), h.project, eventID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "prediction not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// BatchPredictRequest is the request body for batch prediction.
type BatchPredictRequest struct {
	Events []provision.BatchEvent `json:"events"`
}

// BatchPredict handles POST /predict/batch: events are scored
// sequentially in-request. A mid-batch failure returns the predictions
// collected up to that row.
func (h *Handler) BatchPredict(w http.ResponseWriter, r *http.Request) {
	var req BatchPredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	predictions := h.provisioner.BatchPredict(r.Context(), req.Events)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requested":   len(req.Events),
		"completed":   len(predictions),
		"predictions": predictions,
	})
}

// BatchPredictAsync handles POST /predict/batch/async: the batch is
// queued on the bus and scored by a worker. Results are published on
// the batch result topic.
func (h *Handler) BatchPredictAsync(w http.ResponseWriter, r *http.Request) {
	var req BatchPredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	requestID := uuid.New().String()
	payload, err := json.Marshal(map[string]interface{}{
		"requestId": requestID,
		"events":    req.Events,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to encode batch request",
		})
		return
	}

	if err := h.bus.Publish(r.Context(), h.project, domain.TopicBatchRequest, payload); err != nil {
		slog.Error("failed to queue batch request", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "failed to queue batch request",
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"requestId": requestID,
		"queued":    len(req.Events),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
