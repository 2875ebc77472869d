package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rosevoul/recserve/internal/domain"
	healthuc "github.com/rosevoul/recserve/internal/usecase/health"
	pipelineuc "github.com/rosevoul/recserve/internal/usecase/pipeline"
)

const maxRequestK = 200

// Recommender runs the candidate serving pipeline.
type Recommender interface {
	Recommend(ctx context.Context, req pipelineuc.Request) (pipelineuc.Response, error)
}

// HealthService aggregates component health checks.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}

type errorCode string

const (
	codeBadRequest   errorCode = "bad_request"
	codeUnauthorized errorCode = "unauthorized"
	codeUpstream     errorCode = "upstream_error"
	codeInternal     errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// Server exposes the pipeline over HTTP.
type Server struct {
	pipeline Recommender
	health   HealthService
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(pipeline Recommender, health HealthService, logger *zap.Logger) *Server {
	return &Server{pipeline: pipeline, health: health, logger: logger}
}

type recommendContext struct {
	Surface string `json:"surface"`
	Locale  string `json:"locale"`
}

type recommendRequest struct {
	UserID  string           `json:"user_id"`
	Query   string           `json:"query"`
	K       int              `json:"k"`
	Context recommendContext `json:"context"`
}

type rankedItemDTO struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

type diagnosticsDTO struct {
	Mode               string           `json:"mode"`
	Availability       float64          `json:"availability"`
	StrategiesFellBack []string         `json:"strategies_fell_back,omitempty"`
	RerankApplied      bool             `json:"rerank_applied"`
	RerankSkip         string           `json:"rerank_skip,omitempty"`
	StageLatenciesMs   map[string]int64 `json:"stage_latencies_ms"`
}

type recommendResponse struct {
	RequestID    string          `json:"request_id"`
	Ranked       []rankedItemDTO `json:"ranked"`
	ModelVersion string          `json:"model_version"`
	Diagnostics  diagnosticsDTO  `json:"diagnostics"`
}

// Recommend handles POST /v1/recommendations.
func (s *Server) Recommend(w http.ResponseWriter, r *http.Request) {
	var req recommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.UserID == "" && req.Query == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "user_id or query is required")
		return
	}
	if req.K < 0 || req.K > maxRequestK {
		writeError(w, http.StatusBadRequest, codeBadRequest, "k must be between 0 and 200")
		return
	}

	res, err := s.pipeline.Recommend(r.Context(), pipelineuc.Request{
		UserID: req.UserID,
		Query:  req.Query,
		K:      req.K,
		Context: pipelineuc.Context{
			Surface: req.Context.Surface,
			Locale:  req.Context.Locale,
		},
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	ranked := make([]rankedItemDTO, len(res.Ranked))
	for i, it := range res.Ranked {
		ranked[i] = rankedItemDTO{ItemID: it.ItemID, Score: it.Score}
	}

	writeJSON(w, http.StatusOK, recommendResponse{
		RequestID:    res.RequestID,
		Ranked:       ranked,
		ModelVersion: res.ModelVersion,
		Diagnostics: diagnosticsDTO{
			Mode:               string(res.Diagnostics.Mode),
			Availability:       res.Diagnostics.Availability,
			StrategiesFellBack: res.Diagnostics.StrategiesFellBack,
			RerankApplied:      res.Diagnostics.RerankApplied,
			RerankSkip:         res.Diagnostics.RerankSkip,
			StageLatenciesMs:   res.Diagnostics.StageLatenciesMs,
		},
	})
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// handleDomainError maps pipeline errors to HTTP statuses. Anything that
// reaches here is a configuration fault or a dead backing store: the
// pipeline's fail-open paths absorb everything else.
func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrUnknownIndexVersion),
		errors.Is(err, domain.ErrVersionMismatch):
		s.logger.Error("Pipeline misconfiguration", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "service misconfigured")
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		s.logger.Warn("Embedding provider error", zap.Error(err))
		writeError(w, http.StatusBadGateway, codeUpstream, domain.ErrEmbeddingProviderError.Error())
	default:
		s.logger.Error("Internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
	}
}
