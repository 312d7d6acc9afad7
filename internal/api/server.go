// Package api serves the read-only query surface over the projection store
// plus the two off-chain content writes (tasks and dispute reasons).
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"escrowScope/internal/aggregate"
	"escrowScope/internal/storage"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Config for the HTTP API handler.
type Config struct {
	Reader    storage.Reader
	Content   storage.ContentWriter
	Analytics *aggregate.Service
	Logger    *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"escrow base:7: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type service struct {
	reader    storage.Reader
	content   storage.ContentWriter
	analytics *aggregate.Service
	logger    *zap.Logger
}

// New returns an HTTP handler exposing the query API, /metrics and the
// generated OpenAPI document at /openapi.json.
func New(cfg Config) (http.Handler, error) {
	if cfg.Reader == nil {
		return nil, errors.New("api: reader is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Analytics == nil {
		cfg.Analytics = aggregate.NewService(cfg.Reader)
	}
	s := &service{
		reader:    cfg.Reader,
		content:   cfg.Content,
		analytics: cfg.Analytics,
		logger:    cfg.Logger,
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(normalizeStatus(status, msg), "", msg, errorDetails(errs))
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(normalizeStatus(status, msg), "", msg, errorDetails(errs))
	}

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())

	hcfg := huma.DefaultConfig("Escrow Indexer API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)

	registerHealth(api, s)
	registerEscrows(api, s)
	registerAgents(api, s)
	registerTasks(api, s)
	registerDisputes(api, s)
	registerAnalytics(api, s)

	return cors.Default().Handler(router), nil
}

// normalizeStatus turns request validation failures into 400s.
func normalizeStatus(status int, msg string) int {
	if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
		return http.StatusBadRequest
	}
	return status
}

func errorDetails(errs []error) map[string]any {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return map[string]any{"errors": msgs}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func badRequest(msg string) huma.StatusError {
	return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
}

// handleError maps store errors. Not found is a normal outcome and never
// masked by a zeroed record.
func (s *service) handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, context.Canceled) {
		return newAPIError(http.StatusServiceUnavailable, "canceled", "request canceled", nil)
	}
	s.logger.Error("request failed", zap.Error(err))
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

type healthOutput struct {
	Body map[string]string `json:"body"`
}

func registerHealth(api huma.API, s *service) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Errors:      []int{http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		if err := s.reader.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			return nil, newAPIError(http.StatusServiceUnavailable, "unavailable", "store unavailable", nil)
		}
		return &healthOutput{Body: map[string]string{"status": "ok"}}, nil
	})
}
