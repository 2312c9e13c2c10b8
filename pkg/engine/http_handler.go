package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/arazvan-ec/contentapi/internal/governance"
	"github.com/arazvan-ec/contentapi/pkg/domain"
	"github.com/arazvan-ec/contentapi/pkg/engine/dispatch"
)

// HeaderRequestID carries the correlation identifier of a request.
const HeaderRequestID = "X-Request-ID"

// ContentRoute is the path pattern served by ContentHandler.
const ContentRoute = "GET /v1/contents/{id}"

// ContentResolver is satisfied by *Orchestrator.
type ContentResolver interface {
	Resolve(ctx context.Context, contentID string) (*domain.Response, error)
}

// ContentHandler exposes the orchestrator over HTTP.
type ContentHandler struct {
	resolver ContentResolver
	logger   *slog.Logger
}

// ContentHandlerConfig holds configuration for creating a ContentHandler.
type ContentHandlerConfig struct {
	Resolver ContentResolver
	Logger   *slog.Logger
}

// NewContentHandler constructs the handler. It panics without a resolver.
func NewContentHandler(cfg ContentHandlerConfig) *ContentHandler {
	if cfg.Resolver == nil {
		panic("engine: content resolver is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ContentHandler{resolver: cfg.Resolver, logger: logger}
}

// Routes returns a mux serving ContentRoute, instrumented with otelhttp.
func (h *ContentHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(ContentRoute, h)
	return otelhttp.NewHandler(mux, "contentapi.http")
}

// ServeHTTP implements http.Handler.
func (h *ContentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(HeaderRequestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set(HeaderRequestID, requestID)
	ctx := WithRequestID(r.Context(), requestID)

	contentID := r.PathValue("id")
	if contentID == "" {
		h.writeErrorResponse(ctx, w, http.StatusBadRequest, "INVALID_REQUEST", "content id is required")
		return
	}

	response, err := h.resolver.Resolve(ctx, contentID)
	if err != nil {
		status, code, message := classifyError(err)
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		attrs := []any{
			"content_id", contentID,
			"request_id", requestID,
			"status", status,
			"error", err,
		}
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) && len(domainErr.Details) > 0 {
			attrs = append(attrs, "details", domainErr.Details)
		}
		h.logger.Log(ctx, level, "content resolution failed", attrs...)
		h.writeErrorResponse(ctx, w, status, code, message)
		return
	}

	h.writeResponse(ctx, w, response)
}

// classifyError maps a pipeline error to an HTTP status, error code and message.
// The status always follows the wrapped sentinel; a *domain.DomainError in the
// chain supplies the code and message.
func classifyError(err error) (int, string, string) {
	status, code, message := classifySentinel(err)
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		if domainErr.Code != "" {
			code = domainErr.Code
		}
		if domainErr.Message != "" {
			message = domainErr.Message
		}
	}
	return status, code, message
}

func classifySentinel(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrNotPublished):
		return http.StatusNotFound, "NOT_PUBLISHED", "content is not published"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "content not found"
	case errors.Is(err, governance.ErrRequestTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT", "content resolution timed out"
	case errors.Is(err, domain.ErrUpstreamUnreachable):
		return http.StatusBadGateway, "UPSTREAM_ERROR", "an upstream service failed"
	case errors.Is(err, domain.ErrNoResponse),
		errors.Is(err, dispatch.ErrHandlerNotFound),
		errors.Is(err, dispatch.ErrDuplicateRegistration),
		errors.Is(err, domain.ErrConfigInvalid):
		return http.StatusInternalServerError, "PIPELINE_ERROR", "pipeline execution failed"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal error"
	}
}

func (h *ContentHandler) writeResponse(ctx context.Context, w http.ResponseWriter, response *domain.Response) {
	for key, values := range response.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	status := response.Status
	if status == 0 {
		status = http.StatusOK
	}
	if response.Body == nil {
		w.WriteHeader(status)
		return
	}

	if errResp, ok := response.Body.(domain.ErrorResponse); ok && errResp.RequestID == "" {
		errResp.RequestID = RequestIDFromContext(ctx)
		response.Body = errResp
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response.Body); err != nil {
		h.logger.Error("failed to encode response", "error", err, "request_id", RequestIDFromContext(ctx))
	}
}

func (h *ContentHandler) writeErrorResponse(ctx context.Context, w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := domain.ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: RequestIDFromContext(ctx),
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		resp.TraceID = sc.TraceID().String()
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
