package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apperrors "github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/errors"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/health"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/services"
	"github.com/aws-solutions/generative-ai-application-builder-on-aws-sub011/tracing"
)

const healthCheckTimeout = 2 * time.Second

type errorResponse struct {
	Error string `json:"error"`
}

type HTTPHandler struct {
	files  services.FileService
	checks []health.ReadinessCheck
	logger *zap.SugaredLogger
}

func NewHTTPHandler(files services.FileService, logger *zap.SugaredLogger, checks ...health.ReadinessCheck) *HTTPHandler {
	return &HTTPHandler{files: files, checks: checks, logger: logger}
}

func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	files := r.Group("/files")
	files.Use(UserIdentityRequired())
	{
		files.POST("/:useCaseId", h.uploadFiles)
		files.DELETE("/:useCaseId", h.deleteFiles)
		files.GET("/:useCaseId", h.downloadFile)
	}
}

func (h *HTTPHandler) uploadFiles(c *gin.Context) {
	userID, ok := userFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "user identity is required"})
		return
	}

	req, err := BuildUploadRequest(c, userID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	resp, err := h.files.Upload(c.Request.Context(), *req)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) deleteFiles(c *gin.Context) {
	userID, ok := userFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "user identity is required"})
		return
	}

	req, err := BuildDeleteRequest(c, userID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	resp, err := h.files.Delete(c.Request.Context(), *req)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) downloadFile(c *gin.Context) {
	userID, ok := userFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "user identity is required"})
		return
	}

	req, err := BuildGetRequest(c, userID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	resp, err := h.files.Download(c.Request.Context(), *req)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *HTTPHandler) healthCheck(c *gin.Context) {
	results, ready := health.RunChecks(c.Request.Context(), healthCheckTimeout, h.checks...)

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": ready, "checks": results})
}

// renderError maps the error taxonomy onto transport statuses. Anything
// outside the mapped kinds is answered with the trace-id-bearing generic
// message and logged with full detail.
func (h *HTTPHandler) renderError(c *gin.Context, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case apperrors.KindCapabilityDisabled:
		c.JSON(http.StatusForbidden, errorResponse{Error: err.Error()})
	case apperrors.KindNotFound:
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case apperrors.KindConflict:
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		traceID := tracing.TraceID(c.Request.Context())
		h.logger.Errorw("request failed",
			"method", c.Request.Method, "path", c.FullPath(), "traceId", traceID, "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{Error: apperrors.Internal(traceID).Error()})
	}
}
