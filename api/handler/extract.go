package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/urlgrab/models"
	"github.com/use-agent/urlgrab/runner"
)

// Service is what the handlers need from the runner.
type Service interface {
	Extract(ctx context.Context, req models.ExtractionRequest) models.Result
	Stats() runner.Stats
}

// Extract returns a handler for POST /api/v1/extract.
//
// The body is the same envelope the CLI prints. Success is 200; failures
// map their code to a status (see StatusFor).
func Extract(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.ExtractionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "invalid request body: " + err.Error(),
				Code:  models.ErrCodeInvalidInput,
			})
			return
		}

		// ── 2. Extract ──────────────────────────────────────────────
		res := svc.Extract(c.Request.Context(), req)

		// ── 3. Respond ──────────────────────────────────────────────
		// PureJSON keeps markup readable, matching the CLI output.
		c.PureJSON(StatusFor(res), res)
	}
}

// StatusFor maps a result to an HTTP status.
func StatusFor(res models.Result) int {
	f, ok := res.(models.Failure)
	if !ok {
		return http.StatusOK
	}
	switch f.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case models.ErrCodeNavigation, models.ErrCodeSession, models.ErrCodeBrowserCrash,
		models.ErrCodeLLMFailure, models.ErrCodeLLMAuthFailure, models.ErrCodeLLMRateLimited:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
