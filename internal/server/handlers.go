package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/aether/internal/ingest"
	"github.com/roach88/aether/internal/ir"
	"github.com/roach88/aether/internal/query"
	"github.com/roach88/aether/internal/schema"
)

// Error codes in the "error" field of non-2xx bodies.
const (
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeInvalidJSON     = "INVALID_JSON"
	CodeNotFound        = "NOT_FOUND"
	CodeUnavailable     = "UNAVAILABLE"
	CodeInternal        = "INTERNAL_ERROR"
)

type errorBody struct {
	Error   string                   `json:"error"`
	Details []schema.ValidationError `json:"details,omitempty"`
}

type healthBody struct {
	OK   bool      `json:"ok"`
	Time time.Time `json:"time"`
}

// Submitter accepts a raw batch body. *ingest.Ingestor implements it.
type Submitter interface {
	Submit(ctx context.Context, raw []byte) (*ir.BatchResponse, error)
}

func handleHealth(now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, healthBody{OK: true, Time: now().UTC()})
	}
}

// handleEvents reads the body under the size ceiling, rejects bytes that
// are not JSON, and submits the rest. An empty body is treated as {}.
func handleEvents(sub Submitter, maxBody int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusBadRequest, errorBody{Error: CodePayloadTooLarge})
				return
			}
			c.JSON(http.StatusBadRequest, errorBody{Error: CodeInvalidJSON})
			return
		}
		if len(raw) == 0 {
			raw = []byte("{}")
		}
		if !json.Valid(raw) {
			c.JSON(http.StatusBadRequest, errorBody{Error: CodeInvalidJSON})
			return
		}

		resp, err := sub.Submit(c.Request.Context(), raw)
		if err != nil {
			writeSubmitError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func writeSubmitError(c *gin.Context, err error) {
	var be *ingest.BatchError
	switch {
	case errors.As(err, &be) && be.Code == ingest.CodeSchemaInvalid:
		c.JSON(http.StatusBadRequest, errorBody{Error: be.Code, Details: be.Details})
	case errors.As(err, &be) && be.Code == ingest.CodeResponseInvalid:
		c.JSON(http.StatusInternalServerError, errorBody{Error: be.Code, Details: be.Details})
	case errors.Is(err, ingest.ErrStopped),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, errorBody{Error: CodeUnavailable})
	default:
		slog.Error("submit batch", "request_id", RequestID(c), "error", err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: CodeInternal})
	}
}

func handleBinding(svc *query.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.Binding(c.Param("tagUid"))
		writeLookup(c, v, err)
	}
}

func handlePlacement(svc *query.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.Placement(c.Param("type"), c.Param("id"))
		writeLookup(c, v, err)
	}
}

func handleTransaction(svc *query.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, err := svc.Transaction(c.Param("txId"))
		writeLookup(c, v, err)
	}
}

func writeLookup(c *gin.Context, v any, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, v)
	case errors.Is(err, query.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody{Error: CodeNotFound})
	default:
		slog.Error("lookup", "path", c.Request.URL.Path, "request_id", RequestID(c), "error", err)
		c.JSON(http.StatusInternalServerError, errorBody{Error: CodeInternal})
	}
}

func handleNoRoute(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorBody{Error: CodeNotFound})
}
