package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rezonia/fiscal-xml/internal/model"
	"github.com/rezonia/fiscal-xml/internal/processor"
)

// classify maps a pipeline error to an HTTP status and an error type
func classify(err error) (int, string) {
	var (
		structural  *model.StructuralValidationError
		field       *model.FieldExtractionError
		key         *model.KeyFormatError
		date        *model.DateParseError
		integration *model.IntegrationError
		generation  *model.GenerationError
	)

	switch {
	case errors.As(err, &structural):
		return http.StatusUnprocessableEntity, "structural_validation"
	case errors.As(err, &field):
		return http.StatusUnprocessableEntity, "field_extraction"
	case errors.As(err, &key):
		return http.StatusUnprocessableEntity, "key_format"
	case errors.As(err, &date):
		return http.StatusUnprocessableEntity, "date_parse"
	case errors.As(err, &integration):
		return http.StatusBadGateway, "integration"
	case errors.Is(err, processor.ErrNoTaxClient):
		return http.StatusServiceUnavailable, "tax_client_unavailable"
	case errors.As(err, &generation):
		return http.StatusInternalServerError, "generation"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func respondError(c *gin.Context, err error) {
	status, kind := classify(err)
	_ = c.Error(err)
	c.JSON(status, ErrorResponse{
		Error: err.Error(),
		Type:  kind,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Type: "invalid_request"})
}
