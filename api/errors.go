package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/payroll_backend/config"
	"github.com/mmdatafocus/payroll_backend/models"
	"github.com/mmdatafocus/payroll_backend/utils"
)

// StatusFor maps an error kind to the HTTP status the admin API answers with.
func StatusFor(kind models.ErrorKind) int {
	switch kind {
	case models.ErrorKindNone:
		return http.StatusOK
	case models.ErrorKindValidation:
		return http.StatusBadRequest
	case models.ErrorKindNotAuthorized:
		return http.StatusForbidden
	case models.ErrorKindNotFound:
		return http.StatusNotFound
	case models.ErrorKindLocked, models.ErrorKindInvalidTransition, models.ErrorKindUniqueConflict, models.ErrorKindStale:
		return http.StatusConflict
	case models.ErrorKindExternalFetch:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error         string           `json:"error"`
	Kind          models.ErrorKind `json:"kind"`
	Field         string           `json:"field,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
}

func (h *Handler) abortWithError(c *gin.Context, funcName string, err error) {
	kind := models.KindOf(err)
	status := StatusFor(kind)
	body := errorBody{Error: err.Error(), Kind: kind}
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	body.CorrelationID, _ = utils.GetCorrelationIdFromContext(c.Request.Context())
	if status >= http.StatusInternalServerError {
		config.LogError(h.logger, "api", funcName, c.Request.Method+" "+c.FullPath(), body.CorrelationID, err)
		if status == http.StatusInternalServerError {
			body.Error = "internal error"
		}
	}
	c.AbortWithStatusJSON(status, body)
}
