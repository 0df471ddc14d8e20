package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/millroll/internal/erp"
	inputrolldomain "github.com/smallbiznis/millroll/internal/inputroll/domain"
	jobdomain "github.com/smallbiznis/millroll/internal/job/domain"
	machinedomain "github.com/smallbiznis/millroll/internal/machine/domain"
	outputrolldomain "github.com/smallbiznis/millroll/internal/outputroll/domain"
	postingdomain "github.com/smallbiznis/millroll/internal/posting/domain"
	"github.com/smallbiznis/millroll/internal/provenance"
	"github.com/smallbiznis/millroll/internal/sequence"
	"github.com/smallbiznis/millroll/pkg/db"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	// ERP text is surfaced verbatim so operators can act on it.
	var postingErr *erp.PostingError
	if errors.As(err, &postingErr) {
		typ := "erp_error"
		if postingErr.Kind == erp.KindConfig {
			typ = "erp_configuration_error"
		}
		return http.StatusBadGateway, errorPayload{
			Type:    typ,
			Message: postingErr.Message,
		}
	}

	switch {
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case provenance.IsResolutionError(err):
		return http.StatusInternalServerError, errorPayload{
			Type:    "provenance_error",
			Message: "failed to resolve input batch provenance",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds error_type and error_code to the access log.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError {
		var se *db.StorageError
		if errors.As(err, &se) {
			return payload.Type, string(se.Kind)
		}
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isJobValidationError(err),
		isInputRollValidationError(err),
		isOutputRollValidationError(err),
		isPostingValidationError(err),
		isSequenceValidationError(err):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, jobdomain.ErrJobEnded),
		errors.Is(err, jobdomain.ErrMachineMismatch),
		errors.Is(err, inputrolldomain.ErrAlreadyEnded),
		errors.Is(err, outputrolldomain.ErrAlreadyReconciled),
		errors.Is(err, outputrolldomain.ErrAllocationExhausted),
		errors.Is(err, sequence.ErrRollNumberRange),
		errors.Is(err, postingdomain.ErrNotPending),
		db.IsKind(err, db.KindConflict):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, jobdomain.ErrJobEnded):
		return "job already ended"
	case errors.Is(err, jobdomain.ErrMachineMismatch):
		return "production order is running on another machine"
	case errors.Is(err, inputrolldomain.ErrAlreadyEnded):
		return "input roll already ended"
	case errors.Is(err, outputrolldomain.ErrAlreadyReconciled):
		return "output roll already reconciled"
	case errors.Is(err, outputrolldomain.ErrAllocationExhausted):
		return "could not allocate a roll number, retry"
	case errors.Is(err, sequence.ErrRollNumberRange):
		return "no roll numbers left for this job today"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, machinedomain.ErrNotFound),
		errors.Is(err, jobdomain.ErrNotFound),
		errors.Is(err, inputrolldomain.ErrNotFound),
		errors.Is(err, outputrolldomain.ErrNotFound),
		db.IsKind(err, db.KindNotFound):
		return true
	default:
		return false
	}
}

func isJobValidationError(err error) bool {
	switch err {
	case jobdomain.ErrInvalidMachine,
		jobdomain.ErrInvalidShift,
		jobdomain.ErrInvalidProductionOrder,
		machinedomain.ErrMissingLabel:
		return true
	default:
		return false
	}
}

func isInputRollValidationError(err error) bool {
	switch err {
	case inputrolldomain.ErrInvalidJob,
		inputrolldomain.ErrInvalidBatch,
		inputrolldomain.ErrInvalidMaterial,
		inputrolldomain.ErrInvalidWeight,
		inputrolldomain.ErrInvalidUnit,
		inputrolldomain.ErrInvalidPostingDate,
		inputrolldomain.ErrInvalidProductionOrder,
		inputrolldomain.ErrBatchMismatch,
		inputrolldomain.ErrUnknownInputRoll:
		return true
	default:
		return false
	}
}

func isOutputRollValidationError(err error) bool {
	switch err {
	case outputrolldomain.ErrInvalidJob,
		outputrolldomain.ErrInvalidInputRoll,
		outputrolldomain.ErrInputRollMismatch,
		outputrolldomain.ErrInvalidMeter,
		outputrolldomain.ErrInvalidCoreWeight,
		outputrolldomain.ErrInvalidWeight,
		outputrolldomain.ErrInvalidFlagCount,
		outputrolldomain.ErrInvalidStatus,
		outputrolldomain.ErrInvalidFilter:
		return true
	default:
		return false
	}
}

func isPostingValidationError(err error) bool {
	switch err {
	case postingdomain.ErrInvalidKind,
		postingdomain.ErrInvalidStatus,
		postingdomain.ErrInvalidReference:
		return true
	default:
		return false
	}
}

func isSequenceValidationError(err error) bool {
	switch err {
	case sequence.ErrInvalidShift,
		sequence.ErrInvalidShiftsPerDay,
		sequence.ErrEmptyMachineLabel:
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}
