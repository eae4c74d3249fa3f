package responses

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"jan-server/services/query-tools/utils/platformerrors"
)

type ErrorResponse struct {
	Code          string                   `json:"code"` // UUID from PlatformError
	Type          platformerrors.ErrorType `json:"type,omitempty"`
	Error         string                   `json:"error"`
	ErrorInstance error                    `json:"-"`
	RequestID     string                   `json:"request_id,omitempty"`
}

// HandleError writes err as a JSON error. The status comes from the error type;
// non-platform errors are 500s.
func HandleError(reqCtx *gin.Context, err error, message string) {
	var domainErr *platformerrors.PlatformError
	if errors.As(err, &domainErr) {
		if message == "" {
			message = domainErr.Detail()
		}
		reqCtx.Error(domainErr)
		reqCtx.AbortWithStatusJSON(platformerrors.ErrorTypeToHTTPStatus(domainErr.GetErrorType()), ErrorResponse{
			Code:          domainErr.GetUUID(),
			Type:          domainErr.GetErrorType(),
			Error:         message,
			ErrorInstance: domainErr,
			RequestID:     domainErr.GetRequestID(),
		})
		return
	}

	if message == "" {
		message = "internal server error"
	}
	reqCtx.Error(err)
	reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
		Type:          platformerrors.ErrorTypeInternal,
		Error:         message,
		ErrorInstance: err,
	})
}

// HandleNewError creates a new typed error at the route layer and handles it
func HandleNewError(reqCtx *gin.Context, errorType platformerrors.ErrorType, message string) {
	err := platformerrors.NewError(reqCtx.Request.Context(), platformerrors.LayerRoute, errorType, message, nil)
	HandleError(reqCtx, err, message)
}

type GeneralResponse[T any] struct {
	Status string `json:"status"`
	Result T      `json:"result"`
}
