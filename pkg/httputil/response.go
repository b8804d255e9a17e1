package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code     int         `json:"code"`
	Kind     errors.Kind `json:"kind"`
	Message  string      `json:"message"`
	Resource string      `json:"resource,omitempty"`
}

// Pagination represents pagination metadata
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Count    int `json:"count"`
}

// PaginatedResponse wraps paginated data
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind errors.Kind) int {
	switch kind {
	case errors.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case errors.KindResourceUnavailable, errors.KindConcurrencyConflict:
		return http.StatusConflict
	case errors.KindQueuePaused:
		return http.StatusLocked
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindUnauthorized:
		return http.StatusUnauthorized
	case errors.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError sends an error response. Internal errors never leak their
// cause to the client.
func RespondWithError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.NewInternal(err)
	}
	status := StatusFor(appErr.Kind)
	message := appErr.Message
	if appErr.Kind == errors.KindInternal {
		message = "internal server error"
	}

	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error: &Error{
			Code:     int(appErr.Code),
			Kind:     appErr.Kind,
			Message:  message,
			Resource: appErr.Resource,
		},
	})
}

// RespondWithPagination sends a paginated response
func RespondWithPagination(c *gin.Context, data interface{}, page, pageSize, count int) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: PaginatedResponse{
			Data: data,
			Pagination: Pagination{
				Page:     page,
				PageSize: pageSize,
				Count:    count,
			},
		},
	})
}
