// Package handler holds the helpers shared by the HTTP handlers.
package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue/internal/middleware"
	"github.com/jwalitptl/clinic-queue/internal/model"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/validator"
)

// Actor returns the authenticated staff member behind the request.
func Actor(c *gin.Context) string {
	if a := c.GetString(middleware.ContextActorID); a != "" {
		return a
	}
	return model.SystemActor
}

// Fail hands err to the error middleware and stops the chain.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// UUIDParam parses a path parameter. On failure the request is already
// answered.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		Fail(c, apperrors.Validation("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// BindJSON decodes and validates the body into req.
func BindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		Fail(c, apperrors.Validation(validator.Describe(err), err))
		return false
	}
	return true
}

// BindQuery decodes and validates query parameters into req.
func BindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		Fail(c, apperrors.Validation(validator.Describe(err), err))
		return false
	}
	return true
}
