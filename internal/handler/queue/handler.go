// Package queue serves the staff queue endpoints: calling patients, pausing
// and the daily board.
package queue

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue/internal/handler"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/service/appointment"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	q := r.Group("/queue")
	{
		q.GET("", h.Board)
		q.GET("/settings", h.Settings)
		q.POST("/pause", h.Pause)
		q.POST("/resume", h.Resume)
		q.POST("/:entryId/call", h.Call)
	}
}

// Call claims a dentist and a room for the entry and starts treatment.
func (h *Handler) Call(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "entryId")
	if !ok {
		return
	}
	var req model.ClinicLocationRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	res, err := h.service.CallPatient(c.Request.Context(), id, req.ClinicLocation, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}

func (h *Handler) Pause(c *gin.Context) {
	var req model.ClinicLocationRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	st, err := h.service.PauseQueue(c.Request.Context(), req.ClinicLocation, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, st)
}

func (h *Handler) Resume(c *gin.Context) {
	var req model.ClinicLocationRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	st, err := h.service.ResumeQueue(c.Request.Context(), req.ClinicLocation, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, st)
}

type boardQuery struct {
	ClinicLocation string `form:"clinic_location" binding:"required"`
	Date           string `form:"date" binding:"omitempty,clinicdate"`
}

func (h *Handler) Board(c *gin.Context) {
	var q boardQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	var day time.Time
	if q.Date != "" {
		day, _ = time.Parse(model.DateLayout, q.Date)
	}
	items, err := h.service.QueueBoard(c.Request.Context(), q.ClinicLocation, day)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, items)
}

func (h *Handler) Settings(c *gin.Context) {
	st, err := h.service.QueueSettings(c.Request.Context(), c.Query("clinic_location"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, st)
}
