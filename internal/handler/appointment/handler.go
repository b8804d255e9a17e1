package appointment

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue/internal/handler"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/service/appointment"
	"github.com/jwalitptl/clinic-queue/internal/service/audit"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

type Handler struct {
	service *appointment.Service
	audit   *audit.Service
}

func NewHandler(service *appointment.Service, audit *audit.Service) *Handler {
	return &Handler{service: service, audit: audit}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appts := r.Group("/appointments")
	{
		appts.POST("", h.Book)
		appts.POST("/walk-in", h.WalkIn)
		appts.GET("", h.List)
		appts.GET("/:id", h.Get)
		appts.GET("/:id/history", h.History)
		appts.POST("/:id/check-in", h.CheckIn)
		appts.POST("/:id/complete", h.Complete)
		appts.POST("/:id/transition", h.Transition)
		appts.POST("/:id/force-complete", h.ForceComplete)
		appts.POST("/:id/override", h.Override)
		appts.DELETE("/:id", h.Delete)
		appts.POST("/:id/restore", h.Restore)
	}
}

// RegisterPublicRoutes mounts the unauthenticated visit tracking route.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/visits/:code", h.Visit)
}

func (h *Handler) Book(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	appt, err := h.service.Book(c.Request.Context(), &req, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithCreated(c, appt)
}

func (h *Handler) WalkIn(c *gin.Context) {
	var req model.WalkInRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	res, err := h.service.CreateWalkIn(c.Request.Context(), &req, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithCreated(c, res)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	appt, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appt)
}

type listQuery struct {
	ClinicLocation string `form:"clinic_location"`
	Status         string `form:"status" binding:"omitempty,appointmentstatus"`
	From           string `form:"from" binding:"omitempty,clinicdate"`
	To             string `form:"to" binding:"omitempty,clinicdate"`
	IncludeDeleted bool   `form:"include_deleted"`
	model.Pagination
}

func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if !handler.BindQuery(c, &q) {
		return
	}
	filter := model.AppointmentFilter{
		ClinicLocation: q.ClinicLocation,
		Status:         model.AppointmentStatus(q.Status),
		IncludeDeleted: q.IncludeDeleted,
		Pagination:     q.Pagination,
	}
	if q.From != "" {
		from, _ := time.Parse(model.DateLayout, q.From)
		filter.From = &from
	}
	if q.To != "" {
		to, _ := time.Parse(model.DateLayout, q.To)
		to = to.AddDate(0, 0, 1)
		filter.To = &to
	}

	list, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	httputil.RespondWithPagination(c, list, page, q.Limit(), len(list))
}

// History returns the audit trail of one appointment.
func (h *Handler) History(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	logs, err := h.audit.List(c.Request.Context(), model.AuditEntityAppointment, id)
	if err != nil {
		handler.Fail(c, apperrors.NewInternal(err))
		return
	}
	httputil.RespondWithSuccess(c, logs)
}

func (h *Handler) CheckIn(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	res, err := h.service.CheckIn(c.Request.Context(), id, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}

func (h *Handler) Complete(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	res, err := h.service.CompleteTreatment(c.Request.Context(), id, handler.Actor(c))
	if err != nil {
		failReplay(c, err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}

func (h *Handler) Transition(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.TransitionRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	res, err := h.service.Transition(c.Request.Context(), id, req.Status, req.Reason, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}

func (h *Handler) ForceComplete(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.ForceCompleteRequest
	if c.Request.ContentLength > 0 && !handler.BindJSON(c, &req) {
		return
	}
	res, err := h.service.ForceComplete(c.Request.Context(), id, req.Reason, handler.Actor(c))
	if err != nil {
		failReplay(c, err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}

func (h *Handler) Override(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.OverrideRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	res, err := h.service.Override(c.Request.Context(), id, req.Status, req.Reason, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, res)
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.SoftDelete(c.Request.Context(), id, handler.Actor(c)); err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, gin.H{"id": id, "deleted": true})
}

func (h *Handler) Restore(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	appt, err := h.service.Restore(c.Request.Context(), id, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appt)
}

// visitView is what patients see when tracking a visit.
type visitView struct {
	VisitCode      string                  `json:"visit_code"`
	Status         model.AppointmentStatus `json:"status"`
	ClinicLocation string                  `json:"clinic_location"`
	ScheduledAt    time.Time               `json:"scheduled_at"`
	CheckedInAt    *time.Time              `json:"checked_in_at,omitempty"`
	CalledAt       *time.Time              `json:"called_at,omitempty"`
}

func (h *Handler) Visit(c *gin.Context) {
	appt, err := h.service.GetByVisitCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, visitView{
		VisitCode:      appt.VisitCode,
		Status:         appt.Status,
		ClinicLocation: appt.ClinicLocation,
		ScheduledAt:    appt.ScheduledAt,
		CheckedInAt:    appt.CheckedInAt,
		CalledAt:       appt.CalledAt,
	})
}

// failReplay reports how far a partial replay got next to the error.
func failReplay(c *gin.Context, err error) {
	var replay *appointment.ReplayError
	if errors.As(err, &replay) {
		c.Set("replay_reached", string(replay.Reached))
		c.Header("X-Replay-Reached", string(replay.Reached))
	}
	handler.Fail(c, err)
}
