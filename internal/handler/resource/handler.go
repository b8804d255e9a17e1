package resource

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-queue/internal/handler"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/service/resource"
	"github.com/jwalitptl/clinic-queue/pkg/httputil"
)

type Handler struct {
	service *resource.Service
}

func NewHandler(service *resource.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	dentists := r.Group("/dentists")
	{
		dentists.POST("", h.CreateDentist)
		dentists.GET("", h.ListDentists)
		dentists.GET("/:id", h.GetDentist)
		dentists.PUT("/:id/availability", h.SetAvailability)
		dentists.PUT("/:id/active", h.SetDentistActive)
	}
	rooms := r.Group("/rooms")
	{
		rooms.POST("", h.CreateRoom)
		rooms.GET("", h.ListRooms)
		rooms.PUT("/:id/active", h.SetRoomActive)
	}
}

func (h *Handler) CreateDentist(c *gin.Context) {
	var req model.CreateDentistRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	d, err := h.service.CreateDentist(c.Request.Context(), &req, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithCreated(c, d)
}

func (h *Handler) ListDentists(c *gin.Context) {
	list, err := h.service.ListDentists(c.Request.Context(), c.Query("clinic_location"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, list)
}

func (h *Handler) GetDentist(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	d, err := h.service.GetDentist(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, d)
}

func (h *Handler) SetAvailability(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.SetAvailabilityRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	d, err := h.service.SetDentistAvailability(c.Request.Context(), id, req.Availability, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, d)
}

func (h *Handler) SetDentistActive(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.SetActiveRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	d, err := h.service.SetDentistActive(c.Request.Context(), id, *req.Active, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, d)
}

func (h *Handler) CreateRoom(c *gin.Context) {
	var req model.CreateRoomRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	room, err := h.service.CreateRoom(c.Request.Context(), &req, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithCreated(c, room)
}

func (h *Handler) ListRooms(c *gin.Context) {
	list, err := h.service.ListRooms(c.Request.Context(), c.Query("clinic_location"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, list)
}

func (h *Handler) SetRoomActive(c *gin.Context) {
	id, ok := handler.UUIDParam(c, "id")
	if !ok {
		return
	}
	var req model.SetActiveRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	room, err := h.service.SetRoomActive(c.Request.Context(), id, *req.Active, handler.Actor(c))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	httputil.RespondWithSuccess(c, room)
}
