package appointment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lakany/clinic-api/internal/handler"
	"github.com/lakany/clinic-api/internal/model"
	"github.com/lakany/clinic-api/internal/service/appointment"
	apperrors "github.com/lakany/clinic-api/pkg/errors"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

// RegisterPublicRoutes mounts the routes reachable without a token
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/appointments/clinic-status", h.GetClinicStatus)
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.GET("", h.ListAppointments)
		appointments.POST("", h.CreateAppointment)
		appointments.GET("/slots", h.GetAvailableSlots)
		appointments.GET("/doctor-schedule", h.GetDoctorSchedule)
		appointments.GET("/my-appointments", h.GetMyAppointments)
		appointments.GET("/:id", h.GetAppointment)
		appointments.GET("/:id/audit", h.GetAppointmentHistory)
		appointments.PATCH("/:id", h.UpdateAppointment)
		appointments.PATCH("/:id/cancel", h.CancelAppointment)
		appointments.PATCH("/:id/finalize", h.FinalizeAppointment)
		appointments.PATCH("/:id/no-show", h.MarkNoShow)
	}

	r.PATCH("/doctors/availability", h.SetAvailability)
}

func appointmentID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperrors.Validation("Invalid appointment ID.", err)
	}
	return id, nil
}

func (h *Handler) ListAppointments(c *gin.Context) {
	caller, err := handler.Identity(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	list, err := h.service.ListAppointments(c.Request.Context(), caller)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(list, len(list)))
}

func (h *Handler) GetAvailableSlots(c *gin.Context) {
	caller, err := handler.Identity(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var q model.SlotQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		handler.Fail(c, handler.BindError(err))
		return
	}

	res, err := h.service.GetAvailableSlots(c.Request.Context(), caller, q)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, &handler.Response{Success: true, Data: res.Slots, Message: res.Message})
}

func (h *Handler) GetDoctorSchedule(c *gin.Context) {
	caller, err := handler.Identity(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	list, err := h.service.GetDoctorSchedule(c.Request.Context(), caller)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(list, len(list)))
}

func (h *Handler) GetMyAppointments(c *gin.Context) {
	caller, err := handler.Identity(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	list, err := h.service.GetMyAppointments(c.Request.Context(), caller)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(list, len(list)))
}

// GetClinicStatus replies with status and message at the top level, outside the data envelope
func (h *Handler) GetClinicStatus(c *gin.Context) {
	status, err := h.service.GetClinicStatus(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  status.Status,
		"message": status.Message,
	})
}

func (h *Handler) CreateAppointment(c *gin.Context) {
	caller, err := handler.Identity(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, handler.BindError(err))
		return
	}

	apt, err := h.service.CreateAppointment(c.Request.Context(), caller, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(apt))
}

func (h *Handler) GetAppointment(c *gin.Context) {
	caller, err := handler.Identity(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	id, err := appointmentID(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	apt, err := h.service.GetAppointment(c.Request.Context(), caller, id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	caller, err := handler.Identity(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	id, err := appointmentID(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	apt, err := h.service.CancelAppointment(c.Request.Context(), caller, id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, &handler.Response{Success: true, Data: apt, Message: "Appointment cancelled successfully."})
}

func (h *Handler) FinalizeAppointment(c *gin.Context) {
	caller, err := handler.Identity(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	id, err := appointmentID(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var req model.FinalizeAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, handler.BindError(err))
		return
	}

	apt, err := h.service.FinalizeAppointment(c.Request.Context(), caller, id, *req.Fee)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) MarkNoShow(c *gin.Context) {
	caller, err := handler.Identity(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	id, err := appointmentID(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	apt, err := h.service.MarkNoShow(c.Request.Context(), caller, id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) UpdateAppointment(c *gin.Context) {
	caller, err := handler.Identity(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	id, err := appointmentID(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var patch model.AppointmentPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		handler.Fail(c, handler.BindError(err))
		return
	}

	apt, err := h.service.UpdateAppointment(c.Request.Context(), caller, id, &patch)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) GetAppointmentHistory(c *gin.Context) {
	caller, err := handler.Identity(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	id, err := appointmentID(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	logs, err := h.service.AppointmentHistory(c.Request.Context(), caller, id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewListResponse(logs, len(logs)))
}

func (h *Handler) SetAvailability(c *gin.Context) {
	caller, err := handler.Identity(c)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	var req model.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.Fail(c, handler.BindError(err))
		return
	}

	res, err := h.service.SetAvailability(c.Request.Context(), caller, req.DoctorID, *req.IsAvailable)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(res))
}
