package handlers

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/gin-gonic/gin"

	"healthcare-scheduler/internal/middleware"
	"healthcare-scheduler/internal/models"
	"healthcare-scheduler/internal/scheduler"
	"healthcare-scheduler/internal/utils"
)

// AppointmentScheduler is the workflow behind the appointment routes.
type AppointmentScheduler interface {
	BookAppointment(ctx context.Context, patientID string, req scheduler.BookingRequest) (*scheduler.AppointmentView, error)
	UpdateAppointmentStatus(ctx context.Context, doctorID, appointmentID string, status models.AppointmentStatus) (*scheduler.AppointmentView, error)
	GetDoctorAppointments(ctx context.Context, doctorID string) ([]scheduler.AppointmentView, error)
	GetPatientAppointments(ctx context.Context, patientID string) ([]scheduler.AppointmentView, error)
	ListAppointments(ctx context.Context) ([]scheduler.AppointmentView, error)
	AddAppointment(ctx context.Context, req scheduler.AdminAppointmentRequest) (*scheduler.AppointmentView, error)
	SetAppointmentStatus(ctx context.Context, appointmentID string, status models.AppointmentStatus) (*scheduler.AppointmentView, error)
	DeleteAppointment(ctx context.Context, appointmentID string) error
}

// AppointmentHandler handles appointment related requests.
type AppointmentHandler struct {
	Scheduler AppointmentScheduler
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(s AppointmentScheduler) *AppointmentHandler {
	return &AppointmentHandler{Scheduler: s}
}

// BookAppointmentRequest represents the request body for a patient booking.
type BookAppointmentRequest struct {
	DoctorID  string    `json:"doctorId" binding:"required"`
	Time      time.Time `json:"time" binding:"required"`
	Treatment string    `json:"treatment" binding:"required"`
	Duration  string    `json:"duration" binding:"required"`
	Notes     string    `json:"notes"`
}

// BookAppointment books a slot with the calling patient's assigned doctor.
func (h *AppointmentHandler) BookAppointment(c *gin.Context) {
	var req BookAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	patientID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	appointment, err := h.Scheduler.BookAppointment(c.Request.Context(), patientID, scheduler.BookingRequest{
		DoctorID:  req.DoctorID,
		Time:      req.Time,
		Treatment: req.Treatment,
		Duration:  req.Duration,
		Notes:     req.Notes,
	})
	if err != nil {
		respondSchedulerError(c, err)
		return
	}

	utils.Created(c, "Appointment booked successfully", appointment)
}

// UpdateAppointmentStatusRequest represents the request body for a doctor's decision.
type UpdateAppointmentStatusRequest struct {
	Status models.AppointmentStatus `json:"status" binding:"required"`
}

// UpdateAppointmentStatus lets the doctor accept or reject one of their appointments.
func (h *AppointmentHandler) UpdateAppointmentStatus(c *gin.Context) {
	var req UpdateAppointmentStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	doctorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	appointment, err := h.Scheduler.UpdateAppointmentStatus(c.Request.Context(), doctorID, c.Param("id"), req.Status)
	if err != nil {
		respondSchedulerError(c, err)
		return
	}

	utils.Success(c, "Appointment status updated successfully", appointment)
}

// GetDoctorAppointments lists the calling doctor's appointments.
func (h *AppointmentHandler) GetDoctorAppointments(c *gin.Context) {
	doctorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	appointments, err := h.Scheduler.GetDoctorAppointments(c.Request.Context(), doctorID)
	if err != nil {
		respondSchedulerError(c, err)
		return
	}

	utils.Success(c, "Appointments fetched successfully", appointments)
}

// GetPatientAppointments lists the calling patient's appointments.
func (h *AppointmentHandler) GetPatientAppointments(c *gin.Context) {
	patientID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	appointments, err := h.Scheduler.GetPatientAppointments(c.Request.Context(), patientID)
	if err != nil {
		respondSchedulerError(c, err)
		return
	}

	utils.Success(c, "Appointments fetched successfully", appointments)
}

// GetAppointments lists every appointment.
func (h *AppointmentHandler) GetAppointments(c *gin.Context) {
	appointments, err := h.Scheduler.ListAppointments(c.Request.Context())
	if err != nil {
		respondSchedulerError(c, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", appointments)
}

// AddAppointmentRequest represents the request body for the administrative create.
type AddAppointmentRequest struct {
	DoctorID  string    `json:"doctorId"`
	PatientID string    `json:"patientId"`
	Time      time.Time `json:"time"`
	Treatment string    `json:"treatment"`
	Duration  string    `json:"duration"`
	Notes     string    `json:"notes"`
}

// AddAppointment creates an appointment between any doctor and patient.
func (h *AppointmentHandler) AddAppointment(c *gin.Context) {
	var req AddAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	appointment, err := h.Scheduler.AddAppointment(c.Request.Context(), scheduler.AdminAppointmentRequest{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		Time:      req.Time,
		Treatment: req.Treatment,
		Duration:  req.Duration,
		Notes:     req.Notes,
	})
	if err != nil {
		respondSchedulerError(c, err)
		return
	}

	utils.Created(c, "Appointment created successfully", appointment)
}

// UpdateAppointmentRequest represents the request body for the administrative status change.
type UpdateAppointmentRequest struct {
	Status models.AppointmentStatus `json:"status"`
}

// UpdateAppointment sets any status on any appointment.
func (h *AppointmentHandler) UpdateAppointment(c *gin.Context) {
	var req UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "Invalid request payload: "+err.Error())
		return
	}

	appointment, err := h.Scheduler.SetAppointmentStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		respondSchedulerError(c, err)
		return
	}

	utils.Success(c, "Appointment updated successfully", appointment)
}

// DeleteAppointment removes an appointment.
func (h *AppointmentHandler) DeleteAppointment(c *gin.Context) {
	if err := h.Scheduler.DeleteAppointment(c.Request.Context(), c.Param("id")); err != nil {
		respondSchedulerError(c, err)
		return
	}
	utils.Success(c, "Appointment deleted successfully", nil)
}

// respondSchedulerError maps workflow errors onto HTTP responses. Anything
// unrecognised is logged and answered with a generic 500.
func respondSchedulerError(c *gin.Context, err error) {
	switch {
	case scheduler.IsValidation(err):
		utils.BadRequest(c, err.Error())
	case errors.Is(err, scheduler.ErrPatientNotFound),
		errors.Is(err, scheduler.ErrDoctorNotFound),
		errors.Is(err, scheduler.ErrAppointmentNotFound):
		utils.NotFound(c, err.Error())
	case errors.Is(err, scheduler.ErrDoctorNotAssigned):
		utils.Forbidden(c, err.Error())
	case errors.Is(err, scheduler.ErrSlotAlreadyBooked),
		errors.Is(err, scheduler.ErrSlotBeingBooked),
		errors.Is(err, scheduler.ErrStatusLocked):
		utils.Conflict(c, err.Error())
	default:
		log.Printf("request_id=%s %s %s: %v", middleware.GetRequestID(c), c.Request.Method, c.FullPath(), err)
		utils.InternalServerError(c, "Internal server error")
	}
}
