package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"healthcare-scheduler/internal/models"
)

// The administrative surface below has no role or ownership scoping and
// skips the assigned-doctor and slot pre-checks. The unique slot index in
// the database still rejects a second active appointment for a slot.

// AdminAppointmentRequest creates an appointment on anyone's behalf.
type AdminAppointmentRequest struct {
	DoctorID  string
	PatientID string
	Time      time.Time
	Treatment string
	Duration  string
	Notes     string
}

// ListAppointments returns every appointment, earliest first.
func (s *Service) ListAppointments(ctx context.Context) ([]AppointmentView, error) {
	appts, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return mapViews(appts, full), nil
}

// AddAppointment stores a Pending appointment between any doctor and patient.
func (s *Service) AddAppointment(ctx context.Context, req AdminAppointmentRequest) (*AppointmentView, error) {
	if strings.TrimSpace(req.DoctorID) == "" || strings.TrimSpace(req.PatientID) == "" ||
		req.Time.IsZero() || strings.TrimSpace(req.Treatment) == "" || strings.TrimSpace(req.Duration) == "" {
		return nil, &ValidationError{Message: "All fields are required"}
	}

	doctor, err := s.repo.GetUser(ctx, req.DoctorID, models.RoleDoctor)
	if err != nil {
		return nil, notFound(err, ErrDoctorNotFound, "load doctor")
	}
	patient, err := s.repo.GetUser(ctx, req.PatientID, models.RolePatient)
	if err != nil {
		return nil, notFound(err, ErrPatientNotFound, "load patient")
	}

	appt := &models.Appointment{
		DoctorID:  doctor.ID,
		PatientID: patient.ID,
		Time:      models.NormalizeSlotTime(req.Time),
		Treatment: strings.TrimSpace(req.Treatment),
		Duration:  strings.TrimSpace(req.Duration),
		Notes:     req.Notes,
		Status:    models.StatusPending,
	}
	if err := s.repo.CreateAppointment(ctx, appt); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	appt.Doctor = doctor
	appt.Patient = patient

	view := full(appt)
	return &view, nil
}

// SetAppointmentStatus sets any of the three statuses. Moving a Rejected
// appointment back into the slot fails if the slot was rebooked.
func (s *Service) SetAppointmentStatus(ctx context.Context, appointmentID string, status models.AppointmentStatus) (*AppointmentView, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, notFound(err, ErrAppointmentNotFound, "load appointment")
	}

	appt.Status = status
	if err := s.repo.SaveAppointment(ctx, appt); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrSlotAlreadyBooked
		}
		return nil, fmt.Errorf("save appointment: %w", err)
	}

	view := full(appt)
	return &view, nil
}

// DeleteAppointment removes an appointment by id.
func (s *Service) DeleteAppointment(ctx context.Context, appointmentID string) error {
	if err := s.repo.DeleteAppointment(ctx, appointmentID); err != nil {
		return notFound(err, ErrAppointmentNotFound, "delete appointment")
	}
	return nil
}
