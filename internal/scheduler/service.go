package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"healthcare-scheduler/internal/lock"
	"healthcare-scheduler/internal/models"
	"healthcare-scheduler/internal/notify"
)

// Repository is the persistence the scheduler needs. Lookups that match
// nothing return gorm.ErrRecordNotFound; unique violations return
// gorm.ErrDuplicatedKey.
type Repository interface {
	GetUser(ctx context.Context, id string, role models.Role) (*models.User, error)
	FindActiveBySlot(ctx context.Context, doctorID string, at time.Time) (*models.Appointment, error)
	CreateAppointment(ctx context.Context, appt *models.Appointment) error
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	GetDoctorAppointment(ctx context.Context, id, doctorID string) (*models.Appointment, error)
	UpdateStatusIfPending(ctx context.Context, id, doctorID string, status models.AppointmentStatus) (bool, error)
	SaveAppointment(ctx context.Context, appt *models.Appointment) error
	DeleteAppointment(ctx context.Context, id string) error
	ListByDoctor(ctx context.Context, doctorID string) ([]models.Appointment, error)
	ListByPatient(ctx context.Context, patientID string) ([]models.Appointment, error)
	ListAll(ctx context.Context) ([]models.Appointment, error)
}

// Notifier is told about doctor decisions.
type Notifier interface {
	SendStatusChange(ctx context.Context, change notify.StatusChange) error
}

// Options tunes a Service. Zero values pick defaults.
type Options struct {
	NotifyTimeout time.Duration
	Logger        *log.Logger
}

// Service implements the appointment workflow: booking with conflict
// detection, doctor decisions and role-scoped listings.
type Service struct {
	repo          Repository
	locker        lock.Locker
	notifier      Notifier
	notifyTimeout time.Duration
	logger        *log.Logger

	inflight sync.WaitGroup
}

func NewService(repo Repository, locker lock.Locker, notifier Notifier, opts Options) *Service {
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	if opts.NotifyTimeout <= 0 {
		opts.NotifyTimeout = 15 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Service{
		repo:          repo,
		locker:        locker,
		notifier:      notifier,
		notifyTimeout: opts.NotifyTimeout,
		logger:        opts.Logger,
	}
}

// BookingRequest is a patient's request for a slot.
type BookingRequest struct {
	DoctorID  string
	Time      time.Time
	Treatment string
	Duration  string
	Notes     string
}

func (r *BookingRequest) normalize() error {
	r.DoctorID = strings.TrimSpace(r.DoctorID)
	r.Treatment = strings.TrimSpace(r.Treatment)
	r.Duration = strings.TrimSpace(r.Duration)
	switch {
	case r.DoctorID == "":
		return &ValidationError{Message: "doctorId is required"}
	case r.Time.IsZero():
		return &ValidationError{Message: "time is required"}
	case r.Treatment == "":
		return &ValidationError{Message: "treatment is required"}
	case r.Duration == "":
		return &ValidationError{Message: "duration is required"}
	}
	r.Time = models.NormalizeSlotTime(r.Time)
	return nil
}

// BookAppointment creates a Pending appointment for the calling patient
// with their assigned doctor, provided the slot is free.
func (s *Service) BookAppointment(ctx context.Context, patientID string, req BookingRequest) (*AppointmentView, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	patient, err := s.repo.GetUser(ctx, patientID, models.RolePatient)
	if err != nil {
		return nil, notFound(err, ErrPatientNotFound, "load patient")
	}
	doctor, err := s.repo.GetUser(ctx, req.DoctorID, models.RoleDoctor)
	if err != nil {
		return nil, notFound(err, ErrDoctorNotFound, "load doctor")
	}
	if !patient.IsAssignedTo(doctor.ID) {
		return nil, ErrDoctorNotAssigned
	}

	appt := &models.Appointment{
		DoctorID:  doctor.ID,
		PatientID: patient.ID,
		Time:      req.Time,
		Treatment: req.Treatment,
		Duration:  req.Duration,
		Notes:     req.Notes,
		Status:    models.StatusPending,
	}

	err = s.locker.WithSlotLock(ctx, doctor.ID, req.Time, func(ctx context.Context) error {
		existing, err := s.repo.FindActiveBySlot(ctx, doctor.ID, req.Time)
		switch {
		case err == nil && existing != nil:
			return ErrSlotAlreadyBooked
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("check slot: %w", err)
		}

		if err := s.repo.CreateAppointment(ctx, appt); err != nil {
			// lost a race that bypassed the lock
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrSlotAlreadyBooked
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return nil, ErrSlotBeingBooked
	}
	if err != nil {
		return nil, err
	}

	view := newView(appt)
	view.Doctor = doctorSummary(doctor, false)
	return &view, nil
}

// UpdateAppointmentStatus records the doctor's decision on one of their
// Pending appointments and notifies the patient in the background.
func (s *Service) UpdateAppointmentStatus(ctx context.Context, doctorID, appointmentID string, status models.AppointmentStatus) (*AppointmentView, error) {
	if status != models.StatusAccepted && status != models.StatusRejected {
		return nil, ErrInvalidStatus
	}

	appt, err := s.repo.GetDoctorAppointment(ctx, appointmentID, doctorID)
	if err != nil {
		return nil, notFound(err, ErrAppointmentNotFound, "load appointment")
	}
	if appt.Status.Terminal() {
		return nil, ErrStatusLocked
	}

	updated, err := s.repo.UpdateStatusIfPending(ctx, appt.ID, doctorID, status)
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}
	if !updated {
		// decided concurrently
		return nil, ErrStatusLocked
	}
	appt.Status = status
	appt.UpdatedAt = time.Now()

	s.notifyStatusChange(appt)

	view := forDoctor(appt)
	return &view, nil
}

// GetDoctorAppointments lists the doctor's appointments, earliest first.
func (s *Service) GetDoctorAppointments(ctx context.Context, doctorID string) ([]AppointmentView, error) {
	appts, err := s.repo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	return mapViews(appts, forDoctor), nil
}

// GetPatientAppointments lists the patient's appointments, earliest first.
func (s *Service) GetPatientAppointments(ctx context.Context, patientID string) ([]AppointmentView, error) {
	patient, err := s.repo.GetUser(ctx, patientID, models.RolePatient)
	if err != nil {
		return nil, notFound(err, ErrPatientNotFound, "load patient")
	}
	appts, err := s.repo.ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return mapViews(appts, forPatient), nil
}

// Drain waits for background notifications to finish or ctx to end.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) notifyStatusChange(appt *models.Appointment) {
	if s.notifier == nil {
		return
	}
	if appt.Patient == nil || appt.Patient.Email == "" {
		s.logger.Printf("notify: appointment %s has no patient email, skipping", appt.ID)
		return
	}

	change := notify.StatusChange{
		ToEmail:     appt.Patient.Email,
		PatientName: appt.Patient.FullName(),
		Time:        appt.Time,
		Status:      string(appt.Status),
		Treatment:   appt.Treatment,
	}
	if appt.Doctor != nil {
		change.DoctorName = appt.Doctor.FullName()
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Printf("notify: panic sending status email for appointment %s: %v", appt.ID, r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.SendStatusChange(ctx, change); err != nil {
			s.logger.Printf("notify: status email for appointment %s failed: %v", appt.ID, err)
		}
	}()
}

func notFound(err, sentinel error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return fmt.Errorf("%s: %w", op, err)
}

func mapViews(appts []models.Appointment, shape func(*models.Appointment) AppointmentView) []AppointmentView {
	views := make([]AppointmentView, len(appts))
	for i := range appts {
		views[i] = shape(&appts[i])
	}
	return views
}
