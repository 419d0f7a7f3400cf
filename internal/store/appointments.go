package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"healthcare-scheduler/internal/models"
)

// AppointmentStore is the gorm-backed repository for the scheduler.
type AppointmentStore struct {
	db *gorm.DB
}

func NewAppointmentStore(db *gorm.DB) *AppointmentStore {
	return &AppointmentStore{db: db}
}

func (s *AppointmentStore) GetUser(ctx context.Context, id string, role models.Role) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ? AND role = ?", id, role).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindActiveBySlot returns the non-rejected appointment holding the slot.
func (s *AppointmentStore) FindActiveBySlot(ctx context.Context, doctorID string, at time.Time) (*models.Appointment, error) {
	var appt models.Appointment
	err := s.db.WithContext(ctx).
		Where("doctor_id = ? AND slot_key = ? AND status <> ?", doctorID, models.SlotKey(doctorID, at), models.StatusRejected).
		First(&appt).Error
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

func (s *AppointmentStore) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(appt).Error
}

func (s *AppointmentStore) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	var appt models.Appointment
	err := s.db.WithContext(ctx).Preload("Doctor").Preload("Patient").First(&appt, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

// GetDoctorAppointment only matches appointments owned by doctorID.
func (s *AppointmentStore) GetDoctorAppointment(ctx context.Context, id, doctorID string) (*models.Appointment, error) {
	var appt models.Appointment
	err := s.db.WithContext(ctx).Preload("Doctor").Preload("Patient").
		Where("id = ? AND doctor_id = ?", id, doctorID).
		First(&appt).Error
	if err != nil {
		return nil, err
	}
	return &appt, nil
}

// UpdateStatusIfPending moves a Pending appointment to status and reports
// whether a row changed. Rejecting frees the slot.
func (s *AppointmentStore) UpdateStatusIfPending(ctx context.Context, id, doctorID string, status models.AppointmentStatus) (bool, error) {
	updates := map[string]interface{}{"status": status}
	if status == models.StatusRejected {
		updates["slot_key"] = nil
	}

	res := s.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("id = ? AND doctor_id = ? AND status = ?", id, doctorID, models.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SaveAppointment writes every column; the model hook recomputes the slot key.
func (s *AppointmentStore) SaveAppointment(ctx context.Context, appt *models.Appointment) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(appt).Error
}

func (s *AppointmentStore) DeleteAppointment(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.Appointment{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *AppointmentStore) ListByDoctor(ctx context.Context, doctorID string) ([]models.Appointment, error) {
	var appts []models.Appointment
	err := s.db.WithContext(ctx).Preload("Patient").
		Where("doctor_id = ?", doctorID).
		Order("scheduled_at asc").
		Find(&appts).Error
	return appts, err
}

func (s *AppointmentStore) ListByPatient(ctx context.Context, patientID string) ([]models.Appointment, error) {
	var appts []models.Appointment
	err := s.db.WithContext(ctx).Preload("Doctor").
		Where("patient_id = ?", patientID).
		Order("scheduled_at asc").
		Find(&appts).Error
	return appts, err
}

func (s *AppointmentStore) ListAll(ctx context.Context) ([]models.Appointment, error) {
	var appts []models.Appointment
	err := s.db.WithContext(ctx).Preload("Doctor").Preload("Patient").
		Order("scheduled_at asc").
		Find(&appts).Error
	return appts, err
}
