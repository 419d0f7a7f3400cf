package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusPending  AppointmentStatus = "Pending"
	StatusAccepted AppointmentStatus = "Accepted"
	StatusRejected AppointmentStatus = "Rejected"
)

// Valid reports whether s is one of the three known statuses.
func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no doctor decision can follow s.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusRejected
}

// Appointment is a booking of a doctor's slot by a patient.
type Appointment struct {
	BaseModel
	DoctorID  string            `gorm:"size:36;not null;index:idx_appointment_doctor_time,priority:1" json:"doctorId"`
	PatientID string            `gorm:"size:36;not null;index:idx_appointment_patient_time,priority:1" json:"patientId"`
	Time      time.Time         `gorm:"column:scheduled_at;not null;index:idx_appointment_doctor_time,priority:2;index:idx_appointment_patient_time,priority:2" json:"time"`
	Treatment string            `gorm:"size:255;not null" json:"treatment"`
	Duration  string            `gorm:"size:50;not null" json:"duration"`
	Status    AppointmentStatus `gorm:"size:20;not null;default:'Pending'" json:"status"`
	Notes     string            `gorm:"type:text" json:"notes,omitempty"`

	// SlotKey occupies the (doctor, time) slot while the appointment is not
	// Rejected. NULL values never collide under the unique index.
	SlotKey *string `gorm:"size:80;uniqueIndex" json:"-"`

	// Relations
	Doctor  *User `gorm:"foreignKey:DoctorID" json:"-"`
	Patient *User `gorm:"foreignKey:PatientID" json:"-"`
}

// BeforeSave keeps SlotKey in step with DoctorID, Time and Status.
func (a *Appointment) BeforeSave(tx *gorm.DB) error {
	if a.DoctorID == "" {
		return nil
	}
	a.Time = NormalizeSlotTime(a.Time)
	if a.Status == "" {
		a.Status = StatusPending
	}
	if a.Status == StatusRejected {
		a.SlotKey = nil
		return nil
	}
	key := SlotKey(a.DoctorID, a.Time)
	a.SlotKey = &key
	return nil
}

// NormalizeSlotTime is the canonical form used to compare slot times.
func NormalizeSlotTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// SlotKey identifies the (doctor, time) slot.
func SlotKey(doctorID string, t time.Time) string {
	return fmt.Sprintf("%s|%d", doctorID, NormalizeSlotTime(t).Unix())
}
