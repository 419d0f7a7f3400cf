package scheduler

import (
	"time"

	"healthcare-scheduler/internal/models"
)

// AppointmentView is the API shape of an appointment with whichever
// counterpart fields the caller is entitled to.
type AppointmentView struct {
	ID        string                   `json:"id"`
	DoctorID  string                   `json:"doctorId"`
	PatientID string                   `json:"patientId"`
	Time      time.Time                `json:"time"`
	Treatment string                   `json:"treatment"`
	Duration  string                   `json:"duration"`
	Status    models.AppointmentStatus `json:"status"`
	Notes     string                   `json:"notes,omitempty"`
	CreatedAt time.Time                `json:"createdAt"`
	UpdatedAt time.Time                `json:"updatedAt"`
	Doctor    *DoctorSummary           `json:"doctor,omitempty"`
	Patient   *PatientSummary          `json:"patient,omitempty"`
}

type DoctorSummary struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Specialty string `json:"specialty,omitempty"`
	Email     string `json:"email,omitempty"`
}

type PatientSummary struct {
	ID          string `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

func newView(a *models.Appointment) AppointmentView {
	return AppointmentView{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		Time:      a.Time,
		Treatment: a.Treatment,
		Duration:  a.Duration,
		Status:    a.Status,
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func doctorSummary(u *models.User, withEmail bool) *DoctorSummary {
	if u == nil {
		return nil
	}
	s := &DoctorSummary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Specialty: u.Specialty}
	if withEmail {
		s.Email = u.Email
	}
	return s
}

func patientSummary(u *models.User) *PatientSummary {
	if u == nil {
		return nil
	}
	return &PatientSummary{
		ID:          u.ID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		PhoneNumber: u.PhoneNumber,
	}
}

// forDoctor shows the patient's contact fields.
func forDoctor(a *models.Appointment) AppointmentView {
	v := newView(a)
	v.Patient = patientSummary(a.Patient)
	return v
}

// forPatient shows the doctor's name, specialty and email.
func forPatient(a *models.Appointment) AppointmentView {
	v := newView(a)
	v.Doctor = doctorSummary(a.Doctor, true)
	return v
}

// full is the administrative shape with both sides.
func full(a *models.Appointment) AppointmentView {
	v := newView(a)
	v.Doctor = doctorSummary(a.Doctor, true)
	v.Patient = patientSummary(a.Patient)
	return v
}
