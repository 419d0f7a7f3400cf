package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Role enum
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// User is any account: admin, doctor or patient.
type User struct {
	BaseModel
	Email            string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Password         string     `gorm:"size:255;not null" json:"-"` // Never send password in JSON
	FirstName        string     `gorm:"size:100" json:"firstName"`
	LastName         string     `gorm:"size:100" json:"lastName"`
	Role             Role       `gorm:"size:20;default:'patient';index" json:"role"`
	DateOfBirth      *time.Time `json:"dateOfBirth,omitempty"`
	Gender           string     `gorm:"size:20" json:"gender,omitempty"`
	PhoneNumber      string     `gorm:"size:50" json:"phoneNumber,omitempty"`
	Address          string     `gorm:"size:255" json:"address,omitempty"`
	Specialty        string     `gorm:"size:100" json:"specialty,omitempty"`
	MedicalHistory   string     `gorm:"type:text" json:"medicalHistory,omitempty"`
	AssignedDoctorID *string    `gorm:"size:36;index" json:"assignedDoctorId,omitempty"`
	ResetToken       string     `gorm:"size:64;index" json:"-"`
	ResetTokenExpiry *time.Time `json:"-"`

	// Relations (not always preloaded)
	AssignedDoctor      *User         `gorm:"foreignKey:AssignedDoctorID" json:"-"`
	DoctorAppointments  []Appointment `gorm:"foreignKey:DoctorID" json:"-"`
	PatientAppointments []Appointment `gorm:"foreignKey:PatientID" json:"-"`
}

// UserSanitized represents the user data that is safe to send in API responses.
type UserSanitized struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	Role             Role       `json:"role"`
	DateOfBirth      *time.Time `json:"dateOfBirth,omitempty"`
	Gender           string     `json:"gender,omitempty"`
	PhoneNumber      string     `json:"phoneNumber,omitempty"`
	Address          string     `json:"address,omitempty"`
	Specialty        string     `json:"specialty,omitempty"`
	MedicalHistory   string     `json:"medicalHistory,omitempty"`
	AssignedDoctorID *string    `json:"assignedDoctorId,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// FullName joins first and last name.
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsAssignedTo reports whether the patient is assigned to doctorID.
func (u *User) IsAssignedTo(doctorID string) bool {
	return u.AssignedDoctorID != nil && *u.AssignedDoctorID == doctorID
}

// SetPassword hashes a password and sets it on the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hashedPassword)
	return nil
}

// CheckPassword compares a password with the user's hashed password
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password))
	return err == nil
}

// IssueResetToken generates a password reset token valid for ttl. Only its
// hash is kept on the user; the plain token is returned for delivery.
func (u *User) IssueResetToken(ttl time.Duration) (string, error) {
	token, err := RandomToken(32)
	if err != nil {
		return "", err
	}
	expiry := time.Now().UTC().Add(ttl)
	u.ResetToken = HashResetToken(token)
	u.ResetTokenExpiry = &expiry
	return token, nil
}

// ClearResetToken invalidates any outstanding reset token.
func (u *User) ClearResetToken() {
	u.ResetToken = ""
	u.ResetTokenExpiry = nil
}

// HashResetToken is the lookup form of a reset token.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// RandomToken returns n random bytes, hex encoded.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Sanitize creates a UserSanitized struct from a User model, excluding sensitive data.
func (u *User) Sanitize() UserSanitized {
	return UserSanitized{
		ID:               u.ID,
		Email:            u.Email,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Role:             u.Role,
		DateOfBirth:      u.DateOfBirth,
		Gender:           u.Gender,
		PhoneNumber:      u.PhoneNumber,
		Address:          u.Address,
		Specialty:        u.Specialty,
		MedicalHistory:   u.MedicalHistory,
		AssignedDoctorID: u.AssignedDoctorID,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}
