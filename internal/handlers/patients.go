package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"healthcare-scheduler/internal/config"
	"healthcare-scheduler/internal/middleware"
	"healthcare-scheduler/internal/models"
	"healthcare-scheduler/internal/utils"
)

// PatientHandler lets doctors manage the patients assigned to them.
type PatientHandler struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Mailer PasswordResetSender
}

func NewPatientHandler(db *gorm.DB, cfg *config.Config, mailer PasswordResetSender) *PatientHandler {
	return &PatientHandler{DB: db, Cfg: cfg, Mailer: mailer}
}

// CreatePatientRequest represents the request body for adding a patient.
// Without a password the patient gets a reset link by email.
type CreatePatientRequest struct {
	FirstName      string     `json:"firstName" binding:"required"`
	LastName       string     `json:"lastName" binding:"required"`
	Email          string     `json:"email" binding:"required,email"`
	Password       string     `json:"password" binding:"omitempty,min=8"`
	DateOfBirth    *time.Time `json:"dateOfBirth"`
	Gender         string     `json:"gender"`
	PhoneNumber    string     `json:"phoneNumber"`
	Address        string     `json:"address"`
	MedicalHistory string     `json:"medicalHistory"`
}

// CreatePatient adds a patient assigned to the calling doctor.
func (h *PatientHandler) CreatePatient(c *gin.Context) {
	var req CreatePatientRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	doctorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	email := normalizeEmail(req.Email)
	if taken, err := emailTaken(h.DB, email, ""); err != nil {
		log.Printf("create patient: email lookup: %v", err)
		utils.InternalServerError(c, "Database error")
		return
	} else if taken {
		utils.BadRequest(c, "Patient with this email already exists")
		return
	}

	patient := models.User{
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            email,
		Role:             models.RolePatient,
		DateOfBirth:      req.DateOfBirth,
		Gender:           req.Gender,
		PhoneNumber:      req.PhoneNumber,
		Address:          req.Address,
		MedicalHistory:   req.MedicalHistory,
		AssignedDoctorID: &doctorID,
	}

	password := req.Password
	invite := password == ""
	if invite {
		// unusable until the patient sets their own through the emailed link
		generated, err := models.RandomToken(24)
		if err != nil {
			utils.InternalServerError(c, "Failed to generate password")
			return
		}
		password = generated
	}
	if err := patient.SetPassword(password); err != nil {
		utils.InternalServerError(c, "Failed to hash password")
		return
	}

	if err := h.DB.Create(&patient).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.BadRequest(c, "Patient with this email already exists")
			return
		}
		log.Printf("create patient: %v", err)
		utils.InternalServerError(c, "Failed to create patient")
		return
	}

	if invite {
		if err := sendResetLink(c.Request.Context(), h.DB, h.Cfg, h.Mailer, &patient); err != nil {
			log.Printf("create patient: invite %s: %v", patient.ID, err)
			utils.Created(c, "Patient created, but the password setup email could not be sent", patient.Sanitize())
			return
		}
	}

	utils.Created(c, "Patient created successfully", patient.Sanitize())
}

// GetPatients lists the calling doctor's patients.
func (h *PatientHandler) GetPatients(c *gin.Context) {
	doctorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return
	}

	var patients []models.User
	err := h.DB.Where("role = ? AND assigned_doctor_id = ?", models.RolePatient, doctorID).
		Order("last_name asc, first_name asc").
		Find(&patients).Error
	if err != nil {
		log.Printf("list patients: %v", err)
		utils.InternalServerError(c, "Failed to fetch patients")
		return
	}

	sanitizedPatients := make([]models.UserSanitized, len(patients))
	for i, patient := range patients {
		sanitizedPatients[i] = patient.Sanitize()
	}

	utils.Success(c, "Patients fetched successfully", sanitizedPatients)
}

// findOwnPatient loads a patient assigned to the calling doctor, writing
// the error response itself when it returns false.
func (h *PatientHandler) findOwnPatient(c *gin.Context, patient *models.User) bool {
	doctorID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		utils.Unauthorized(c, "User not authenticated")
		return false
	}

	err := h.DB.Where("id = ? AND role = ? AND assigned_doctor_id = ?", c.Param("id"), models.RolePatient, doctorID).
		First(patient).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "Patient not found")
		} else {
			log.Printf("load patient: %v", err)
			utils.InternalServerError(c, "Database error")
		}
		return false
	}
	return true
}

// GetPatient returns one of the calling doctor's patients.
func (h *PatientHandler) GetPatient(c *gin.Context) {
	var patient models.User
	if !h.findOwnPatient(c, &patient) {
		return
	}
	utils.Success(c, "Patient fetched successfully", patient.Sanitize())
}

// UpdatePatientRequest represents the request body for editing a patient.
// Passwords are changed through the reset flow only.
type UpdatePatientRequest struct {
	FirstName        string     `json:"firstName"`
	LastName         string     `json:"lastName"`
	Email            string     `json:"email" binding:"omitempty,email"`
	DateOfBirth      *time.Time `json:"dateOfBirth"`
	Gender           string     `json:"gender"`
	PhoneNumber      string     `json:"phoneNumber"`
	Address          string     `json:"address"`
	MedicalHistory   string     `json:"medicalHistory"`
	AssignedDoctorID string     `json:"assignedDoctorId"`
}

// UpdatePatient edits one of the calling doctor's patients.
func (h *PatientHandler) UpdatePatient(c *gin.Context) {
	var req UpdatePatientRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var patient models.User
	if !h.findOwnPatient(c, &patient) {
		return
	}

	if req.FirstName != "" {
		patient.FirstName = req.FirstName
	}
	if req.LastName != "" {
		patient.LastName = req.LastName
	}
	if req.Email != "" {
		email := normalizeEmail(req.Email)
		if email != patient.Email {
			taken, err := emailTaken(h.DB, email, patient.ID)
			if err != nil {
				log.Printf("update patient: email lookup: %v", err)
				utils.InternalServerError(c, "Database error")
				return
			}
			if taken {
				utils.BadRequest(c, "New email is already in use")
				return
			}
			patient.Email = email
		}
	}
	if req.DateOfBirth != nil {
		patient.DateOfBirth = req.DateOfBirth
	}
	if req.Gender != "" {
		patient.Gender = req.Gender
	}
	if req.PhoneNumber != "" {
		patient.PhoneNumber = req.PhoneNumber
	}
	if req.Address != "" {
		patient.Address = req.Address
	}
	if req.MedicalHistory != "" {
		patient.MedicalHistory = req.MedicalHistory
	}
	if req.AssignedDoctorID != "" && !patient.IsAssignedTo(req.AssignedDoctorID) {
		var doctor models.User
		if err := h.DB.Where("id = ? AND role = ?", req.AssignedDoctorID, models.RoleDoctor).First(&doctor).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				utils.BadRequest(c, "Assigned doctor not found")
			} else {
				log.Printf("update patient: load doctor: %v", err)
				utils.InternalServerError(c, "Database error")
			}
			return
		}
		patient.AssignedDoctorID = &doctor.ID
	}

	if err := h.DB.Save(&patient).Error; err != nil {
		log.Printf("update patient %s: %v", patient.ID, err)
		utils.InternalServerError(c, "Failed to update patient")
		return
	}

	utils.Success(c, "Patient updated successfully", patient.Sanitize())
}

// DeletePatient removes one of the calling doctor's patients and their appointments.
func (h *PatientHandler) DeletePatient(c *gin.Context) {
	var patient models.User
	if !h.findOwnPatient(c, &patient) {
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("patient_id = ?", patient.ID).Delete(&models.Appointment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", patient.ID).Error
	})
	if err != nil {
		log.Printf("delete patient %s: %v", patient.ID, err)
		utils.InternalServerError(c, "Failed to delete patient")
		return
	}

	utils.Success(c, "Patient deleted successfully", nil)
}
