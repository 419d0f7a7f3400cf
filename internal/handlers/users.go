package handlers

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"healthcare-scheduler/internal/models"
	"healthcare-scheduler/internal/utils"
)

// UserHandler handles user-related requests (typically admin operations).
type UserHandler struct {
	DB *gorm.DB
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB) *UserHandler {
	return &UserHandler{DB: db}
}

// CreateUserRequest represents the request body for creating a user by an admin.
type CreateUserRequest struct {
	FirstName        string `json:"firstName" binding:"required"`
	LastName         string `json:"lastName" binding:"required"`
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required,min=8"`
	Role             string `json:"role" binding:"required,oneof=admin doctor patient"`
	Specialty        string `json:"specialty"`
	AssignedDoctorID string `json:"assignedDoctorId"`
}

// CreateUser handles creating a new user (admin).
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	email := normalizeEmail(req.Email)
	if taken, err := emailTaken(h.DB, email, ""); err != nil {
		log.Printf("create user: email lookup: %v", err)
		utils.InternalServerError(c, "Database error")
		return
	} else if taken {
		utils.BadRequest(c, "User with this email already exists")
		return
	}

	user := models.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     email,
		Role:      models.Role(req.Role),
		Specialty: req.Specialty,
	}
	if user.Role == models.RolePatient {
		if !h.assignDoctor(c, &user, req.AssignedDoctorID) {
			return
		}
	}
	if err := user.SetPassword(req.Password); err != nil {
		utils.InternalServerError(c, "Failed to hash password")
		return
	}

	if err := h.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.BadRequest(c, "User with this email already exists")
			return
		}
		log.Printf("create user: %v", err)
		utils.InternalServerError(c, "Failed to create user")
		return
	}

	utils.Created(c, "User created successfully", user.Sanitize())
}

// GetUsers handles fetching all users (admin).
func (h *UserHandler) GetUsers(c *gin.Context) {
	var users []models.User
	if err := h.DB.Order("created_at asc").Find(&users).Error; err != nil {
		log.Printf("list users: %v", err)
		utils.InternalServerError(c, "Failed to fetch users")
		return
	}

	sanitizedUsers := make([]models.UserSanitized, len(users))
	for i, u := range users {
		sanitizedUsers[i] = u.Sanitize()
	}

	utils.Success(c, "Users fetched successfully", sanitizedUsers)
}

// GetUserByID handles fetching a single user by ID (admin).
func (h *UserHandler) GetUserByID(c *gin.Context) {
	var user models.User
	if err := h.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			log.Printf("get user %s: %v", c.Param("id"), err)
			utils.InternalServerError(c, "Database error")
		}
		return
	}
	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// UpdateUserRequest represents the request body for updating a user by an admin.
type UpdateUserRequest struct {
	FirstName        string `json:"firstName"`
	LastName         string `json:"lastName"`
	Email            string `json:"email" binding:"omitempty,email"`
	Role             string `json:"role" binding:"omitempty,oneof=admin doctor patient"`
	Specialty        string `json:"specialty"`
	AssignedDoctorID string `json:"assignedDoctorId"`
	// Password should be updated via the reset flow
}

// UpdateUser handles updating a user by ID (admin).
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req UpdateUserRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			log.Printf("update user %s: %v", c.Param("id"), err)
			utils.InternalServerError(c, "Database error")
		}
		return
	}

	if req.FirstName != "" {
		user.FirstName = req.FirstName
	}
	if req.LastName != "" {
		user.LastName = req.LastName
	}
	if req.Email != "" && normalizeEmail(req.Email) != user.Email {
		email := normalizeEmail(req.Email)
		taken, err := emailTaken(h.DB, email, user.ID)
		if err != nil {
			utils.InternalServerError(c, "Database error checking email")
			return
		}
		if taken {
			utils.BadRequest(c, "New email is already in use")
			return
		}
		user.Email = email
	}
	if req.Role != "" {
		user.Role = models.Role(req.Role)
	}
	if req.Specialty != "" {
		user.Specialty = req.Specialty
	}
	if user.Role != models.RolePatient {
		user.AssignedDoctorID = nil
	} else if req.AssignedDoctorID != "" {
		if !h.assignDoctor(c, &user, req.AssignedDoctorID) {
			return
		}
	}

	if err := h.DB.Save(&user).Error; err != nil {
		log.Printf("update user %s: %v", user.ID, err)
		utils.InternalServerError(c, "Failed to update user")
		return
	}

	utils.Success(c, "User updated successfully", user.Sanitize())
}

// DeleteUser handles deleting a user by ID (admin). Their appointments go
// with them and patients assigned to a deleted doctor become unassigned.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID := c.Param("id")

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.NotFound(c, "User not found")
		} else {
			log.Printf("delete user %s: %v", userID, err)
			utils.InternalServerError(c, "Database error")
		}
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("doctor_id = ? OR patient_id = ?", userID, userID).Delete(&models.Appointment{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("assigned_doctor_id = ?", userID).Update("assigned_doctor_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", userID).Error
	})
	if err != nil {
		log.Printf("delete user %s: %v", userID, err)
		utils.InternalServerError(c, "Failed to delete user")
		return
	}

	utils.Success(c, "User deleted successfully", nil)
}

// GetDoctors handles fetching all users with the doctor role.
// Patients use it to see who they can be assigned to.
func (h *UserHandler) GetDoctors(c *gin.Context) {
	var doctors []models.User
	if err := h.DB.Where("role = ?", models.RoleDoctor).Order("last_name asc").Find(&doctors).Error; err != nil {
		log.Printf("list doctors: %v", err)
		utils.InternalServerError(c, "Failed to fetch doctors")
		return
	}

	sanitizedDoctors := make([]models.UserSanitized, len(doctors))
	for i, doctor := range doctors {
		sanitizedDoctors[i] = doctor.Sanitize()
	}

	utils.Success(c, "Doctors fetched successfully", sanitizedDoctors)
}

func (h *UserHandler) assignDoctor(c *gin.Context, user *models.User, doctorID string) bool {
	if doctorID == "" {
		utils.BadRequest(c, "assignedDoctorId is required for patients")
		return false
	}
	var doctor models.User
	if err := h.DB.Where("id = ? AND role = ?", doctorID, models.RoleDoctor).First(&doctor).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.BadRequest(c, "Assigned doctor not found")
		} else {
			log.Printf("assign doctor %s: %v", doctorID, err)
			utils.InternalServerError(c, "Database error")
		}
		return false
	}
	user.AssignedDoctorID = &doctor.ID
	return true
}
