package handlers

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"healthcare-scheduler/internal/config"
	"healthcare-scheduler/internal/models"
	"healthcare-scheduler/internal/utils"
)

// Compile-time check to ensure MockResetSender implements PasswordResetSender
var _ PasswordResetSender = (*MockResetSender)(nil)

type sentReset struct {
	to, link string
}

// MockResetSender records reset links instead of mailing them.
type MockResetSender struct {
	SendPasswordResetFunc func(ctx context.Context, to, resetURL string, expiry time.Duration) error

	mu   sync.Mutex
	sent []sentReset
}

func (m *MockResetSender) SendPasswordReset(ctx context.Context, to, resetURL string, expiry time.Duration) error {
	m.mu.Lock()
	m.sent = append(m.sent, sentReset{to: to, link: resetURL})
	m.mu.Unlock()
	if m.SendPasswordResetFunc != nil {
		return m.SendPasswordResetFunc(ctx, to, resetURL, expiry)
	}
	return nil
}

func (m *MockResetSender) Sent() []sentReset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentReset(nil), m.sent...)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.InitDB(models.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:                "accounts-test-secret",
		JWTExpirationMinutes:     60,
		PasswordResetTokenExpiry: 60,
		AppURL:                   "http://localhost:5173/",
	}
}

// newAccountsRouter mounts the account handlers. A non-empty userID is
// injected as the caller identity.
func newAccountsRouter(db *gorm.DB, mailer PasswordResetSender, userID string, role models.Role) *gin.Engine {
	cfg := testConfig()
	auth := NewAuthHandler(db, cfg, mailer)
	patients := NewPatientHandler(db, cfg, mailer)
	users := NewUserHandler(db)

	r := gin.New()
	r.POST("/auth/signup", auth.Signup)
	r.POST("/auth/login", auth.Login)
	r.POST("/auth/reset-password", auth.RequestPasswordReset)
	r.POST("/auth/reset-password/confirm", auth.ConfirmPasswordReset)

	private := r.Group("")
	if userID != "" {
		private.Use(func(c *gin.Context) {
			c.Set("userID", userID)
			c.Set("userRole", role)
			c.Next()
		})
	}
	private.GET("/auth/profile", auth.GetProfile)
	private.PUT("/auth/profile", auth.UpdateProfile)
	private.POST("/patients", patients.CreatePatient)
	private.GET("/patients", patients.GetPatients)
	private.GET("/patients/:id", patients.GetPatient)
	private.PUT("/patients/:id", patients.UpdatePatient)
	private.DELETE("/patients/:id", patients.DeletePatient)
	private.DELETE("/users/:id", users.DeleteUser)
	return r
}

func createUser(t *testing.T, db *gorm.DB, role models.Role, email, password string, assignedTo *models.User) *models.User {
	t.Helper()
	u := &models.User{FirstName: "Test", LastName: string(role), Email: email, Role: role}
	if assignedTo != nil {
		u.AssignedDoctorID = &assignedTo.ID
	}
	require.NoError(t, u.SetPassword(password))
	require.NoError(t, db.Create(u).Error)
	return u
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	token := u.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestSignup(t *testing.T) {
	db := newTestDB(t)
	r := newAccountsRouter(db, &MockResetSender{}, "", "")

	body := map[string]string{
		"firstName": "Greg",
		"lastName":  "House",
		"email":     "House@Example.com",
		"password":  "password123",
		"role":      "doctor",
		"specialty": "Diagnostics",
	}
	w, resp := doJSON(t, r, http.MethodPost, "/auth/signup", body)
	require.Equal(t, http.StatusCreated, w.Code, resp.Error)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "house@example.com", data["email"])
	assert.NotContains(t, w.Body.String(), "password123")

	body["email"] = "house@example.com"
	w, resp = doJSON(t, r, http.MethodPost, "/auth/signup", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "User with this email already exists", resp.Error)

	body["email"] = "boss@example.com"
	body["role"] = "admin"
	w, _ = doJSON(t, r, http.MethodPost, "/auth/signup", body)
	assert.Equal(t, http.StatusBadRequest, w.Code, "admins cannot self-register")

	var admins int64
	require.NoError(t, db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error)
	assert.Zero(t, admins)
}

func TestLogin(t *testing.T) {
	db := newTestDB(t)
	doctor := createUser(t, db, models.RoleDoctor, "dr@example.com", "password123", nil)
	r := newAccountsRouter(db, &MockResetSender{}, "", "")

	w, resp := doJSON(t, r, http.MethodPost, "/auth/login", map[string]string{"email": "dr@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password", resp.Error)

	w, resp = doJSON(t, r, http.MethodPost, "/auth/login", map[string]string{"email": "nobody@example.com", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password", resp.Error, "unknown accounts look like bad passwords")

	w, resp = doJSON(t, r, http.MethodPost, "/auth/login", map[string]string{"email": "DR@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, resp.Error)
	token := resp.Data.(map[string]interface{})["accessToken"].(string)
	claims, err := utils.ValidateToken(token, testConfig().JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, doctor.ID, claims.UserID)
	assert.Equal(t, models.RoleDoctor, claims.Role)
}

func TestPasswordReset(t *testing.T) {
	db := newTestDB(t)
	patient := createUser(t, db, models.RolePatient, "pat@example.com", "old-password", nil)
	mailer := &MockResetSender{}
	r := newAccountsRouter(db, mailer, "", "")

	w, _ := doJSON(t, r, http.MethodPost, "/auth/reset-password", map[string]string{"email": "ghost@example.com"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, mailer.Sent())

	w, resp := doJSON(t, r, http.MethodPost, "/auth/reset-password", map[string]string{"email": "pat@example.com"})
	require.Equal(t, http.StatusOK, w.Code, resp.Error)
	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "pat@example.com", sent[0].to)
	assert.Contains(t, sent[0].link, "http://localhost:5173/reset-password?token=")
	token := tokenFromLink(t, sent[0].link)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", patient.ID).Error)
	assert.Equal(t, models.HashResetToken(token), stored.ResetToken, "only the hash is stored")

	w, resp = doJSON(t, r, http.MethodPost, "/auth/reset-password/confirm", map[string]string{"token": "not-the-token", "password": "new-password"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid or expired reset token", resp.Error)

	w, resp = doJSON(t, r, http.MethodPost, "/auth/reset-password/confirm", map[string]string{"token": token, "password": "new-password"})
	require.Equal(t, http.StatusOK, w.Code, resp.Error)

	require.NoError(t, db.First(&stored, "id = ?", patient.ID).Error)
	assert.Empty(t, stored.ResetToken)
	assert.Nil(t, stored.ResetTokenExpiry)
	assert.True(t, stored.CheckPassword("new-password"))

	w, _ = doJSON(t, r, http.MethodPost, "/auth/reset-password/confirm", map[string]string{"token": token, "password": "another-password"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "token is single use")

	w, _ = doJSON(t, r, http.MethodPost, "/auth/login", map[string]string{"email": "pat@example.com", "password": "new-password"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPasswordReset_ExpiredToken(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, models.RoleDoctor, "dr@example.com", "password123", nil)
	token, err := user.IssueResetToken(-time.Minute)
	require.NoError(t, err)
	require.NoError(t, db.Save(user).Error)

	r := newAccountsRouter(db, &MockResetSender{}, "", "")
	w, resp := doJSON(t, r, http.MethodPost, "/auth/reset-password/confirm", map[string]string{"token": token, "password": "new-password"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid or expired reset token", resp.Error)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", user.ID).Error)
	assert.True(t, stored.CheckPassword("password123"))
}

func TestProfile(t *testing.T) {
	db := newTestDB(t)
	doctor := createUser(t, db, models.RoleDoctor, "dr@example.com", "password123", nil)
	r := newAccountsRouter(db, &MockResetSender{}, doctor.ID, models.RoleDoctor)

	w, resp := doJSON(t, r, http.MethodGet, "/auth/profile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dr@example.com", resp.Data.(map[string]interface{})["email"])

	w, resp = doJSON(t, r, http.MethodPut, "/auth/profile", map[string]string{"firstName": "Gregory", "specialty": "Nephrology"})
	require.Equal(t, http.StatusOK, w.Code, resp.Error)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "Gregory", data["firstName"])
	assert.Equal(t, "Nephrology", data["specialty"])

	gone := newAccountsRouter(db, &MockResetSender{}, "deleted-user", models.RoleDoctor)
	w, _ = doJSON(t, gone, http.MethodGet, "/auth/profile", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = doJSON(t, gone, http.MethodPut, "/auth/profile", map[string]string{"firstName": "X"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreatePatient_WithoutPasswordSendsInvite(t *testing.T) {
	db := newTestDB(t)
	doctor := createUser(t, db, models.RoleDoctor, "dr@example.com", "password123", nil)
	mailer := &MockResetSender{}
	r := newAccountsRouter(db, mailer, doctor.ID, models.RoleDoctor)

	w, resp := doJSON(t, r, http.MethodPost, "/patients", map[string]string{
		"firstName": "Pat",
		"lastName":  "Smith",
		"email":     "pat@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code, resp.Error)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, doctor.ID, data["assignedDoctorId"])
	assert.Equal(t, "patient", data["role"])

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "pat@example.com", sent[0].to)
	u, err := url.Parse(sent[0].link)
	require.NoError(t, err)
	assert.Equal(t, []string{"token"}, keys(u.Query()), "the link carries a reset token and nothing else")

	var patient models.User
	require.NoError(t, db.First(&patient, "email = ?", "pat@example.com").Error)
	assert.Equal(t, models.HashResetToken(tokenFromLink(t, sent[0].link)), patient.ResetToken)
	require.NotNil(t, patient.ResetTokenExpiry)
	assert.True(t, patient.ResetTokenExpiry.After(time.Now()))

	// the invite link activates the account
	w, _ = doJSON(t, r, http.MethodPost, "/auth/reset-password/confirm", map[string]string{
		"token":    tokenFromLink(t, sent[0].link),
		"password": "chosen-password",
	})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = doJSON(t, r, http.MethodPost, "/auth/login", map[string]string{"email": "pat@example.com", "password": "chosen-password"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreatePatient_WithPasswordSendsNothing(t *testing.T) {
	db := newTestDB(t)
	doctor := createUser(t, db, models.RoleDoctor, "dr@example.com", "password123", nil)
	mailer := &MockResetSender{}
	r := newAccountsRouter(db, mailer, doctor.ID, models.RoleDoctor)

	w, _ := doJSON(t, r, http.MethodPost, "/patients", map[string]string{
		"firstName": "Pat",
		"lastName":  "Smith",
		"email":     "pat@example.com",
		"password":  "patient-password",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, mailer.Sent())

	w, resp := doJSON(t, r, http.MethodPost, "/patients", map[string]string{
		"firstName": "Other",
		"lastName":  "Person",
		"email":     "PAT@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Patient with this email already exists", resp.Error)

	w, _ = doJSON(t, r, http.MethodPost, "/patients", map[string]string{
		"firstName": "Other",
		"lastName":  "Person",
		"email":     "dr@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "emails are unique across roles")
}

func TestPatients_ScopedToDoctor(t *testing.T) {
	db := newTestDB(t)
	mine := createUser(t, db, models.RoleDoctor, "mine@example.com", "password123", nil)
	other := createUser(t, db, models.RoleDoctor, "other@example.com", "password123", nil)
	patient := createUser(t, db, models.RolePatient, "pat@example.com", "password123", mine)
	createUser(t, db, models.RolePatient, "theirs@example.com", "password123", other)

	owner := newAccountsRouter(db, &MockResetSender{}, mine.ID, models.RoleDoctor)
	stranger := newAccountsRouter(db, &MockResetSender{}, other.ID, models.RoleDoctor)

	w, resp := doJSON(t, owner, http.MethodGet, "/patients", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, _ = doJSON(t, owner, http.MethodGet, "/patients/"+patient.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = doJSON(t, stranger, http.MethodGet, "/patients/"+patient.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Patient not found", resp.Error)
	w, _ = doJSON(t, stranger, http.MethodPut, "/patients/"+patient.ID, map[string]string{"firstName": "Hijacked"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = doJSON(t, stranger, http.MethodDelete, "/patients/"+patient.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", patient.ID).Error)
	assert.Equal(t, "Test", stored.FirstName)

	// handing the patient over moves them out of the owner's scope
	w, resp = doJSON(t, owner, http.MethodPut, "/patients/"+patient.ID, map[string]string{"assignedDoctorId": other.ID})
	require.Equal(t, http.StatusOK, w.Code, resp.Error)
	w, _ = doJSON(t, owner, http.MethodGet, "/patients/"+patient.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = doJSON(t, stranger, http.MethodGet, "/patients/"+patient.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDeletePatient_RemovesAppointments(t *testing.T) {
	db := newTestDB(t)
	doctor := createUser(t, db, models.RoleDoctor, "dr@example.com", "password123", nil)
	leaving := createUser(t, db, models.RolePatient, "leaving@example.com", "password123", doctor)
	staying := createUser(t, db, models.RolePatient, "staying@example.com", "password123", doctor)

	at := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	for i, p := range []*models.User{leaving, leaving, staying} {
		appt := &models.Appointment{DoctorID: doctor.ID, PatientID: p.ID, Time: at.Add(time.Duration(i) * time.Hour), Treatment: "Checkup", Duration: "30m"}
		require.NoError(t, db.Create(appt).Error)
	}

	r := newAccountsRouter(db, &MockResetSender{}, doctor.ID, models.RoleDoctor)
	w, resp := doJSON(t, r, http.MethodDelete, "/patients/"+leaving.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, resp.Error)

	var count int64
	require.NoError(t, db.Model(&models.Appointment{}).Where("patient_id = ?", leaving.ID).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, db.Model(&models.Appointment{}).Where("patient_id = ?", staying.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", leaving.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteUser_Doctor(t *testing.T) {
	db := newTestDB(t)
	admin := createUser(t, db, models.RoleAdmin, "admin@example.com", "password123", nil)
	doctor := createUser(t, db, models.RoleDoctor, "dr@example.com", "password123", nil)
	patient := createUser(t, db, models.RolePatient, "pat@example.com", "password123", doctor)
	require.NoError(t, db.Create(&models.Appointment{
		DoctorID: doctor.ID, PatientID: patient.ID, Time: time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC), Treatment: "Checkup", Duration: "30m",
	}).Error)

	r := newAccountsRouter(db, &MockResetSender{}, admin.ID, models.RoleAdmin)
	w, resp := doJSON(t, r, http.MethodDelete, "/users/"+doctor.ID, nil)
	require.Equal(t, http.StatusOK, w.Code, resp.Error)

	var count int64
	require.NoError(t, db.Model(&models.Appointment{}).Count(&count).Error)
	assert.Zero(t, count)

	var stored models.User
	require.NoError(t, db.First(&stored, "id = ?", patient.ID).Error)
	assert.Nil(t, stored.AssignedDoctorID)

	w, _ = doJSON(t, r, http.MethodDelete, "/users/"+doctor.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func keys(v url.Values) []string {
	out := make([]string, 0, len(v))
	for k := range v {
		out = append(out, k)
	}
	return out
}
