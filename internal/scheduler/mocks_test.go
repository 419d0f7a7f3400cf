package scheduler

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"healthcare-scheduler/internal/lock"
	"healthcare-scheduler/internal/models"
	"healthcare-scheduler/internal/notify"
)

// Compile-time checks
var (
	_ Repository  = (*memoryRepository)(nil)
	_ Notifier    = (*MockNotifier)(nil)
	_ lock.Locker = (*MockLocker)(nil)
)

// memoryRepository keeps rows in maps and enforces the slot unique index
// the way the database does.
type memoryRepository struct {
	mu    sync.Mutex
	users map[string]models.User
	appts map[string]models.Appointment

	// FailWith makes every call return this error.
	FailWith error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		users: make(map[string]models.User),
		appts: make(map[string]models.Appointment),
	}
}

func (r *memoryRepository) addUser(role models.Role, first, last string, assignedTo *models.User) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := models.User{
		BaseModel: models.BaseModel{ID: uuid.NewString()},
		Email:     first + "@example.com",
		FirstName: first,
		LastName:  last,
		Role:      role,
	}
	if role == models.RoleDoctor {
		u.Specialty = "Cardiology"
	}
	if assignedTo != nil {
		id := assignedTo.ID
		u.AssignedDoctorID = &id
	}
	r.users[u.ID] = u
	return &u
}

func (r *memoryRepository) withRelations(a models.Appointment) models.Appointment {
	if d, ok := r.users[a.DoctorID]; ok {
		a.Doctor = &d
	}
	if p, ok := r.users[a.PatientID]; ok {
		a.Patient = &p
	}
	return a
}

func (r *memoryRepository) slotTaken(a *models.Appointment) bool {
	if a.SlotKey == nil {
		return false
	}
	for id, other := range r.appts {
		if id != a.ID && other.SlotKey != nil && *other.SlotKey == *a.SlotKey {
			return true
		}
	}
	return false
}

func (r *memoryRepository) GetUser(_ context.Context, id string, role models.Role) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	u, ok := r.users[id]
	if !ok || u.Role != role {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r *memoryRepository) FindActiveBySlot(_ context.Context, doctorID string, at time.Time) (*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := models.SlotKey(doctorID, at)
	for _, a := range r.appts {
		if a.SlotKey != nil && *a.SlotKey == key && a.Status != models.StatusRejected {
			found := a
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memoryRepository) CreateAppointment(_ context.Context, appt *models.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	if err := appt.BeforeSave(nil); err != nil {
		return err
	}
	if r.slotTaken(appt) {
		return gorm.ErrDuplicatedKey
	}
	now := time.Now()
	appt.CreatedAt, appt.UpdatedAt = now, now
	stored := *appt
	stored.Doctor, stored.Patient = nil, nil
	r.appts[appt.ID] = stored
	return nil
}

func (r *memoryRepository) GetAppointment(_ context.Context, id string) (*models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	a = r.withRelations(a)
	return &a, nil
}

func (r *memoryRepository) GetDoctorAppointment(ctx context.Context, id, doctorID string) (*models.Appointment, error) {
	a, err := r.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != doctorID {
		return nil, gorm.ErrRecordNotFound
	}
	return a, nil
}

func (r *memoryRepository) UpdateStatusIfPending(_ context.Context, id, doctorID string, status models.AppointmentStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.DoctorID != doctorID || a.Status != models.StatusPending {
		return false, nil
	}
	a.Status = status
	if err := a.BeforeSave(nil); err != nil {
		return false, err
	}
	a.UpdatedAt = time.Now()
	r.appts[id] = a
	return true, nil
}

func (r *memoryRepository) SaveAppointment(_ context.Context, appt *models.Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := appt.BeforeSave(nil); err != nil {
		return err
	}
	if r.slotTaken(appt) {
		return gorm.ErrDuplicatedKey
	}
	stored := *appt
	stored.Doctor, stored.Patient = nil, nil
	r.appts[appt.ID] = stored
	return nil
}

func (r *memoryRepository) DeleteAppointment(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appts[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.appts, id)
	return nil
}

func (r *memoryRepository) list(match func(models.Appointment) bool) ([]models.Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return nil, r.FailWith
	}
	var out []models.Appointment
	for _, a := range r.appts {
		if match(a) {
			out = append(out, r.withRelations(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (r *memoryRepository) ListByDoctor(_ context.Context, doctorID string) ([]models.Appointment, error) {
	return r.list(func(a models.Appointment) bool { return a.DoctorID == doctorID })
}

func (r *memoryRepository) ListByPatient(_ context.Context, patientID string) ([]models.Appointment, error) {
	return r.list(func(a models.Appointment) bool { return a.PatientID == patientID })
}

func (r *memoryRepository) ListAll(_ context.Context) ([]models.Appointment, error) {
	return r.list(func(models.Appointment) bool { return true })
}

func (r *memoryRepository) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.appts)
}

// --- MockNotifier ---
type MockNotifier struct {
	SendStatusChangeFunc      func(ctx context.Context, change notify.StatusChange) error
	SendStatusChangeCallCount int32
}

func (m *MockNotifier) SendStatusChange(ctx context.Context, change notify.StatusChange) error {
	atomic.AddInt32(&m.SendStatusChangeCallCount, 1)
	if m.SendStatusChangeFunc != nil {
		return m.SendStatusChangeFunc(ctx, change)
	}
	return nil
}

// --- MockLocker ---
type MockLocker struct {
	WithSlotLockFunc func(ctx context.Context, doctorID string, at time.Time, fn func(ctx context.Context) error) error
}

func (m *MockLocker) WithSlotLock(ctx context.Context, doctorID string, at time.Time, fn func(ctx context.Context) error) error {
	if m.WithSlotLockFunc != nil {
		return m.WithSlotLockFunc(ctx, doctorID, at, fn)
	}
	return fn(ctx)
}
