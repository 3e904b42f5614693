package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps appointments in memory. It backs demo deployments
// that run without a database.
type MemoryRepository struct {
	mu           sync.RWMutex
	appointments map[string]*Appointment
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[string]*Appointment),
	}
}

// List returns all appointments ordered by scheduled time.
func (r *MemoryRepository) List(ctx context.Context) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Appointment, 0, len(r.appointments))
	for _, appt := range r.appointments {
		out = append(out, *appt)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AppointmentTime.Before(out[j].AppointmentTime)
	})
	return out, nil
}

// Get retrieves an appointment by id.
func (r *MemoryRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	appt, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *appt
	return &copied, nil
}

// Create stores a new appointment.
func (r *MemoryRepository) Create(ctx context.Context, req *CreateRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	appt := &Appointment{
		ID:              uuid.New().String(),
		PatientName:     req.PatientName,
		PhoneNumber:     req.PhoneNumber,
		AppointmentTime: req.AppointmentTime,
		Status:          req.Status,
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	r.mu.Lock()
	r.appointments[appt.ID] = appt
	r.mu.Unlock()

	copied := *appt
	return &copied, nil
}

// Update applies a sparse patch.
func (r *MemoryRepository) Update(ctx context.Context, id string, patch Update) (*Appointment, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	if patch.Status != nil {
		appt.Status = *patch.Status
	}
	if patch.AppointmentTime != nil {
		appt.AppointmentTime = *patch.AppointmentTime
	}
	if patch.Notes != nil {
		appt.Notes = *patch.Notes
	}
	appt.UpdatedAt = time.Now().UTC()

	copied := *appt
	return &copied, nil
}

// Delete removes an appointment.
func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[id]; !ok {
		return ErrNotFound
	}
	delete(r.appointments, id)
	return nil
}

// SeedDemoData loads a handful of upcoming appointments so the calendar
// is not empty on first run.
func (r *MemoryRepository) SeedDemoData(ctx context.Context) error {
	base := time.Now().UTC().Truncate(time.Hour).Add(24 * time.Hour)
	seeds := []CreateRequest{
		{PatientName: "Jane Doe", PhoneNumber: "+15550100", AppointmentTime: base.Add(10 * time.Hour), Status: StatusPending},
		{PatientName: "Marcus Webb", PhoneNumber: "+15550101", AppointmentTime: base.Add(34 * time.Hour), Status: StatusPending, Notes: "Follow-up visit"},
		{PatientName: "Priya Patel", PhoneNumber: "+15550102", AppointmentTime: base.Add(49 * time.Hour), Status: StatusConfirmed},
		{PatientName: "Tom Okafor", PhoneNumber: "+15550103", AppointmentTime: base.Add(73 * time.Hour), Status: StatusPending, Notes: "New patient intake"},
	}
	for i := range seeds {
		if _, err := r.Create(ctx, &seeds[i]); err != nil {
			return err
		}
	}
	return nil
}
