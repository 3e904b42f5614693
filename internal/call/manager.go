package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abdi2332/calender-app/internal/appointments"
	"github.com/abdi2332/calender-app/internal/conversation"
	"github.com/abdi2332/calender-app/internal/observability/metrics"
	"github.com/abdi2332/calender-app/internal/speech"
	"github.com/abdi2332/calender-app/pkg/logging"
)

var (
	// ErrSessionNotFound is returned for an unknown call id.
	ErrSessionNotFound = errors.New("call: session not found")

	// ErrCallInProgress is returned when the appointment already has a
	// live call.
	ErrCallInProgress = errors.New("call: appointment already has an active call")
)

// ManagerConfig wires a Manager's collaborators. Synth, Archive and
// Metrics may be nil; the corresponding features degrade silently.
type ManagerConfig struct {
	Repo      appointments.Repository
	Notifier  appointments.ChangeNotifier
	Responder conversation.Responder
	Synth     speech.Synthesizer
	Archive   *TranscriptArchive
	Scheduler Scheduler
	Delays    Delays
	Logger    *logging.Logger
	Metrics   *metrics.CallMetrics
}

// Manager owns the live call sessions, one per appointment at most.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// byAppointment maps appointment id to the live call id.
	byAppointment map[string]string

	repo      appointments.Repository
	notifier  appointments.ChangeNotifier
	responder conversation.Responder
	synth     speech.Synthesizer
	archive   *TranscriptArchive
	sched     Scheduler
	delays    Delays
	logger    *logging.Logger
	metrics   *metrics.CallMetrics
}

// NewManager builds a Manager.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Repo == nil {
		return nil, errors.New("call: repository is required")
	}
	if cfg.Responder == nil {
		return nil, errors.New("call: responder is required")
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = appointments.NewNoopNotifier()
	}
	sched := cfg.Scheduler
	if sched == nil {
		sched = NewTimerScheduler()
	}
	delays := cfg.Delays
	if delays == (Delays{}) {
		delays = DefaultDelays()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		sessions:      make(map[string]*Session),
		byAppointment: make(map[string]string),
		repo:          cfg.Repo,
		notifier:      notifier,
		responder:     cfg.Responder,
		synth:         cfg.Synth,
		archive:       cfg.Archive,
		sched:         sched,
		delays:        delays,
		logger:        logger,
		metrics:       cfg.Metrics,
	}, nil
}

// Start dials a new call for the appointment. The appointment snapshot is
// taken once at dial time; later edits from elsewhere do not retarget the
// conversation.
func (m *Manager) Start(ctx context.Context, appointmentID string) (*Session, error) {
	appt, err := m.repo.Get(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("call: load appointment: %w", err)
	}

	m.mu.Lock()
	if liveID, ok := m.byAppointment[appointmentID]; ok {
		if _, stillLive := m.sessions[liveID]; stillLive {
			m.mu.Unlock()
			return nil, ErrCallInProgress
		}
		delete(m.byAppointment, appointmentID)
	}

	id := uuid.NewString()
	session := newSession(sessionParams{
		id:          id,
		appt:        *appt,
		responder:   m.responder,
		synth:       m.synth,
		applyUpdate: m.updateAppointment,
		onEnded:     m.archiveTranscript,
		onDismiss:   m.remove,
		sched:       m.sched,
		delays:      m.delays,
		logger:      m.logger,
		metrics:     m.metrics,
	})
	m.sessions[id] = session
	m.byAppointment[appointmentID] = id
	m.mu.Unlock()

	m.logger.Info("call started", "call_id", id, "appointment_id", appointmentID)
	session.start()
	return session, nil
}

// Get returns the live session with the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Dismiss force-closes a session before its dismiss timer fires.
func (m *Manager) Dismiss(id string) error {
	session, err := m.Get(id)
	if err != nil {
		return err
	}
	session.Close()
	m.remove(id)
	return nil
}

// Shutdown closes every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.byAppointment = make(map[string]string)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	delete(m.byAppointment, session.appt.ID)
}

// updateAppointment persists the negotiated patch and fans out the change
// signal.
func (m *Manager) updateAppointment(ctx context.Context, id string, patch appointments.Update) (*appointments.Appointment, error) {
	updated, err := m.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if err := m.notifier.Publish(ctx); err != nil {
		m.logger.Warn("failed to publish appointment change", "error", err)
	}
	return updated, nil
}

func (m *Manager) archiveTranscript(st State) {
	if m.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.archive.Save(ctx, st); err != nil {
			m.logger.Warn("failed to archive call transcript", "error", err)
		}
	}()
}
