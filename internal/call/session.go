// Package call runs simulated confirmation phone calls. Each call is a
// small state machine (dialing, connected, ended) whose transitions are
// driven by scheduled timers, so the pacing of a real phone conversation
// can be reproduced without any telephony provider.
package call

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/abdi2332/calender-app/internal/appointments"
	"github.com/abdi2332/calender-app/internal/conversation"
	"github.com/abdi2332/calender-app/internal/observability/metrics"
	"github.com/abdi2332/calender-app/internal/speech"
	"github.com/abdi2332/calender-app/pkg/logging"
)

// Phase is the lifecycle state of a call.
type Phase string

const (
	PhaseDialing   Phase = "dialing"
	PhaseConnected Phase = "connected"
	PhaseEnded     Phase = "ended"
)

// Turn roles.
const (
	RolePatient   = "patient"
	RoleAssistant = "assistant"
)

// Event types delivered to session subscribers.
const (
	EventPhase       = "phase"
	EventTurn        = "turn"
	EventElapsed     = "elapsed"
	EventAppointment = "appointment"
)

var (
	// ErrNotActive is returned when a message arrives and the call is
	// not in a state that accepts patient input.
	ErrNotActive = errors.New("call: call is not accepting messages")

	// ErrReplyPending is returned when the assistant is still composing
	// a reply to the previous message.
	ErrReplyPending = errors.New("call: reply pending")

	// ErrNoAudio is returned when a turn has no synthesized audio.
	ErrNoAudio = errors.New("call: no audio for turn")
)

// Turn is one utterance in the transcript.
type Turn struct {
	Index    int       `json:"index"`
	Role     string    `json:"role"`
	Text     string    `json:"text"`
	HasAudio bool      `json:"has_audio"`
	At       time.Time `json:"at"`
}

// Event is pushed to subscribers on every observable change.
type Event struct {
	Type        string                    `json:"type"`
	Phase       Phase                     `json:"phase,omitempty"`
	Turn        *Turn                     `json:"turn,omitempty"`
	Elapsed     int                       `json:"elapsed_seconds,omitempty"`
	Appointment *appointments.Appointment `json:"appointment,omitempty"`
}

// State is a point-in-time snapshot of a call, safe to serialize.
type State struct {
	ID          string                   `json:"id"`
	Appointment appointments.Appointment `json:"appointment"`
	Phase       Phase                    `json:"phase"`
	Elapsed     int                      `json:"elapsed_seconds"`
	Composing   bool                     `json:"composing"`
	Outcome     string                   `json:"outcome,omitempty"`
	Turns       []Turn                   `json:"turns"`
}

// Delays holds the pacing of a simulated call.
type Delays struct {
	Dial     time.Duration
	Greeting time.Duration
	ReplyMin time.Duration
	ReplyMax time.Duration
	WrapUp   time.Duration
	Dismiss  time.Duration
}

// DefaultDelays mirrors the pacing of a short outbound confirmation call.
func DefaultDelays() Delays {
	return Delays{
		Dial:     2 * time.Second,
		Greeting: 1500 * time.Millisecond,
		ReplyMin: time.Second,
		ReplyMax: 2 * time.Second,
		WrapUp:   2 * time.Second,
		Dismiss:  1500 * time.Millisecond,
	}
}

const responderTimeout = 30 * time.Second

type sessionParams struct {
	id          string
	appt        appointments.Appointment
	responder   conversation.Responder
	synth       speech.Synthesizer
	applyUpdate func(ctx context.Context, id string, patch appointments.Update) (*appointments.Appointment, error)
	onEnded     func(st State)
	onDismiss   func(id string)
	sched       Scheduler
	delays      Delays
	logger      *logging.Logger
	metrics     *metrics.CallMetrics
	// jitter picks the extra reply delay in [0, max). Nil uses math/rand.
	jitter func(max time.Duration) time.Duration
}

// Session is one in-flight call. All exported methods are safe for
// concurrent use.
type Session struct {
	mu sync.Mutex

	id      string
	appt    appointments.Appointment
	phase   Phase
	turns   []Turn
	audio   map[int][]byte
	elapsed int

	composing bool
	ending   bool
	closed   bool
	outcome  string

	responder   conversation.Responder
	synth       speech.Synthesizer
	applyUpdate func(ctx context.Context, id string, patch appointments.Update) (*appointments.Appointment, error)
	onEnded     func(st State)
	onDismiss   func(id string)

	sched   Scheduler
	delays  Delays
	logger  *logging.Logger
	metrics *metrics.CallMetrics
	jitter  func(max time.Duration) time.Duration

	nextTimer int
	cancels   map[int]func()

	nextSub int
	subs    map[int]chan Event
}

func newSession(p sessionParams) *Session {
	logger := p.logger
	if logger == nil {
		logger = logging.Default()
	}
	jitter := p.jitter
	if jitter == nil {
		jitter = func(max time.Duration) time.Duration {
			if max <= 0 {
				return 0
			}
			return time.Duration(rand.Int63n(int64(max)))
		}
	}
	return &Session{
		id:          p.id,
		appt:        p.appt,
		phase:       PhaseDialing,
		audio:       make(map[int][]byte),
		responder:   p.responder,
		synth:       p.synth,
		applyUpdate: p.applyUpdate,
		onEnded:     p.onEnded,
		onDismiss:   p.onDismiss,
		sched:       p.sched,
		delays:      p.delays,
		logger:      logger.With("call_id", p.id, "appointment_id", p.appt.ID),
		metrics:     p.metrics,
		jitter:      jitter,
		cancels:     make(map[int]func()),
		subs:        make(map[int]chan Event),
	}
}

// ID returns the call identifier.
func (s *Session) ID() string { return s.id }

// Snapshot returns the current call state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() State {
	turns := make([]Turn, len(s.turns))
	copy(turns, s.turns)
	return State{
		ID:          s.id,
		Appointment: s.appt,
		Phase:       s.phase,
		Elapsed:     s.elapsed,
		Composing:   s.composing,
		Outcome:     s.outcome,
		Turns:       turns,
	}
}

// TurnAudio returns the synthesized audio for an assistant turn.
func (s *Session) TurnAudio(index int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	audio, ok := s.audio[index]
	if !ok || len(audio) == 0 {
		return nil, ErrNoAudio
	}
	out := make([]byte, len(audio))
	copy(out, audio)
	return out, nil
}

// Subscribe registers for call events. The channel is buffered; slow
// consumers lose events rather than stalling the call.
func (s *Session) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Event, 32)
	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

// start dials the call. Called once by the manager.
func (s *Session) start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.CallStarted()
	}
	s.emitLocked(Event{Type: EventPhase, Phase: PhaseDialing})
	s.scheduleLocked(s.delays.Dial, s.connect)
}

func (s *Session) connect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseDialing {
		return
	}
	s.phase = PhaseConnected
	s.emitLocked(Event{Type: EventPhase, Phase: PhaseConnected})
	s.scheduleLocked(s.delays.Greeting, func() { s.respond(0, "") })
	s.scheduleLocked(time.Second, s.tick)
}

// tick advances the elapsed counter once per second while connected.
func (s *Session) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseConnected {
		return
	}
	s.elapsed++
	s.emitLocked(Event{Type: EventElapsed, Elapsed: s.elapsed})
	s.scheduleLocked(time.Second, s.tick)
}

// Submit records a patient utterance and schedules the assistant reply.
func (s *Session) Submit(text string) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseConnected || s.ending {
		return Turn{}, ErrNotActive
	}
	if s.composing {
		return Turn{}, ErrReplyPending
	}

	turnIndex := len(s.turns)
	turn := s.appendTurnLocked(RolePatient, text, false)
	s.composing = true

	delay := s.delays.ReplyMin + s.jitter(s.delays.ReplyMax-s.delays.ReplyMin)
	s.scheduleLocked(delay, func() { s.respond(turnIndex, text) })
	return turn, nil
}

// respond produces one assistant turn. turnIndex is the transcript length
// before the utterance being answered; 0 means the opening greeting.
func (s *Session) respond(turnIndex int, utterance string) {
	s.mu.Lock()
	if s.phase != PhaseConnected {
		s.mu.Unlock()
		return
	}
	appt := s.appt
	history := chatHistory(s.turns[:turnIndex])
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), responderTimeout)
	defer cancel()

	rep, err := s.responder.Respond(ctx, appt, history, utterance, turnIndex)
	if err != nil {
		s.logger.Error("responder failed", "error", err)
		rep = conversation.Reply{
			Message: "I'm sorry, I'm having trouble hearing you. Could you say that again?",
			Path:    conversation.PathKeyword,
		}
	}

	audio := s.synthesize(ctx, rep.Message)

	s.mu.Lock()
	if s.phase != PhaseConnected {
		s.mu.Unlock()
		return
	}
	s.composing = false
	turn := s.appendTurnLocked(RoleAssistant, rep.Message, len(audio) > 0)
	if len(audio) > 0 {
		s.audio[turn.Index] = audio
	}
	if s.metrics != nil {
		s.metrics.ResponderPath(rep.Path)
	}

	if rep.Update == nil || rep.Update.Empty() {
		s.mu.Unlock()
		return
	}

	s.ending = true
	if rep.Update.Status != nil {
		s.outcome = string(*rep.Update.Status)
	}
	patch := *rep.Update
	s.mu.Unlock()

	s.persistUpdate(appt.ID, patch)

	s.mu.Lock()
	if s.phase == PhaseConnected {
		s.scheduleLocked(s.delays.WrapUp, s.end)
	}
	s.mu.Unlock()
}

func (s *Session) synthesize(ctx context.Context, text string) []byte {
	if s.synth == nil || text == "" {
		return nil
	}
	audio, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		// Audio is best-effort. The call proceeds as text-only.
		s.logger.Warn("speech synthesis failed", "error", err)
		return nil
	}
	return audio
}

// persistUpdate applies the negotiated patch to the store. A store
// failure is logged but never keeps the call from ending.
func (s *Session) persistUpdate(appointmentID string, patch appointments.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	updated, err := s.applyUpdate(ctx, appointmentID, patch)
	if err != nil {
		s.logger.Error("appointment update failed", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.appt = *updated
	s.emitLocked(Event{Type: EventAppointment, Appointment: updated})
}

// HangUp ends the call immediately, whatever it was doing.
func (s *Session) HangUp() {
	s.end()
}

func (s *Session) end() {
	s.mu.Lock()
	if s.phase == PhaseEnded {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseEnded
	s.composing = false
	s.emitLocked(Event{Type: EventPhase, Phase: PhaseEnded})
	if s.metrics != nil {
		s.metrics.CallEnded(s.outcome, float64(s.elapsed))
	}
	st := s.snapshotLocked()
	onEnded := s.onEnded
	s.scheduleLocked(s.delays.Dismiss, s.dismiss)
	s.mu.Unlock()

	if onEnded != nil {
		onEnded(st)
	}
}

func (s *Session) dismiss() {
	s.Close()
	if s.onDismiss != nil {
		s.onDismiss(s.id)
	}
}

// Close cancels every pending timer and closes subscriber channels. It is
// idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancels := s.cancels
	s.cancels = make(map[int]func())
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// scheduleLocked must be called with the mutex held. The wrapped callback
// drops silently once the session is closed.
func (s *Session) scheduleLocked(d time.Duration, fn func()) {
	if s.closed {
		return
	}
	id := s.nextTimer
	s.nextTimer++
	cancel := s.sched.After(d, func() {
		s.mu.Lock()
		delete(s.cancels, id)
		if s.closed {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		fn()
	})
	s.cancels[id] = cancel
}

func (s *Session) appendTurnLocked(role, text string, hasAudio bool) Turn {
	turn := Turn{
		Index:    len(s.turns),
		Role:     role,
		Text:     text,
		HasAudio: hasAudio,
		At:       time.Now().UTC(),
	}
	s.turns = append(s.turns, turn)
	s.emitLocked(Event{Type: EventTurn, Turn: &turn})
	return turn
}

func (s *Session) emitLocked(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func chatHistory(turns []Turn) []conversation.ChatMessage {
	history := make([]conversation.ChatMessage, 0, len(turns))
	for _, t := range turns {
		role := conversation.ChatRoleAssistant
		if t.Role == RolePatient {
			role = conversation.ChatRoleUser
		}
		history = append(history, conversation.ChatMessage{Role: role, Content: t.Text})
	}
	return history
}
