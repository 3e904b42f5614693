package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdi2332/calender-app/internal/appointments"
	"github.com/abdi2332/calender-app/internal/conversation"
)

// fakeScheduler drives session timers on a virtual clock.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int
	timers map[int]fakeTimer
}

type fakeTimer struct {
	at time.Duration
	fn func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{timers: make(map[int]fakeTimer)}
}

func (f *fakeScheduler) After(d time.Duration, fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.timers[id] = fakeTimer{at: f.now + d, fn: fn}
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.timers, id)
	}
}

// Advance moves virtual time forward, firing due timers in order.
// Callbacks run outside the scheduler lock so they can reschedule.
func (f *fakeScheduler) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now + d
	for {
		bestID := -1
		var bestAt time.Duration
		for id, t := range f.timers {
			if t.at <= target && (bestID == -1 || t.at < bestAt || (t.at == bestAt && id < bestID)) {
				bestID = id
				bestAt = t.at
			}
		}
		if bestID == -1 {
			break
		}
		timer := f.timers[bestID]
		delete(f.timers, bestID)
		f.now = timer.at
		f.mu.Unlock()
		timer.fn()
		f.mu.Lock()
	}
	f.now = target
	f.mu.Unlock()
}

// scriptedResponder records its arguments and replays canned replies.
type scriptedResponder struct {
	mu      sync.Mutex
	replies []conversation.Reply
	err     error
	calls   []respondCall
}

type respondCall struct {
	utterance string
	turnIndex int
	history   int
}

func (sr *scriptedResponder) Respond(ctx context.Context, appt appointments.Appointment, history []conversation.ChatMessage, utterance string, turnIndex int) (conversation.Reply, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.calls = append(sr.calls, respondCall{utterance: utterance, turnIndex: turnIndex, history: len(history)})
	if sr.err != nil {
		return conversation.Reply{}, sr.err
	}
	if len(sr.replies) == 0 {
		return conversation.Reply{Message: "ok", Path: conversation.PathKeyword}, nil
	}
	rep := sr.replies[0]
	if len(sr.replies) > 1 {
		sr.replies = sr.replies[1:]
	}
	return rep, nil
}

type fakeSynth struct {
	audio []byte
	err   error
}

func (fs *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return fs.audio, fs.err
}

func testAppointment() appointments.Appointment {
	return appointments.Appointment{
		ID:              "a1",
		PatientName:     "Jane Doe",
		PhoneNumber:     "+1 (555) 010-0001",
		AppointmentTime: time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC),
		Status:          appointments.StatusPending,
	}
}

type sessionFixture struct {
	session   *Session
	sched     *fakeScheduler
	updates   []appointments.Update
	updateErr error
	updated   appointments.Appointment
	dismissed []string
	ended     []State
	mu        sync.Mutex
}

func newSessionFixture(t *testing.T, responder conversation.Responder, synth *fakeSynth) *sessionFixture {
	t.Helper()
	fx := &sessionFixture{sched: newFakeScheduler()}
	params := sessionParams{
		id:    "call-1",
		appt:  testAppointment(),
		sched: fx.sched,
		delays: Delays{
			Dial:     2 * time.Second,
			Greeting: 1500 * time.Millisecond,
			ReplyMin: time.Second,
			ReplyMax: 2 * time.Second,
			WrapUp:   2 * time.Second,
			Dismiss:  1500 * time.Millisecond,
		},
		responder: responder,
		jitter:    func(max time.Duration) time.Duration { return 0 },
		applyUpdate: func(ctx context.Context, id string, patch appointments.Update) (*appointments.Appointment, error) {
			fx.mu.Lock()
			defer fx.mu.Unlock()
			fx.updates = append(fx.updates, patch)
			if fx.updateErr != nil {
				return nil, fx.updateErr
			}
			updated := testAppointment()
			if patch.Status != nil {
				updated.Status = *patch.Status
			}
			if patch.AppointmentTime != nil {
				updated.AppointmentTime = *patch.AppointmentTime
			}
			fx.updated = updated
			return &updated, nil
		},
		onEnded: func(st State) {
			fx.mu.Lock()
			defer fx.mu.Unlock()
			fx.ended = append(fx.ended, st)
		},
		onDismiss: func(id string) {
			fx.mu.Lock()
			defer fx.mu.Unlock()
			fx.dismissed = append(fx.dismissed, id)
		},
	}
	if synth != nil {
		params.synth = synth
	}
	fx.session = newSession(params)
	t.Cleanup(fx.session.Close)
	return fx
}

func TestSessionDialsThenGreets(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	fx.session.start()

	st := fx.session.Snapshot()
	assert.Equal(t, PhaseDialing, st.Phase)
	assert.Empty(t, st.Turns)

	fx.sched.Advance(2 * time.Second)
	st = fx.session.Snapshot()
	assert.Equal(t, PhaseConnected, st.Phase)
	assert.Empty(t, st.Turns)

	fx.sched.Advance(1500 * time.Millisecond)
	st = fx.session.Snapshot()
	require.Len(t, st.Turns, 1)
	assert.Equal(t, RoleAssistant, st.Turns[0].Role)
	assert.Contains(t, st.Turns[0].Text, "Hello Jane Doe!")
	assert.Contains(t, st.Turns[0].Text, "Monday, March 10")
	assert.Contains(t, st.Turns[0].Text, "2:00 PM")
}

func TestSessionElapsedTicksWhileConnected(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	fx.session.start()

	fx.sched.Advance(2 * time.Second)
	assert.Equal(t, 0, fx.session.Snapshot().Elapsed)

	fx.sched.Advance(5 * time.Second)
	assert.Equal(t, 5, fx.session.Snapshot().Elapsed)

	fx.session.HangUp()
	fx.sched.Advance(10 * time.Second)
	assert.Equal(t, 5, fx.session.Snapshot().Elapsed)
}

func TestSessionConfirmFlow(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	fx.session.start()
	fx.sched.Advance(3500 * time.Millisecond) // dial + greeting

	_, err := fx.session.Submit("Yes, I'll be there")
	require.NoError(t, err)

	st := fx.session.Snapshot()
	require.Len(t, st.Turns, 2)
	assert.Equal(t, RolePatient, st.Turns[1].Role)
	assert.True(t, st.Composing)

	fx.sched.Advance(time.Second) // reply delay, jitter pinned to zero
	st = fx.session.Snapshot()
	require.Len(t, st.Turns, 3)
	assert.Contains(t, st.Turns[2].Text, "confirmed")
	assert.Equal(t, PhaseConnected, st.Phase)

	fx.mu.Lock()
	require.Len(t, fx.updates, 1)
	require.NotNil(t, fx.updates[0].Status)
	assert.Equal(t, appointments.StatusConfirmed, *fx.updates[0].Status)
	fx.mu.Unlock()

	assert.Equal(t, appointments.StatusConfirmed, fx.session.Snapshot().Appointment.Status)

	fx.sched.Advance(2 * time.Second) // wrap-up
	assert.Equal(t, PhaseEnded, fx.session.Snapshot().Phase)

	fx.sched.Advance(1500 * time.Millisecond) // dismiss
	fx.mu.Lock()
	assert.Equal(t, []string{"call-1"}, fx.dismissed)
	require.Len(t, fx.ended, 1)
	assert.Equal(t, PhaseEnded, fx.ended[0].Phase)
	fx.mu.Unlock()
}

func TestSessionCancelFlow(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	fx.session.start()
	fx.sched.Advance(3500 * time.Millisecond)

	_, err := fx.session.Submit("I need to cancel, something came up")
	require.NoError(t, err)
	fx.sched.Advance(time.Second)

	st := fx.session.Snapshot()
	require.Len(t, st.Turns, 3)
	assert.Contains(t, st.Turns[2].Text, "cancelled")

	fx.mu.Lock()
	require.Len(t, fx.updates, 1)
	assert.Equal(t, appointments.StatusCancelled, *fx.updates[0].Status)
	fx.mu.Unlock()

	fx.sched.Advance(2 * time.Second)
	assert.Equal(t, PhaseEnded, fx.session.Snapshot().Phase)
}

func TestSessionRescheduleFlow(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	fx.session.start()
	fx.sched.Advance(3500 * time.Millisecond)

	_, err := fx.session.Submit("Can we find a different time?")
	require.NoError(t, err)
	fx.sched.Advance(time.Second)

	fx.mu.Lock()
	require.Len(t, fx.updates, 1)
	assert.Equal(t, appointments.StatusRescheduled, *fx.updates[0].Status)
	assert.Nil(t, fx.updates[0].AppointmentTime)
	fx.mu.Unlock()
}

func TestSessionClarificationKeepsCallGoing(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	fx.session.start()
	fx.sched.Advance(3500 * time.Millisecond)

	_, err := fx.session.Submit("Hmm, who is this?")
	require.NoError(t, err)
	fx.sched.Advance(time.Second)

	st := fx.session.Snapshot()
	require.Len(t, st.Turns, 3)
	assert.Equal(t, PhaseConnected, st.Phase)
	fx.mu.Lock()
	assert.Empty(t, fx.updates)
	fx.mu.Unlock()

	// The call stays open for another try.
	_, err = fx.session.Submit("Sorry, yes I can make it")
	require.NoError(t, err)
	fx.sched.Advance(time.Second)
	fx.mu.Lock()
	require.Len(t, fx.updates, 1)
	assert.Equal(t, appointments.StatusConfirmed, *fx.updates[0].Status)
	fx.mu.Unlock()
}

func TestSessionTurnIndexAndHistory(t *testing.T) {
	responder := &scriptedResponder{}
	fx := newSessionFixture(t, responder, nil)
	fx.session.start()
	fx.sched.Advance(3500 * time.Millisecond)

	_, err := fx.session.Submit("first")
	require.NoError(t, err)
	fx.sched.Advance(time.Second)

	_, err = fx.session.Submit("second")
	require.NoError(t, err)
	fx.sched.Advance(time.Second)

	responder.mu.Lock()
	defer responder.mu.Unlock()
	require.Len(t, responder.calls, 3)
	// Greeting: empty utterance, no history.
	assert.Equal(t, 0, responder.calls[0].turnIndex)
	assert.Equal(t, "", responder.calls[0].utterance)
	// First patient message answered against the transcript before it.
	assert.Equal(t, 1, responder.calls[1].turnIndex)
	assert.Equal(t, "first", responder.calls[1].utterance)
	assert.Equal(t, 1, responder.calls[1].history)
	assert.Equal(t, 3, responder.calls[2].turnIndex)
	assert.Equal(t, 3, responder.calls[2].history)
}

func TestSessionRejectsMessageWhileReplying(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	fx.session.start()
	fx.sched.Advance(3500 * time.Millisecond)

	_, err := fx.session.Submit("hello")
	require.NoError(t, err)

	_, err = fx.session.Submit("hello again")
	assert.ErrorIs(t, err, ErrReplyPending)
}

func TestSessionRejectsMessageBeforeConnect(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	fx.session.start()

	_, err := fx.session.Submit("anyone there?")
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestSessionRejectsMessageDuringWrapUp(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	fx.session.start()
	fx.sched.Advance(3500 * time.Millisecond)

	_, err := fx.session.Submit("yes")
	require.NoError(t, err)
	fx.sched.Advance(time.Second)

	_, err = fx.session.Submit("wait, actually cancel")
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestSessionHangUpDropsPendingReply(t *testing.T) {
	responder := &scriptedResponder{}
	fx := newSessionFixture(t, responder, nil)
	fx.session.start()
	fx.sched.Advance(3500 * time.Millisecond)

	_, err := fx.session.Submit("yes")
	require.NoError(t, err)

	fx.session.HangUp()
	assert.Equal(t, PhaseEnded, fx.session.Snapshot().Phase)

	fx.sched.Advance(time.Second)
	// Only greeting and patient turn: the scheduled reply was discarded.
	assert.Len(t, fx.session.Snapshot().Turns, 2)
	fx.mu.Lock()
	assert.Empty(t, fx.updates)
	fx.mu.Unlock()
}

func TestSessionHangUpIsIdempotent(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	fx.session.start()
	fx.sched.Advance(2 * time.Second)

	fx.session.HangUp()
	fx.session.HangUp()

	fx.sched.Advance(1500 * time.Millisecond)
	fx.mu.Lock()
	assert.Len(t, fx.dismissed, 1)
	assert.Len(t, fx.ended, 1)
	fx.mu.Unlock()
}

func TestSessionEndsEvenWhenStoreFails(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	fx.updateErr = errors.New("db down")
	fx.session.start()
	fx.sched.Advance(3500 * time.Millisecond)

	_, err := fx.session.Submit("yes, confirm")
	require.NoError(t, err)
	fx.sched.Advance(time.Second)

	// Store rejected the patch; the local snapshot keeps its old status.
	assert.Equal(t, appointments.StatusPending, fx.session.Snapshot().Appointment.Status)

	fx.sched.Advance(2 * time.Second)
	assert.Equal(t, PhaseEnded, fx.session.Snapshot().Phase)
}

func TestSessionResponderErrorFallsBackToApology(t *testing.T) {
	responder := &scriptedResponder{err: errors.New("llm exploded")}
	fx := newSessionFixture(t, responder, nil)
	fx.session.start()
	fx.sched.Advance(3500 * time.Millisecond)

	st := fx.session.Snapshot()
	require.Len(t, st.Turns, 1)
	assert.Contains(t, st.Turns[0].Text, "trouble hearing")
	assert.Equal(t, PhaseConnected, st.Phase)
}

func TestSessionSynthesizesAssistantTurns(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), &fakeSynth{audio: []byte("mp3")})
	fx.session.start()
	fx.sched.Advance(3500 * time.Millisecond)

	st := fx.session.Snapshot()
	require.Len(t, st.Turns, 1)
	assert.True(t, st.Turns[0].HasAudio)

	audio, err := fx.session.TurnAudio(0)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), audio)
}

func TestSessionSynthesisFailureDegradesToText(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), &fakeSynth{err: errors.New("quota")})
	fx.session.start()
	fx.sched.Advance(3500 * time.Millisecond)

	st := fx.session.Snapshot()
	require.Len(t, st.Turns, 1)
	assert.False(t, st.Turns[0].HasAudio)

	_, err := fx.session.TurnAudio(0)
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestSessionSubscribeReceivesEvents(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	events, unsubscribe := fx.session.Subscribe()
	defer unsubscribe()

	fx.session.start()
	fx.sched.Advance(3500 * time.Millisecond)

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	// Dialing, connected, the first elapsed tick, then the greeting turn.
	assert.Equal(t, []string{EventPhase, EventPhase, EventElapsed, EventTurn}, types)
}

func TestSessionSubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	fx.session.Close()

	events, unsubscribe := fx.session.Subscribe()
	defer unsubscribe()
	_, open := <-events
	assert.False(t, open)
}

func TestSessionCloseStopsEverything(t *testing.T) {
	fx := newSessionFixture(t, conversation.NewKeywordResponder(), nil)
	fx.session.start()
	fx.session.Close()

	fx.sched.Advance(time.Minute)
	st := fx.session.Snapshot()
	assert.Equal(t, PhaseDialing, st.Phase)
	assert.Empty(t, st.Turns)
}
