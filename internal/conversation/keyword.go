package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/abdi2332/calender-app/internal/appointments"
)

// Intent keyword sets, scanned as case-insensitive substrings in priority
// order: confirmation before cancellation before rescheduling. Substring
// matching is deliberate ("cancellation" matches "cancel") to keep the demo
// behavior predictable.
var (
	confirmTokens    = []string{"yes", "confirm", "correct"}
	cancelTokens     = []string{"cancel", "can't make"}
	rescheduleTokens = []string{"reschedule", "different time", "change"}
)

// KeywordResponder is the scripted conversation engine. It is a pure
// function of its inputs and never fails, which makes it the terminal
// fallback when no completion service is available.
type KeywordResponder struct{}

// NewKeywordResponder returns the keyword-matching responder.
func NewKeywordResponder() *KeywordResponder {
	return &KeywordResponder{}
}

// Respond implements Responder.
func (kr *KeywordResponder) Respond(ctx context.Context, appt appointments.Appointment, history []ChatMessage, utterance string, turnIndex int) (Reply, error) {
	if turnIndex == 0 {
		return Reply{Message: Greeting(appt), Path: PathKeyword}, nil
	}

	if update := DetectIntent(utterance); update != nil {
		var msg string
		switch *update.Status {
		case appointments.StatusConfirmed:
			msg = "Perfect! Your appointment is confirmed. We'll see you then. Have a great day!"
		case appointments.StatusCancelled:
			msg = "I understand. I've cancelled your appointment. Please call us when you'd like to reschedule. Take care!"
		case appointments.StatusRescheduled:
			msg = "No problem! What date and time would work better for you?"
		}
		return Reply{Message: msg, Update: update, Path: PathKeyword}, nil
	}

	return Reply{
		Message: "I see. Would you like to confirm your appointment, reschedule, or cancel it?",
		Path:    PathKeyword,
	}, nil
}

// Greeting builds the opening message for a confirmation call.
func Greeting(appt appointments.Appointment) string {
	when := appt.AppointmentTime
	return fmt.Sprintf(
		"Hello %s! This is a reminder about your appointment on %s at %s. Can you confirm you'll be able to make it?",
		appt.PatientName,
		when.Format("Monday, January 2"),
		when.Format("3:04 PM"),
	)
}

// DetectIntent scans an utterance for status keywords and returns the
// resulting patch, or nil when nothing matches. On the reschedule path the
// new time is intentionally left unset; the caller keeps the conversation
// going instead of guessing.
func DetectIntent(utterance string) *appointments.Update {
	lower := strings.ToLower(utterance)

	if containsAny(lower, confirmTokens) {
		return statusPatch(appointments.StatusConfirmed)
	}
	if containsAny(lower, cancelTokens) {
		return statusPatch(appointments.StatusCancelled)
	}
	if containsAny(lower, rescheduleTokens) {
		return statusPatch(appointments.StatusRescheduled)
	}
	return nil
}

func containsAny(haystack string, tokens []string) bool {
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			return true
		}
	}
	return false
}

func statusPatch(s appointments.Status) *appointments.Update {
	return &appointments.Update{Status: &s}
}
