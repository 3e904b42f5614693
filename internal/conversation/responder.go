package conversation

import (
	"context"

	"github.com/abdi2332/calender-app/internal/appointments"
)

// Responder path labels, used for logging and metrics.
const (
	PathKeyword     = "keyword"
	PathLLM         = "llm"
	PathLLMFallback = "llm_fallback"
)

// Reply is the responder's decision for one turn: the assistant message and
// an optional appointment patch.
type Reply struct {
	Message string
	Update  *appointments.Update
	// Path records which engine produced the reply.
	Path string
}

// Responder decides the next assistant message for a confirmation call.
// turnIndex is the count of turns already exchanged: 0 for the opening
// greeting, where utterance is empty. history holds the prior turns in
// order, excluding system prompts.
type Responder interface {
	Respond(ctx context.Context, appt appointments.Appointment, history []ChatMessage, utterance string, turnIndex int) (Reply, error)
}
