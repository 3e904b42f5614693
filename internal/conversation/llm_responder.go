package conversation

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/abdi2332/calender-app/internal/appointments"
	"github.com/abdi2332/calender-app/pkg/logging"
)

// LLMResponder drives the conversation through a completion service. Any
// upstream failure degrades transparently to the keyword engine for that
// turn; a call never aborts because the model is unavailable.
type LLMResponder struct {
	client  LLMClient
	keyword *KeywordResponder
	logger  *logging.Logger
}

// NewLLMResponder wraps a completion client with the keyword fallback.
func NewLLMResponder(client LLMClient, logger *logging.Logger) *LLMResponder {
	if client == nil {
		panic("conversation: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &LLMResponder{
		client:  client,
		keyword: NewKeywordResponder(),
		logger:  logger,
	}
}

// Respond implements Responder.
func (r *LLMResponder) Respond(ctx context.Context, appt appointments.Appointment, history []ChatMessage, utterance string, turnIndex int) (Reply, error) {
	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, history...)
	if utterance != "" {
		messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: utterance})
	}

	maxTokens := int32(200)
	if turnIndex == 0 {
		maxTokens = 150
	}

	resp, err := r.client.Complete(ctx, LLMRequest{
		System:      []string{SystemPrompt(appt)},
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		r.logger.Warn("completion service unavailable, using keyword responder",
			"error", err,
			"turn", turnIndex,
		)
		reply, kerr := r.keyword.Respond(ctx, appt, history, utterance, turnIndex)
		reply.Path = PathLLMFallback
		return reply, kerr
	}

	reply := Reply{Message: resp.Text, Path: PathLLM}
	if turnIndex > 0 {
		reply.Update = ExtractUpdate(resp.Text, utterance)
	}
	if stripped := stripTrailingJSON(resp.Text); stripped != "" {
		reply.Message = stripped
	}
	return reply, nil
}

// actionPayload is the structured conclusion the model is instructed to
// append to its final reply.
type actionPayload struct {
	Action  string `json:"action"`
	NewTime string `json:"new_time"`
	Notes   string `json:"notes"`
}

// ExtractUpdate derives an appointment patch from an assistant reply. The
// structured JSON block wins; without it the user's own words are scanned
// for keywords. No update is ever inferred from anything else.
func ExtractUpdate(assistantText, utterance string) *appointments.Update {
	if payload, ok := parseTrailingJSON(assistantText); ok {
		switch payload.Action {
		case "confirm":
			return statusPatch(appointments.StatusConfirmed)
		case "cancel":
			return statusPatch(appointments.StatusCancelled)
		case "reschedule":
			if payload.NewTime != "" {
				if when, err := time.Parse(time.RFC3339, payload.NewTime); err == nil {
					update := statusPatch(appointments.StatusRescheduled)
					update.AppointmentTime = &when
					if payload.Notes != "" {
						update.Notes = &payload.Notes
					}
					return update
				}
			}
			// Reschedule without a parseable time falls through to the
			// keyword scan, same as an absent JSON block.
		}
	}

	return DetectIntent(utterance)
}

func parseTrailingJSON(text string) (actionPayload, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return actionPayload{}, false
	}

	var payload actionPayload
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return actionPayload{}, false
	}
	if payload.Action == "" {
		return actionPayload{}, false
	}
	return payload, true
}

// stripTrailingJSON removes the structured conclusion from the text shown
// to the user.
func stripTrailingJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return strings.TrimSpace(text)
	}
	if _, ok := parseTrailingJSON(text); !ok {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(text[:start] + text[end+1:])
}
