package conversation

import (
	"fmt"
	"strings"

	"github.com/abdi2332/calender-app/internal/appointments"
)

// SystemPrompt builds the fixed instruction sent to the completion service
// for a confirmation call about one appointment.
func SystemPrompt(appt appointments.Appointment) string {
	var sb strings.Builder

	sb.WriteString("You are a friendly medical office assistant making a confirmation call for an appointment.\n\n")
	sb.WriteString("Appointment Details:\n")
	sb.WriteString(fmt.Sprintf("- Patient: %s\n", appt.PatientName))
	sb.WriteString(fmt.Sprintf("- Date & Time: %s\n", appt.AppointmentTime.Format("Monday, January 2, 2006 at 3:04 PM")))
	sb.WriteString(fmt.Sprintf("- Current Status: %s\n", appt.Status))
	if appt.Notes != "" {
		sb.WriteString(fmt.Sprintf("- Notes: %s\n", appt.Notes))
	}

	sb.WriteString(`
Your task:
1. Greet the patient warmly
2. Confirm their appointment details
3. Ask if they can confirm or need to reschedule
4. If rescheduling, ask for their preferred date and time
5. Be concise and professional

Important:
- Keep responses brief (1-2 sentences)
- Be empathetic and understanding
- If they confirm, acknowledge and thank them
- If they reschedule, get the new date/time and confirm
- Use natural, conversational language

When the conversation concludes, include a JSON object in your response with the format:
{
  "action": "confirm" | "reschedule" | "cancel" | "none",
  "new_time": "ISO date string if rescheduling",
  "notes": "any additional notes"
}`)

	return sb.String()
}
