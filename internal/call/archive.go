package call

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/abdi2332/calender-app/pkg/logging"
)

const (
	transcriptKeyPrefix = "call_transcript:"
	transcriptTTL       = 30 * 24 * time.Hour
	transcriptKeep      = 20
)

// TranscriptRecord is the archived form of a finished call.
type TranscriptRecord struct {
	CallID        string `json:"call_id"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Elapsed       int    `json:"elapsed_seconds"`
	Turns         []Turn `json:"turns"`
	EndedAt       string `json:"ended_at"`
}

// TranscriptArchive keeps the transcripts of recent calls per appointment
// in Redis, newest last, capped and expiring.
type TranscriptArchive struct {
	redis  *redis.Client
	logger *logging.Logger
	tracer trace.Tracer
}

// NewTranscriptArchive creates an archive on the given Redis client.
func NewTranscriptArchive(redisClient *redis.Client, logger *logging.Logger) *TranscriptArchive {
	if redisClient == nil {
		panic("call: redis client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TranscriptArchive{
		redis:  redisClient,
		logger: logger,
		tracer: otel.Tracer("calenderapp.internal.call.archive"),
	}
}

func transcriptKey(appointmentID string) string {
	return transcriptKeyPrefix + appointmentID
}

// Save appends the finished call to the appointment's transcript list.
func (a *TranscriptArchive) Save(ctx context.Context, st State) error {
	ctx, span := a.tracer.Start(ctx, "call.archive.save")
	defer span.End()

	record := TranscriptRecord{
		CallID:        st.ID,
		AppointmentID: st.Appointment.ID,
		Status:        string(st.Appointment.Status),
		Elapsed:       st.Elapsed,
		Turns:         st.Turns,
		EndedAt:       time.Now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("call: marshal transcript: %w", err)
	}

	key := transcriptKey(st.Appointment.ID)
	pipe := a.redis.Pipeline()
	pipe.RPush(ctx, key, payload)
	pipe.LTrim(ctx, key, -transcriptKeep, -1)
	pipe.Expire(ctx, key, transcriptTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("call: archive transcript: %w", err)
	}
	return nil
}

// Recent returns the archived transcripts for an appointment, oldest
// first.
func (a *TranscriptArchive) Recent(ctx context.Context, appointmentID string) ([]TranscriptRecord, error) {
	ctx, span := a.tracer.Start(ctx, "call.archive.recent")
	defer span.End()

	raw, err := a.redis.LRange(ctx, transcriptKey(appointmentID), 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("call: load transcripts: %w", err)
	}

	records := make([]TranscriptRecord, 0, len(raw))
	for _, item := range raw {
		var record TranscriptRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			a.logger.Warn("skipping malformed transcript entry", "appointment_id", appointmentID, "error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
