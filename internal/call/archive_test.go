package call

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newArchiveFixture(t *testing.T) (*TranscriptArchive, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTranscriptArchive(client, nil), mr
}

func archivedState(callID string) State {
	appt := testAppointment()
	appt.Status = "confirmed"
	return State{
		ID:          callID,
		Appointment: appt,
		Phase:       PhaseEnded,
		Elapsed:     42,
		Turns: []Turn{
			{Index: 0, Role: RoleAssistant, Text: "Hello Jane Doe!", At: time.Now().UTC()},
			{Index: 1, Role: RolePatient, Text: "yes", At: time.Now().UTC()},
		},
	}
}

func TestArchiveSaveAndRecent(t *testing.T) {
	archive, _ := newArchiveFixture(t)
	ctx := context.Background()

	require.NoError(t, archive.Save(ctx, archivedState("call-1")))
	require.NoError(t, archive.Save(ctx, archivedState("call-2")))

	records, err := archive.Recent(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "call-1", records[0].CallID)
	assert.Equal(t, "call-2", records[1].CallID)
	assert.Equal(t, "a1", records[0].AppointmentID)
	assert.Equal(t, "confirmed", records[0].Status)
	assert.Equal(t, 42, records[0].Elapsed)
	require.Len(t, records[0].Turns, 2)
	assert.Equal(t, "Hello Jane Doe!", records[0].Turns[0].Text)
}

func TestArchiveRecentEmpty(t *testing.T) {
	archive, _ := newArchiveFixture(t)

	records, err := archive.Recent(context.Background(), "never-called")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestArchiveCapsHistory(t *testing.T) {
	archive, _ := newArchiveFixture(t)
	ctx := context.Background()

	for i := 0; i < transcriptKeep+5; i++ {
		require.NoError(t, archive.Save(ctx, archivedState(fmt.Sprintf("call-%d", i))))
	}

	records, err := archive.Recent(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, records, transcriptKeep)
	// Oldest entries were trimmed away.
	assert.Equal(t, "call-5", records[0].CallID)
}

func TestArchiveSetsExpiry(t *testing.T) {
	archive, mr := newArchiveFixture(t)

	require.NoError(t, archive.Save(context.Background(), archivedState("call-1")))
	ttl := mr.TTL(transcriptKey("a1"))
	assert.Equal(t, transcriptTTL, ttl)
}

func TestArchiveSkipsMalformedEntries(t *testing.T) {
	archive, mr := newArchiveFixture(t)
	ctx := context.Background()

	_, err := mr.Push(transcriptKey("a1"), "not json")
	require.NoError(t, err)
	require.NoError(t, archive.Save(ctx, archivedState("call-1")))

	records, err := archive.Recent(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "call-1", records[0].CallID)
}
