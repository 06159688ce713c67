package handlers

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhelabs/fhegas/server/internal/database"
)

func openEventDB(t *testing.T) (*database.DB, string) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	user := &database.User{
		ID:           "u1",
		Username:     "u1",
		PasswordHash: "hash",
		APIKey:       "fhegas_u1",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, db.CreateUser(user))
	return db, user.ID
}

func countEvents(db *database.DB, userID string) int {
	var n int
	if err := db.QueryRow(
		`SELECT COUNT(*) FROM analysis_events WHERE user_id = ?`, userID,
	).Scan(&n); err != nil {
		return -1
	}
	return n
}

func TestEventRecorderPersistsNotifications(t *testing.T) {
	db, userID := openEventDB(t)
	rec := NewEventRecorder(db, 10*time.Millisecond)

	emitter := rec.ForUser(userID)
	emitter.CostUpdated("mul", 18000, 24)
	emitter.SubjectAnalyzed("0xabc", 104480)
	emitter.SuggestionEmitted("0xabc", "consider batching")

	require.Eventually(t, func() bool {
		return countEvents(db, userID) == 3
	}, 2*time.Second, 20*time.Millisecond)

	rows, err := db.Query(`
		SELECT event_type, subject_id, detail FROM analysis_events
		WHERE user_id = ? ORDER BY id
	`, userID)
	require.NoError(t, err)
	defer rows.Close()

	var got [][3]string
	for rows.Next() {
		var eventType, subjectID, detail string
		require.NoError(t, rows.Scan(&eventType, &subjectID, &detail))
		got = append(got, [3]string{eventType, subjectID, detail})
	}
	require.NoError(t, rows.Err())

	require.Equal(t, [][3]string{
		{"cost-updated", "", "mul base=18000 perByte=24"},
		{"subject-analyzed", "0xabc", "estimatedGas=104480"},
		{"suggestion-emitted", "0xabc", "consider batching"},
	}, got)
}

func TestEventRecorderDebouncesBursts(t *testing.T) {
	db, userID := openEventDB(t)

	// A delay the test will never reach: flushes are driven by hand so the
	// generation bookkeeping can be checked deterministically.
	rec := NewEventRecorder(db, time.Hour)

	rec.Schedule(userID, database.Event{Type: "cost-updated", Detail: "a", CreatedAt: time.Now()})
	rec.Schedule(userID, database.Event{Type: "cost-updated", Detail: "b", CreatedAt: time.Now()})

	// The first timer is stale after the second schedule bumped the
	// generation; its flush must write nothing.
	rec.flush(userID, 1)
	assert.Equal(t, 0, countEvents(db, userID))

	// The current generation flushes the whole burst in one batch.
	rec.flush(userID, 2)
	assert.Equal(t, 2, countEvents(db, userID))

	// A duplicate fire after the batch was flushed is a no-op.
	rec.flush(userID, 2)
	assert.Equal(t, 2, countEvents(db, userID))
}

func TestEventRecorderSeparatesUsers(t *testing.T) {
	db, userID := openEventDB(t)
	other := &database.User{
		ID:           "u2",
		Username:     "u2",
		PasswordHash: "hash",
		APIKey:       "fhegas_u2",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, db.CreateUser(other))

	rec := NewEventRecorder(db, time.Hour)
	rec.Schedule(userID, database.Event{Type: "cost-updated", Detail: "a", CreatedAt: time.Now()})
	rec.Schedule(other.ID, database.Event{Type: "cost-updated", Detail: "b", CreatedAt: time.Now()})

	rec.flush(userID, 1)
	assert.Equal(t, 1, countEvents(db, userID))
	assert.Equal(t, 0, countEvents(db, other.ID))
}
