package statestore

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdjv-envi/wastelog/pkg/config"
)

func testStore(t *testing.T) Store {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	store := NewStore(log, &config.StateConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteStateConfig{Path: ":memory:"},
	})
	require.NoError(t, store.Start(context.Background()))
	t.Cleanup(func() {
		require.NoError(t, store.Stop())
	})

	return store
}

func TestSession_SaveLoadsBack(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	expiry := time.Date(2024, 1, 17, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveSession(ctx, &SessionState{
		Token:     "tok-1",
		ExpiresAt: expiry,
		Role:      "user",
		Email:     "crew@example.com",
	}))

	state, err := store.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.Equal(t, "tok-1", state.Token)
	assert.Equal(t, expiry.UnixMilli(), state.ExpiresAt.UnixMilli())
	assert.Equal(t, "user", state.Role)
	assert.Equal(t, "crew@example.com", state.Email)
}

func TestSession_LoadWithoutSaveReturnsNil(t *testing.T) {
	store := testStore(t)

	state, err := store.LoadSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestSession_SaveReplacesExisting(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, &SessionState{
		Token:     "tok-1",
		ExpiresAt: time.Now().Add(time.Hour),
		Role:      "user",
		Email:     "old@example.com",
	}))
	require.NoError(t, store.SaveSession(ctx, &SessionState{
		Token:     "tok-2",
		ExpiresAt: time.Now().Add(2 * time.Hour),
		Role:      "admin",
		Email:     "new@example.com",
	}))

	state, err := store.LoadSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, state)

	assert.Equal(t, "tok-2", state.Token)
	assert.Equal(t, "new@example.com", state.Email)
}

func TestClearSession_RemovesSessionAndCompletedLog(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, &SessionState{
		Token:     "tok-1",
		ExpiresAt: time.Now().Add(time.Hour),
		Role:      "user",
		Email:     "crew@example.com",
	}))
	require.NoError(t, store.UpsertCompleted(ctx, &CompletedSubmission{
		Fingerprint: "P4-hazardous-2024-01-15-12.5-Solvent",
		CompletedAt: time.Now(),
	}))

	require.NoError(t, store.ClearSession(ctx))

	state, err := store.LoadSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, state)

	completed, err := store.ListCompleted(ctx)
	require.NoError(t, err)
	assert.Empty(t, completed, "the completed log belongs to the session")
}

func TestCompleted_UpsertIsIdempotent(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	first := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	require.NoError(t, store.UpsertCompleted(ctx, &CompletedSubmission{
		Fingerprint: "fp-1",
		CompletedAt: first,
	}))
	require.NoError(t, store.UpsertCompleted(ctx, &CompletedSubmission{
		Fingerprint: "fp-1",
		CompletedAt: second,
	}))

	completed, err := store.ListCompleted(ctx)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, second.UnixMilli(), completed[0].CompletedAt.UnixMilli())
}

func TestDeleteCompletedBefore(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.UpsertCompleted(ctx, &CompletedSubmission{
		Fingerprint: "old",
		CompletedAt: now.Add(-25 * time.Hour),
	}))
	require.NoError(t, store.UpsertCompleted(ctx, &CompletedSubmission{
		Fingerprint: "fresh",
		CompletedAt: now.Add(-time.Hour),
	}))

	require.NoError(t, store.DeleteCompletedBefore(ctx, now.Add(-24*time.Hour)))

	completed, err := store.ListCompleted(ctx)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "fresh", completed[0].Fingerprint)
}

func TestPreferences(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	// Absent key reads as empty.
	value, err := store.GetPreference(ctx, PrefDefaultSite)
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.SetPreference(ctx, PrefDefaultSite, "P4"))

	value, err = store.GetPreference(ctx, PrefDefaultSite)
	require.NoError(t, err)
	assert.Equal(t, "P4", value)

	// Overwrite wins.
	require.NoError(t, store.SetPreference(ctx, PrefDefaultSite, "P7"))

	value, err = store.GetPreference(ctx, PrefDefaultSite)
	require.NoError(t, err)
	assert.Equal(t, "P7", value)
}
