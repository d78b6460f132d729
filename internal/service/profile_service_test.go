package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hamo/backend/internal/apperr"
	"hamo/backend/internal/models"
)

func TestEnsureProfileSingletonUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const callers = 24
	results := make([]models.UserProfile, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hint := "CLIENT"
			if i%2 == 0 {
				hint = "THERAPIST"
			}
			profile, err := f.profiles.EnsureProfile(ctx, "subject-1", hint)
			assert.NoError(t, err)
			results[i] = profile
		}(i)
	}
	wg.Wait()

	stored, err := f.profiles.GetProfile(ctx, "subject-1")
	require.NoError(t, err)
	for _, p := range results {
		assert.Equal(t, stored.Role, p.Role)
	}

	items, err := f.store.QueryByPrefix(ctx, "USER#subject-1", "PROFILE", kvQueryAll)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestEnsureProfileIgnoresLaterHints(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.profiles.EnsureProfile(ctx, "subject-1", "THERAPIST")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTherapist, first.Role)
	assert.Equal(t, "", first.Nickname)

	again, err := f.profiles.EnsureProfile(ctx, "subject-1", "CLIENT")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTherapist, again.Role)

	other, err := f.profiles.EnsureProfile(ctx, "subject-2", "admin")
	require.NoError(t, err)
	assert.Equal(t, models.RoleClient, other.Role)
}

func TestUpdateNickname(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.profiles.UpdateNickname(ctx, "subject-1", "Sam")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.profiles.EnsureProfile(ctx, "subject-1", "CLIENT")
	require.NoError(t, err)

	_, err = f.profiles.UpdateNickname(ctx, "subject-1", "   ")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	updated, err := f.profiles.UpdateNickname(ctx, "subject-1", "  Sam ")
	require.NoError(t, err)
	assert.Equal(t, "Sam", updated.Nickname)
	assert.NotNil(t, updated.UpdatedAt)
}
