package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/upstars/corporate-discounts/internal/domain/auth"
	apperrors "github.com/upstars/corporate-discounts/internal/errors"
	"github.com/upstars/corporate-discounts/internal/testutil"
)

func TestAuthorizedUserRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	db := testutil.SetupTestDB(t)
	repo := NewAuthorizedUserRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Ping(ctx))

	t.Run("create and lookup case-insensitively", func(t *testing.T) {
		created, err := repo.Create(ctx, domainauth.AuthorizedUser{
			Email:   "Alice@Upstars.com",
			Name:    "Alice",
			Role:    domainauth.RoleAdmin,
			AddedBy: "seed",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.False(t, created.AddedAt.IsZero())

		got, err := repo.GetByEmail(ctx, "alice@UPSTARS.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, domainauth.RoleAdmin, got.Role)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		_, err := repo.Create(ctx, domainauth.AuthorizedUser{Email: "alice@upstars.com", Role: domainauth.RoleEditor})
		assert.True(t, apperrors.IsConflict(err))
	})

	t.Run("invalid role rejected before the database", func(t *testing.T) {
		_, err := repo.Create(ctx, domainauth.AuthorizedUser{Email: "x@upstars.com", Role: "owner"})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("replace all", func(t *testing.T) {
		err := repo.ReplaceAll(ctx, []domainauth.AuthorizedUser{
			{Email: "bob@upstars.com", Name: "Bob", Role: domainauth.RoleEditor},
			{Email: "carol@upstars.com", Name: "Carol", Role: domainauth.RoleAdmin},
		})
		require.NoError(t, err)

		users, err := repo.ListAuthorizedUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 2)
		assert.Equal(t, "bob@upstars.com", users[0].Email)
		assert.Equal(t, "carol@upstars.com", users[1].Email)

		_, err = repo.GetByEmail(ctx, "alice@upstars.com")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, "BOB@upstars.com"))
		assert.True(t, apperrors.IsNotFound(repo.Delete(ctx, "bob@upstars.com")))
	})
}
