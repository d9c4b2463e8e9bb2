//go:build integration

package membership

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/storage/sqltest"
)

func TestBatchesOnPostgres(t *testing.T) {
	f := newFixtureOn(t, sqltest.NewPostgres(t))
	ctx := t.Context()

	var batch []MemberInput
	var ids []int64
	for i := 0; i < 25; i++ {
		id := sqltest.InsertUser(t, f.db, fmt.Sprintf("pg-cook%d@example.com", i))
		batch = append(batch, MemberInput{UserID: id, Role: RoleViewer})
		ids = append(ids, id)
	}

	for round := 0; round < 10; round++ {
		require.NoError(t, f.service.AddMembers(ctx, KindCookbook, f.u1, f.cookbook, batch))
		require.Len(t, f.snapshot(t), len(batch)+1)

		require.NoError(t, f.service.EditMembers(ctx, KindCookbook, f.u1, f.cookbook, withRole(batch, RoleEditor)))
		for id, role := range f.snapshot(t) {
			if id != f.u1 {
				assert.Equal(t, RoleEditor, role)
			}
		}

		require.NoError(t, f.service.RemoveMembers(ctx, KindCookbook, f.u1, f.cookbook, ids))
		require.Len(t, f.snapshot(t), 1)
	}

	err := f.service.AddMembers(ctx, KindCookbook, f.u1, f.cookbook, append(withRole(batch, RoleViewer), MemberInput{UserID: 999999, Role: RoleViewer}))
	assert.True(t, apperr.Is(err, apperr.UnknownUser))
	assert.Len(t, f.snapshot(t), 1, "failed batch leaves no rows behind")

	// the pool stays usable after a rolled back batch
	require.NoError(t, f.service.AddMembers(ctx, KindRecipe, f.u1, f.recipe, batch[:3]))
	assert.Equal(t, RoleViewer, f.role(t, KindRecipe, batch[0].UserID, f.recipe))
}
