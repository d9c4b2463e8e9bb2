package cookbooks

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/larder/pkg/apperr"
	"github.com/platinummonkey/larder/pkg/config"
	"github.com/platinummonkey/larder/pkg/membership"
	"github.com/platinummonkey/larder/pkg/objectstore"
	"github.com/platinummonkey/larder/pkg/quota"
	"github.com/platinummonkey/larder/pkg/recipes"
	"github.com/platinummonkey/larder/pkg/storage/sqltest"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

type fixture struct {
	db      *sql.DB
	svc     *Service
	recipes *recipes.Service
	members *membership.Service
	mem     *objectstore.MemoryStore
	owner   int64
	other   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := sqltest.New(t)
	mem := objectstore.NewMemoryStore()
	images := objectstore.NewImages(mem, config.ObjectStoreConfig{
		PublicBucket:  "larder-public",
		PrivateBucket: "larder-private",
		PresignTTL:    time.Hour,
		PresignCache:  16,
	})
	members := membership.NewService(db, nil)
	quotas := quota.NewService(db, quota.DefaultsFromConfig(config.QuotaConfig{DefaultLimit: 5, DefaultFrequency: "DAILY"}), nil)
	recipeService := recipes.NewService(db, members, images, quotas, nil)
	return &fixture{
		db:      db,
		svc:     NewService(db, members, recipeService, images),
		recipes: recipeService,
		members: members,
		mem:     mem,
		owner:   sqltest.InsertUser(t, db, "owner@example.com"),
		other:   sqltest.InsertUser(t, db, "other@example.com"),
	}
}

func (f *fixture) recipe(t *testing.T, title string) int64 {
	t.Helper()
	d, err := f.recipes.Create(context.Background(), f.owner, recipes.Content{Title: title})
	require.NoError(t, err)
	return d.ID
}

func TestCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Create(ctx, f.owner, Create{Title: "  Weeknights ", IsPublic: true})
	require.NoError(t, err)
	assert.Equal(t, "Weeknights", d.Title)
	assert.True(t, d.IsPublic)
	assert.Equal(t, membership.RoleOwner, d.Role)
	require.Len(t, d.Members, 1)
	assert.Equal(t, f.owner, d.Members[0].UserID)
	assert.Equal(t, membership.RoleOwner, d.Members[0].Role)

	_, err = f.svc.Create(ctx, f.owner, Create{Title: "   "})
	assert.Equal(t, apperr.Invalid, apperr.KindOf(err))
}

func TestCreateRollsBackWhenOwnerInsertFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(db, membership.NewService(db, nil), nil, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO cookbooks`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(4))
	mock.ExpectExec(`INSERT INTO users_on_cookbooks`).WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = svc.Create(t.Context(), 1, Create{Title: "Weeknights"})
	require.Error(t, err)
	assert.Equal(t, apperr.Internal, apperr.KindOf(err))
	assert.Equal(t, "failed to create cookbook", apperr.Message(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Create(ctx, f.owner, Create{Title: "Soups"})
	require.NoError(t, err)
	recipeID := f.recipe(t, "Minestrone")
	require.NoError(t, f.svc.AddRecipe(ctx, d.ID, recipeID))

	title := "Stews"
	public := true
	updated, err := f.svc.Update(ctx, d.ID, membership.RoleEditor, Update{Title: &title, IsPublic: &public})
	require.NoError(t, err)
	assert.Equal(t, "Stews", updated.Title)
	assert.True(t, updated.IsPublic)
	assert.Equal(t, membership.RoleEditor, updated.Role)

	blank := " "
	_, err = f.svc.Update(ctx, d.ID, membership.RoleOwner, Update{Title: &blank})
	assert.Equal(t, apperr.Invalid, apperr.KindOf(err))

	require.NoError(t, f.svc.Delete(ctx, d.ID))
	_, err = f.svc.Get(ctx, d.ID, membership.RoleOwner)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	// the recipe outlives its cookbook
	_, err = f.recipes.Get(ctx, recipeID, membership.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(f.svc.Delete(ctx, d.ID)))
}

func TestRecipeLinks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Create(ctx, f.owner, Create{Title: "Baking"})
	require.NoError(t, err)
	recipeID := f.recipe(t, "Focaccia")

	require.NoError(t, f.svc.AddRecipe(ctx, d.ID, recipeID))
	assert.Equal(t, apperr.Conflict, apperr.KindOf(f.svc.AddRecipe(ctx, d.ID, recipeID)))

	require.NoError(t, f.svc.RemoveRecipe(ctx, d.ID, recipeID))
	assert.Equal(t, apperr.Invalid, apperr.KindOf(f.svc.RemoveRecipe(ctx, d.ID, recipeID)))
}

func TestListMine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pasta, err := f.svc.Create(ctx, f.owner, Create{Title: "Pasta Nights"})
	require.NoError(t, err)
	bread, err := f.svc.Create(ctx, f.owner, Create{Title: "Bread"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.other, Create{Title: "Someone else's pasta"})
	require.NoError(t, err)

	first := f.recipe(t, "Carbonara")
	second := f.recipe(t, "Cacio e pepe")
	require.NoError(t, f.svc.AddRecipe(ctx, pasta.ID, first))
	require.NoError(t, f.svc.AddRecipe(ctx, pasta.ID, second))
	_, err = f.recipes.UploadImage(ctx, first, bytes.NewReader(pngBytes), int64(len(pngBytes)), "image/png")
	require.NoError(t, err)

	items, err := f.svc.ListMine(ctx, f.owner, ListOptions{}, 15, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	byID := map[int64]Summary{}
	for _, item := range items {
		assert.Equal(t, membership.RoleOwner, item.Role)
		byID[item.ID] = item
	}
	assert.Equal(t, 2, byID[pasta.ID].RecipeCount)
	assert.True(t, strings.HasPrefix(byID[pasta.ID].CoverURL, "memory://larder-private/recipes/"), byID[pasta.ID].CoverURL)
	assert.Equal(t, 0, byID[bread.ID].RecipeCount)
	assert.Empty(t, byID[bread.ID].CoverURL)

	items, err = f.svc.ListMine(ctx, f.owner, ListOptions{Search: "PASTA"}, 15, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, pasta.ID, items[0].ID)

	items, err = f.svc.ListMine(ctx, f.owner, ListOptions{ExcludedRecipeID: first}, 15, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, bread.ID, items[0].ID)

	items, err = f.svc.ListMine(ctx, f.owner, ListOptions{}, 1, 1)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRecipesFallBackToCookbookRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Create(ctx, f.owner, Create{Title: "Shared"})
	require.NoError(t, err)
	recipeID := f.recipe(t, "Pho")
	require.NoError(t, f.svc.AddRecipe(ctx, d.ID, recipeID))
	require.NoError(t, f.members.AddMembers(ctx, membership.KindCookbook, f.owner, d.ID,
		[]membership.MemberInput{{UserID: f.other, Role: membership.RoleViewer}}))

	items, err := f.svc.Recipes(ctx, f.other, d.ID, membership.RoleViewer, recipes.Filter{}, 15, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, recipeID, items[0].ID)
	assert.Equal(t, membership.RoleViewer, items[0].Role)

	items, err = f.svc.Recipes(ctx, f.owner, d.ID, membership.RoleOwner, recipes.Filter{}, 15, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, membership.RoleOwner, items[0].Role)
}
