package records

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/assets"
	"storefront/internal/catalog"
)

// runRecordStoreContract exercises the behaviour every catalog.RecordStore
// must provide.
func runRecordStoreContract(t *testing.T, store catalog.RecordStore) {
	ctx := context.Background()

	dune := catalog.Item{
		Title:     "Dune",
		Author:    "Herbert",
		Price:     decimal.RequireFromString("12.50"),
		Language:  "EN",
		Category:  "SciFi",
		Publisher: "Ace",
		Image:     assets.Ref("1700000000000000000_cover.jpg"),
	}

	t.Run("insert assigns id and version", func(t *testing.T) {
		saved, err := store.Save(ctx, dune)
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)
		assert.Equal(t, 1, saved.Version)
		assert.False(t, saved.CreatedAt.IsZero())

		got, err := store.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, saved.ID, got.ID)
		assert.Equal(t, "Dune", got.Title)
		assert.True(t, dune.Price.Equal(got.Price))
		assert.Equal(t, dune.Image, got.Image)
	})

	t.Run("prices round trip exactly", func(t *testing.T) {
		for _, price := range []string{"0", "0.1", "12.34", "9999999999.99"} {
			item := dune
			item.Image = ""
			item.Price = decimal.RequireFromString(price)

			saved, err := store.Save(ctx, item)
			require.NoError(t, err)
			assert.True(t, item.Price.Equal(saved.Price), "saved %s as %s", price, saved.Price)

			got, err := store.FindByID(ctx, saved.ID)
			require.NoError(t, err)
			assert.True(t, saved.Price.Equal(got.Price), "read %s back as %s", price, got.Price)
			require.NoError(t, store.DeleteByID(ctx, saved.ID, saved.Version))
		}
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := store.FindByID(ctx, "unknown-id")
		assert.ErrorIs(t, err, catalog.ErrNotFound)

		err = store.DeleteByID(ctx, "unknown-id", 1)
		assert.ErrorIs(t, err, catalog.ErrNotFound)

		_, err = store.Save(ctx, catalog.Item{ID: "unknown-id", Title: "x", Author: "y", Version: 1})
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})

	t.Run("update bumps version and clears image", func(t *testing.T) {
		item := dune
		item.Image = ""
		saved, err := store.Save(ctx, item)
		require.NoError(t, err)

		saved.Title = "Dune Messiah"
		saved.Image = "1700000000000000001_messiah.jpg"
		updated, err := store.Save(ctx, saved)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Version)

		updated.Image = ""
		cleared, err := store.Save(ctx, updated)
		require.NoError(t, err)

		got, err := store.FindByID(ctx, saved.ID)
		require.NoError(t, err)
		assert.Equal(t, "Dune Messiah", got.Title)
		assert.True(t, got.Image.IsZero())
		assert.Equal(t, cleared.Version, got.Version)
	})

	t.Run("stale writes conflict", func(t *testing.T) {
		item := dune
		item.Image = ""
		saved, err := store.Save(ctx, item)
		require.NoError(t, err)

		_, err = store.Save(ctx, saved)
		require.NoError(t, err)

		_, err = store.Save(ctx, saved)
		assert.ErrorIs(t, err, catalog.ErrConflict)

		err = store.DeleteByID(ctx, saved.ID, saved.Version)
		assert.ErrorIs(t, err, catalog.ErrConflict)

		_, err = store.FindByID(ctx, saved.ID)
		assert.NoError(t, err)
	})

	t.Run("delete then find", func(t *testing.T) {
		item := dune
		item.Image = ""
		saved, err := store.Save(ctx, item)
		require.NoError(t, err)

		require.NoError(t, store.DeleteByID(ctx, saved.ID, saved.Version))
		_, err = store.FindByID(ctx, saved.ID)
		assert.ErrorIs(t, err, catalog.ErrNotFound)
		assert.ErrorIs(t, store.DeleteByID(ctx, saved.ID, saved.Version), catalog.ErrNotFound)
	})

	t.Run("find all", func(t *testing.T) {
		items, err := store.FindAll(ctx)
		require.NoError(t, err)
		assert.NotEmpty(t, items)
		for _, it := range items {
			assert.NotEmpty(t, it.ID)
		}
	})
}

func TestMemoryRecordStore(t *testing.T) {
	runRecordStoreContract(t, NewMemory())
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	saved, err := m.Save(ctx, catalog.Item{Title: "a", Author: "b"})
	require.NoError(t, err)
	saved.Title = "mutated"

	got, err := m.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title)
}
