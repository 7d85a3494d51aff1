package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cropharvest/internal/harvest"
)

func TestStoreFirstPutWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewStore()
	first := &harvest.CropRecord{Name: "Tomatoes", WaterNeeds: "weekly", SourceURL: "u", DataSource: "d"}
	second := &harvest.CropRecord{Name: "Tomatoes", WaterNeeds: "daily", SourceURL: "u", DataSource: "d"}

	outcome, err := store.Put(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, harvest.Inserted, outcome)

	outcome, err = store.Put(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, harvest.SkippedDuplicate, outcome)

	got, ok := store.Get(first.Key())
	require.True(t, ok)
	assert.Equal(t, "weekly", got.(*harvest.CropRecord).WaterNeeds)
	assert.Len(t, store.Records(), 1)
}

func TestStoreClosedAndCancelled(t *testing.T) {
	t.Parallel()

	rec := &harvest.CropRecord{Name: "Beans", SourceURL: "u", DataSource: "d"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewStore()
	_, err := store.Put(ctx, rec)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, store.Close())
	_, err = store.Put(context.Background(), rec)
	var storageErr *harvest.StorageError
	assert.True(t, errors.As(err, &storageErr))
	assert.Empty(t, store.Records())
}
