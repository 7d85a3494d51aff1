package export

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cropharvest/internal/harvest"
	"github.com/JakeFAU/cropharvest/internal/storage/memory"
)

func crop(name, url string) *harvest.CropRecord {
	return &harvest.CropRecord{Name: name, SourceURL: url, DataSource: "site"}
}

func TestFlushWritesEveryRecordInOrder(t *testing.T) {
	t.Parallel()

	blob := memory.NewBlobStore()
	exp, err := New(blob, "snapshots/crops.json", nil)
	require.NoError(t, err)

	n := 150.0
	exp.Add(crop("Tomatoes", "https://a"))
	exp.Add(&harvest.NutrientRecipeRecord{CropName: "Tomatoes", NitrogenPPM: &n, SourceURL: "https://a", DataSource: "site"})
	exp.Add(crop("Beans", "https://b"))
	exp.Add(crop("Tomatoes", "https://a")) // duplicates are kept

	uri, count, err := exp.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "memory://snapshots/crops.json", uri)
	assert.Equal(t, 4, count)

	raw, contentType, ok := blob.Object("snapshots/crops.json")
	require.True(t, ok)
	assert.Equal(t, ContentType, contentType)
	assert.Contains(t, string(raw), "\n  {\n    \"record_type\": \"crop\"")

	var got []map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Len(t, got, 4)
	assert.Equal(t, "Tomatoes", got[0]["name"])
	assert.Equal(t, "nutrient_recipe", got[1]["record_type"])
	assert.Equal(t, 150.0, got[1]["nitrogen_ppm"])
	assert.Equal(t, "Beans", got[2]["name"])
	assert.Equal(t, "https://a", got[3]["source_url"])
}

func TestFlushEmptyWritesEmptyArray(t *testing.T) {
	t.Parallel()

	blob := memory.NewBlobStore()
	exp, err := New(blob, "empty.json", nil)
	require.NoError(t, err)

	_, count, err := exp.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	raw, _, ok := blob.Object("empty.json")
	require.True(t, ok)
	assert.Equal(t, "[]", string(raw))

	_, _, err = exp.Flush(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDiscardWritesNothing(t *testing.T) {
	t.Parallel()

	blob := memory.NewBlobStore()
	exp, err := New(blob, "crops.json", nil)
	require.NoError(t, err)

	exp.Add(crop("Tomatoes", "https://a"))
	exp.Discard()
	exp.Add(crop("Beans", "https://b"))
	assert.Zero(t, exp.Len())

	_, _, err = exp.Flush(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, blob.Len())
}

type failingBlob struct{}

func (failingBlob) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func TestFlushPropagatesWriteFailure(t *testing.T) {
	t.Parallel()

	exp, err := New(failingBlob{}, "crops.json", nil)
	require.NoError(t, err)
	exp.Add(crop("Tomatoes", "https://a"))

	_, _, err = exp.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket unavailable")
}

func TestNewValidatesArguments(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "x", nil)
	assert.Error(t, err)
	_, err = New(memory.NewBlobStore(), "", nil)
	assert.Error(t, err)
}
