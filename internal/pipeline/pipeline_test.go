package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cropharvest/internal/clock/system"
	"github.com/JakeFAU/cropharvest/internal/corpus"
	"github.com/JakeFAU/cropharvest/internal/export"
	"github.com/JakeFAU/cropharvest/internal/harvest"
	"github.com/JakeFAU/cropharvest/internal/storage/memory"
	"github.com/JakeFAU/cropharvest/internal/storage/sqlite"
)

const tomatoPage = `<html><head><title>Growing Tomatoes</title></head><body>
<h1>Tomatoes</h1>
<p>Water deeply once a week, about 1 to 2 inches per week.</p>
<p>Use a balanced fertilizer such as NPK 10-10-10 at planting time.</p>
<p>During flowering, feed a nutrient solution with nitrogen at 150 ppm and potassium at 200 ppm.</p>
</body></html>`

func tomatoDoc(t *testing.T) harvest.Document {
	t.Helper()
	doc, err := corpus.FromHTML("https://extension.psu.edu/tomatoes", 200, []byte(tomatoPage))
	require.NoError(t, err)
	return harvest.Document{View: doc, Meta: harvest.MetadataFor(doc.URL())}
}

func newPipeline(t *testing.T, store harvest.Store, snap Snapshot, concurrency int) *Pipeline {
	t.Helper()
	clock := system.NewFixed(time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC))
	p, err := New(Config{Concurrency: concurrency, RunID: "run-test"},
		harvest.NewHarvester(nil), harvest.NewValidator(clock), store, snap, nil)
	require.NoError(t, err)
	return p
}

func TestRunTomatoes(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	blob := memory.NewBlobStore()
	exp, err := export.New(blob, "snap.json", nil)
	require.NoError(t, err)

	p := newPipeline(t, store, exp, 2)
	summary, err := p.Run(context.Background(), Documents(tomatoDoc(t)))
	require.NoError(t, err)
	assert.True(t, p.Done())

	assert.Equal(t, harvest.Summary{
		Documents: 1, Built: 2, Validated: 2, Persisted: 2, Exported: 2,
	}, summary)

	records := store.Records()
	require.Len(t, records, 2)
	crop, ok := records[0].(*harvest.CropRecord)
	require.True(t, ok)
	assert.Equal(t, "Tomatoes", crop.Name)
	assert.Equal(t, "Penn State Extension", crop.DataSource)
	require.NotNil(t, crop.FertilizerNPK)
	assert.Equal(t, "10-10-10", crop.FertilizerNPK.String())
	assert.Equal(t, time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC), crop.ScrapedAt)

	raw, _, ok := blob.Object("snap.json")
	require.True(t, ok)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(raw, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "crop", rows[0]["record_type"])
	assert.Equal(t, "nutrient_recipe", rows[1]["record_type"])
	assert.Equal(t, "flowering", rows[1]["stage_of_growth"])
}

func TestSecondRunReportsDuplicates(t *testing.T) {
	t.Parallel()

	store, err := sqlite.Open(context.Background(), sqlite.Config{Path: filepath.Join(t.TempDir(), "crops.db")}, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, store.Close()) }()

	first, err := newPipeline(t, store, nil, 1).Run(context.Background(), Documents(tomatoDoc(t)))
	require.NoError(t, err)
	assert.Equal(t, 2, first.Persisted)
	assert.Zero(t, first.Duplicates)

	second, err := newPipeline(t, store, nil, 1).Run(context.Background(), Documents(tomatoDoc(t)))
	require.NoError(t, err)
	assert.Zero(t, second.Persisted)
	assert.Equal(t, 2, second.Duplicates)
}

func TestRunRejectsNamelessRecords(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	nameless := corpus.New("https://site/", "", "", []string{"Water deeply once a week."})
	summary, err := newPipeline(t, store, nil, 1).Run(context.Background(), Documents(
		harvest.Document{View: nameless, Meta: harvest.MetadataFor(nameless.URL())},
	))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Built)
	assert.Equal(t, 1, summary.Rejected)
	assert.Zero(t, summary.Persisted)
	assert.Empty(t, store.Records())
}

func TestSnapshotKeepsArrivalOrderAndDuplicates(t *testing.T) {
	t.Parallel()

	beans := corpus.New("https://site/plants/green-beans", "", "", []string{"Water beans twice a week."})
	docs := Documents(
		harvest.Document{View: beans, Meta: harvest.MetadataFor(beans.URL())},
		harvest.Document{View: beans, Meta: harvest.MetadataFor(beans.URL())},
		tomatoDoc(t),
	)
	blob := memory.NewBlobStore()
	exp, err := export.New(blob, "snap.json", nil)
	require.NoError(t, err)

	summary, err := newPipeline(t, memory.NewStore(), exp, 1).Run(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, 4, summary.Exported)

	raw, _, ok := blob.Object("snap.json")
	require.True(t, ok)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(raw, &rows))
	names := make([]any, 0, len(rows))
	for _, r := range rows {
		if r["record_type"] == "crop" {
			names = append(names, r["name"])
		}
	}
	assert.Equal(t, []any{"Green Beans", "Green Beans", "Tomatoes"}, names)
}

func TestRunCanceledDiscardsSnapshot(t *testing.T) {
	t.Parallel()

	blob := memory.NewBlobStore()
	exp, err := export.New(blob, "snap.json", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newPipeline(t, memory.NewStore(), exp, 2).Run(ctx, Documents(tomatoDoc(t)))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, blob.Len())
}

type failingStore struct{}

func (failingStore) Put(_ context.Context, rec harvest.Record) (harvest.Outcome, error) {
	return 0, &harvest.StorageError{Op: "insert", Key: rec.Key(), Err: errors.New("disk full")}
}

func (failingStore) Close() error { return nil }

func TestStorageErrorAbortsRun(t *testing.T) {
	t.Parallel()

	blob := memory.NewBlobStore()
	exp, err := export.New(blob, "snap.json", nil)
	require.NoError(t, err)

	docs := make([]harvest.Document, 5)
	for i := range docs {
		docs[i] = tomatoDoc(t)
	}
	_, err = newPipeline(t, failingStore{}, exp, 3).Run(context.Background(), Documents(docs...))
	var storageErr *harvest.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "insert", storageErr.Op)
	assert.Zero(t, blob.Len())
}

type brokenSource struct{}

func (brokenSource) Next(context.Context) (harvest.Document, error) {
	return harvest.Document{}, io.ErrUnexpectedEOF
}

func TestSourceErrorFailsRun(t *testing.T) {
	t.Parallel()

	_, err := newPipeline(t, memory.NewStore(), nil, 1).Run(context.Background(), brokenSource{})
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestNewRequiresDependencies(t *testing.T) {
	t.Parallel()

	h := harvest.NewHarvester(nil)
	v := harvest.NewValidator(nil)
	_, err := New(Config{}, nil, v, memory.NewStore(), nil, nil)
	require.Error(t, err)
	_, err = New(Config{}, h, nil, memory.NewStore(), nil, nil)
	require.Error(t, err)
	_, err = New(Config{}, h, v, nil, nil, nil)
	require.Error(t, err)

	p, err := New(Config{}, h, v, memory.NewStore(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConcurrency, p.cfg.Concurrency)
}
