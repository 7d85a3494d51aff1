package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if documentsTotal == nil || recordsTotal == nil || fieldMissesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveRecordAndMiss(t *testing.T) {
	Init()

	before := testutil.ToFloat64(recordsTotal.WithLabelValues("crop", StagePersisted))
	ObserveRecord("crop", StagePersisted)
	ObserveRecord("crop", StagePersisted)
	if got := testutil.ToFloat64(recordsTotal.WithLabelValues("crop", StagePersisted)); got != before+2 {
		t.Errorf("expected records_total to grow by 2, got %f -> %f", before, got)
	}

	before = testutil.ToFloat64(fieldMissesTotal.WithLabelValues("crop", "hardiness_zone"))
	ObserveFieldMiss("crop", "hardiness_zone")
	if got := testutil.ToFloat64(fieldMissesTotal.WithLabelValues("crop", "hardiness_zone")); got != before+1 {
		t.Errorf("expected field miss to be counted, got %f -> %f", before, got)
	}

	ObserveDocument("https://Extension.PSU.edu/tomatoes", "harvested", 2048)
	if got := testutil.ToFloat64(fetchedBytesTotal.WithLabelValues("extension.psu.edu")); got < 2048 {
		t.Errorf("expected fetched bytes to be recorded, got %f", got)
	}

	ObserveStorePut("crop", 0)
	if n := testutil.CollectAndCount(storePutDurationSeconds); n == 0 {
		t.Error("expected store put duration to be observed")
	}

	IncActiveWorkers()
	DecActiveWorkers()
	if got := testutil.ToFloat64(activeWorkers); got != 0 {
		t.Errorf("expected active workers to return to 0, got %f", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
