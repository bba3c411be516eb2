package datadog

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"dataloft/internal/metrics"
)

type fakeSubmitter struct {
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func newTestBackend(t *testing.T, sub *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		ServiceName: "dataloft",
		Tags:        []string{"team:data"},
		FlushEvery:  time.Hour,
		now:         func() time.Time { return time.Unix(1710500000, 0) },
		newTicker:   time.NewTicker,
		submitter:   sub,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func seriesByName(p datadogV2.MetricPayload) map[string]datadogV2.MetricSeries {
	out := make(map[string]datadogV2.MetricSeries, len(p.Series))
	for _, s := range p.Series {
		out[s.Metric] = s
	}
	return out
}

func TestFlush_CountersBecomeCountSeries(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter(metrics.UploadsTotal, 1, metrics.Labels{"status": "staged"})
	b.IncCounter(metrics.UploadsTotal, 2, metrics.Labels{"status": "staged"})

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(sub.payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(sub.payloads))
	}
	got := seriesByName(sub.payloads[0])

	s, ok := got["dataloft.uploads.total"]
	if !ok {
		t.Fatalf("counter series missing, have %v", keys(got))
	}
	if *s.Type != datadogV2.METRICINTAKETYPE_COUNT {
		t.Fatalf("type = %v, want COUNT", *s.Type)
	}
	if *s.Points[0].Value != 3 {
		t.Fatalf("value = %v, want 3 (deltas accumulate)", *s.Points[0].Value)
	}
	if !contains(s.Tags, "service:dataloft") || !contains(s.Tags, "team:data") || !contains(s.Tags, "status:staged") {
		t.Fatalf("tags = %v", s.Tags)
	}
}

func TestFlush_HistogramsBecomePercentileGauges(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	for i := 1; i <= 10; i++ {
		b.ObserveHistogram(metrics.ImportDurationSeconds, float64(i), metrics.Labels{"status": "completed"})
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := seriesByName(sub.payloads[0])
	want := map[string]float64{
		"dataloft.import.duration.seconds.p50":     6,
		"dataloft.import.duration.seconds.p90":     9,
		"dataloft.import.duration.seconds.p95":     10,
		"dataloft.import.duration.seconds.p99":     10,
		"dataloft.import.duration.seconds.max":     10,
		"dataloft.import.duration.seconds.samples": 10,
	}
	for name, val := range want {
		s, ok := got[name]
		if !ok {
			t.Fatalf("series %s missing, have %v", name, keys(got))
		}
		if *s.Type != datadogV2.METRICINTAKETYPE_GAUGE {
			t.Fatalf("%s type = %v, want GAUGE", name, *s.Type)
		}
		if *s.Points[0].Value != val {
			t.Fatalf("%s = %v, want %v", name, *s.Points[0].Value, val)
		}
	}
}

func TestFlush_ResetsBuffersEvenOnSubmitFailure(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{err: errors.New("intake down")}
	b := newTestBackend(t, sub)

	b.IncCounter(metrics.RowsTotal, 5, nil)
	if err := b.Flush(); err == nil {
		t.Fatalf("expected submit error")
	}

	// The window is gone; an empty flush submits nothing.
	if err := b.Flush(); err != nil {
		t.Fatalf("empty flush: %v", err)
	}
	if len(sub.payloads) != 1 {
		t.Fatalf("payloads = %d, want 1", len(sub.payloads))
	}
}

func TestFlush_EmptyBufferSkipsSubmission(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(sub.payloads) != 0 {
		t.Fatalf("empty flush submitted %d payloads", len(sub.payloads))
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestIncCounter_IgnoresNonPositiveDeltas(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{}
	b := newTestBackend(t, sub)

	b.IncCounter(metrics.RowsTotal, 0, nil)
	b.IncCounter(metrics.RowsTotal, -3, nil)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(sub.payloads) != 0 {
		t.Fatalf("non-positive deltas produced a payload")
	}
}

func TestEncodeLabels_Deterministic(t *testing.T) {
	t.Parallel()

	a := encodeLabels(metrics.Labels{"b": "2", "a": "1", "c": "3"})
	if a != "a:1,b:2,c:3" {
		t.Fatalf("encoded = %q", a)
	}
	if encodeLabels(nil) != "" {
		t.Fatalf("nil labels should encode empty")
	}
}

func TestDdName(t *testing.T) {
	t.Parallel()

	if got := ddName("dataloft_rows_total"); got != "dataloft.rows.total" {
		t.Fatalf("got %q", got)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()

	s := []float64{1, 2, 3, 4, 5}
	cases := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{0.5, 3},
		{1, 5},
		{0.99, 5},
	}
	for _, tc := range cases {
		if got := percentileNearestRank(s, tc.p); got != tc.want {
			t.Fatalf("p%v = %v, want %v", tc.p, got, tc.want)
		}
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty sample = %v", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	got := ParseTagsCSV(" env:prod , team:data ,, ")
	if len(got) != 2 || got[0] != "env:prod" || got[1] != "team:data" {
		t.Fatalf("got %v", got)
	}
	if ParseTagsCSV("") != nil {
		t.Fatalf("empty input should parse nil")
	}
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func keys(m map[string]datadogV2.MetricSeries) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
