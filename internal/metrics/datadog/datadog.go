// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// Flushing model: counters and duration samples are buffered in-memory under
// a mutex, submitted on a ticker (default once per minute) and once more on
// Close(). Long polling runs therefore produce a time series instead of a
// single spike at exit, and short one-shot runs still get their tail flush.
//
// Flush snapshots and resets the buffers under the lock, then submits
// out-of-lock, so loader goroutines never block on the Datadog API.
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"stagingloader/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to
	// "staging-loader".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// Defaults to 60 seconds when <= 0.
	FlushEvery time.Duration

	// Unexported test seams; production code never sets them.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter lets tests stub the concrete *datadogV2.MetricsApi.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	fileCounts   map[string]float64   // status -> count
	recordCounts map[string]float64   // table\x00action -> count
	rawCounts    map[string]float64   // op -> count
	batchCount   float64
	fileDur      map[string][]float64 // status -> samples
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client.
// Credentials come from the standard DD_API_KEY/DD_APP_KEY environment, via
// datadog.NewDefaultContext. Network errors surface from Flush, not here.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "staging-loader"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		fileCounts:   make(map[string]float64),
		recordCounts: make(map[string]float64),
		rawCounts:    make(map[string]float64),
		fileDur:      make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Call once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.FilesTotal:
		b.fileCounts[labelOr(labels, "status", "unknown")] += delta

	case metrics.RecordsTotal:
		table := labels["table"]
		if table == "" {
			return
		}
		b.recordCounts[tableActionKey(table, labelOr(labels, "action", "unknown"))] += delta

	case metrics.RawRowsTotal:
		b.rawCounts[labelOr(labels, "op", "unknown")] += delta

	case metrics.BatchesTotal:
		b.batchCount += delta

	default:
		// Unknown metrics are ignored.
	}
}

// ObserveHistogram implements metrics.Backend.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.FileDurationSeconds:
		status := labelOr(labels, "status", "unknown")
		b.fileDur[status] = append(b.fileDur[status], value)
	default:
	}
}

type snapshot struct {
	fileCounts   map[string]float64
	recordCounts map[string]float64
	rawCounts    map[string]float64
	batchCount   float64
	fileDur      map[string][]float64
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		fileCounts:   b.fileCounts,
		recordCounts: b.recordCounts,
		rawCounts:    b.rawCounts,
		batchCount:   b.batchCount,
		fileDur:      b.fileDur,
	}

	b.fileCounts = make(map[string]float64)
	b.recordCounts = make(map[string]float64)
	b.rawCounts = make(map[string]float64)
	b.batchCount = 0
	b.fileDur = make(map[string][]float64)

	return s
}

func (s snapshot) isEmpty() bool {
	return len(s.fileCounts) == 0 &&
		len(s.recordCounts) == 0 &&
		len(s.rawCounts) == 0 &&
		s.batchCount == 0 &&
		len(s.fileDur) == 0
}

// Flush submits buffered metrics and resets local buffers. Buffers reset
// even when submission fails; blocking the loader on delivery would be
// worse than a gap in the series.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	nowUnix := b.now().Unix()
	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, nowUnix)}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries is pure (no locks, clocks, or network) so tests can assert on
// exact payloads.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.fileCounts)+len(s.recordCounts)+16)

	for status, v := range s.fileCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("staging.files.total", v, withTags(b.baseTags, "status:"+status), nowUnix))
	}

	for k, v := range s.recordCounts {
		if v == 0 {
			continue
		}
		table, action := splitTableActionKey(k)
		tags := withTags(b.baseTags, "table:"+table, "action:"+strings.ToLower(action))
		series = append(series, countSeries("staging.records.total", v, tags, nowUnix))
	}

	for op, v := range s.rawCounts {
		if v == 0 {
			continue
		}
		series = append(series, countSeries("staging.raw_rows.total", v, withTags(b.baseTags, "op:"+op), nowUnix))
	}

	if s.batchCount != 0 {
		series = append(series, countSeries("staging.batches.total", s.batchCount, b.baseTags, nowUnix))
	}

	for status, samples := range s.fileDur {
		addPercentiles(&series, withTags(b.baseTags, "status:"+status), "staging.file.duration_seconds", samples, nowUnix)
	}

	return series
}

func countSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func gaugeSeries(metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

// addPercentiles appends fixed percentile gauges for a sample set. Sorts a
// copy; the input is not mutated.
func addPercentiles(series *[]datadogV2.MetricSeries, tags []string, metricPrefix string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	*series = append(*series, gaugeSeries(metricPrefix+".p50", percentileNearestRank(cp, 0.50), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p90", percentileNearestRank(cp, 0.90), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p95", percentileNearestRank(cp, 0.95), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".p99", percentileNearestRank(cp, 0.99), tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".max", cp[len(cp)-1], tags, nowUnix))
	*series = append(*series, gaugeSeries(metricPrefix+".samples", float64(len(cp)), tags, nowUnix))
}

func labelOr(labels metrics.Labels, key, fallback string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return fallback
}

func tableActionKey(table, action string) string {
	return table + "\x00" + action
}

func splitTableActionKey(k string) (table, action string) {
	parts := strings.SplitN(k, "\x00", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return k, "unknown"
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:loader".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
