package metrics

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Metrics holds process-wide counters for Prometheus export.
type Metrics struct {
	startTime time.Time

	// HTTP request metrics
	httpRequestsTotal   atomic.Int64
	httpRequestsSuccess atomic.Int64
	httpRequestsError   atomic.Int64

	// HTTP latency histogram buckets
	// Buckets: 1ms, 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, +Inf
	httpLatencyBuckets [10]atomic.Int64
	httpLatencySum     atomic.Int64 // microseconds
	httpLatencyCount   atomic.Int64

	// Upload metrics
	uploadsTotal        atomic.Int64
	uploadsRejected     atomic.Int64
	uploadBytesTotal    atomic.Int64
	uploadsDecompressed atomic.Int64

	// Parser metrics
	parseSuccessTotal  atomic.Int64
	parseErrorsTotal   atomic.Int64
	parseWarningsTotal atomic.Int64
	parseCurvesTotal   atomic.Int64
	parseSamplesTotal  atomic.Int64
	parseLatencySum    atomic.Int64 // microseconds
	parseLatencyCount  atomic.Int64
	invalidTokensTotal atomic.Int64
	droppedTokensTotal atomic.Int64

	// Projection metrics
	projectionsTotal     atomic.Int64
	projectionBytesTotal atomic.Int64
	msgpackProjections   atomic.Int64

	// Archive metrics
	archiveWritesTotal atomic.Int64
	archiveErrorsTotal atomic.Int64
	archiveBytesTotal  atomic.Int64

	// Storage metrics
	storageWritesTotal     atomic.Int64
	storageWriteBytesTotal atomic.Int64
	storageReadsTotal      atomic.Int64
	storageReadBytesTotal  atomic.Int64
	storageDeletesTotal    atomic.Int64
	storageErrorsTotal     atomic.Int64

	// Catalog / DuckDB
	catalogWells      atomic.Int64
	statsQueriesTotal atomic.Int64
	statsQueryErrors  atomic.Int64

	// Retention
	retentionRunsTotal   atomic.Int64
	retentionWellsPurged atomic.Int64
	retentionErrorsTotal atomic.Int64

	logger zerolog.Logger
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			startTime: time.Now(),
		}
	})
	return instance
}

// Init attaches a logger to the singleton.
func Init(logger zerolog.Logger) *Metrics {
	m := Get()
	m.logger = logger.With().Str("component", "metrics").Logger()
	m.logger.Info().Msg("Metrics collector initialized")
	return m
}

// HTTP
func (m *Metrics) IncHTTPRequests() { m.httpRequestsTotal.Add(1) }
func (m *Metrics) IncHTTPSuccess()  { m.httpRequestsSuccess.Add(1) }
func (m *Metrics) IncHTTPError()    { m.httpRequestsError.Add(1) }

// RecordHTTPLatency records HTTP request latency in microseconds
func (m *Metrics) RecordHTTPLatency(durationMicros int64) {
	m.httpLatencySum.Add(durationMicros)
	m.httpLatencyCount.Add(1)
	m.httpLatencyBuckets[latencyBucket(durationMicros)].Add(1)
}

var latencyBoundsMicros = [...]int64{1000, 5000, 10000, 25000, 50000, 100000, 250000, 500000, 1000000}

func latencyBucket(micros int64) int {
	for i, bound := range latencyBoundsMicros {
		if micros <= bound {
			return i
		}
	}
	return len(latencyBoundsMicros)
}

// Uploads
func (m *Metrics) IncUploads()               { m.uploadsTotal.Add(1) }
func (m *Metrics) IncUploadsRejected()       { m.uploadsRejected.Add(1) }
func (m *Metrics) IncUploadBytes(bytes int64) { m.uploadBytesTotal.Add(bytes) }
func (m *Metrics) IncUploadsDecompressed()   { m.uploadsDecompressed.Add(1) }

// Parser
func (m *Metrics) IncParseErrors() { m.parseErrorsTotal.Add(1) }

// RecordParse records one successful parse.
func (m *Metrics) RecordParse(curves, samples, warnings, invalidTokens, droppedTokens int, durationMicros int64) {
	m.parseSuccessTotal.Add(1)
	m.parseCurvesTotal.Add(int64(curves))
	m.parseSamplesTotal.Add(int64(samples))
	m.parseWarningsTotal.Add(int64(warnings))
	m.invalidTokensTotal.Add(int64(invalidTokens))
	m.droppedTokensTotal.Add(int64(droppedTokens))
	m.parseLatencySum.Add(durationMicros)
	m.parseLatencyCount.Add(1)
}

// Projections
func (m *Metrics) IncProjections(bytes int64) {
	m.projectionsTotal.Add(1)
	m.projectionBytesTotal.Add(bytes)
}
func (m *Metrics) IncMsgPackProjections() { m.msgpackProjections.Add(1) }

// Archive
func (m *Metrics) IncArchiveWrites(bytes int64) {
	m.archiveWritesTotal.Add(1)
	m.archiveBytesTotal.Add(bytes)
}
func (m *Metrics) IncArchiveErrors() { m.archiveErrorsTotal.Add(1) }

// Storage
func (m *Metrics) IncStorageWrites()                { m.storageWritesTotal.Add(1) }
func (m *Metrics) IncStorageWriteBytes(bytes int64) { m.storageWriteBytesTotal.Add(bytes) }
func (m *Metrics) IncStorageReads()                 { m.storageReadsTotal.Add(1) }
func (m *Metrics) IncStorageReadBytes(bytes int64)  { m.storageReadBytesTotal.Add(bytes) }
func (m *Metrics) IncStorageDeletes()               { m.storageDeletesTotal.Add(1) }
func (m *Metrics) IncStorageErrors()                { m.storageErrorsTotal.Add(1) }

// Catalog / stats
func (m *Metrics) SetCatalogWells(count int64) { m.catalogWells.Store(count) }
func (m *Metrics) IncStatsQueries()            { m.statsQueriesTotal.Add(1) }
func (m *Metrics) IncStatsQueryErrors()        { m.statsQueryErrors.Add(1) }

// Retention
func (m *Metrics) IncRetentionRuns()                { m.retentionRunsTotal.Add(1) }
func (m *Metrics) IncRetentionWellsPurged(n int64)  { m.retentionWellsPurged.Add(n) }
func (m *Metrics) IncRetentionErrors()              { m.retentionErrorsTotal.Add(1) }

// metric is one exported series.
type metric struct {
	name  string
	help  string
	kind  string // counter or gauge
	value float64
}

func (m *Metrics) series() []metric {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	c := func(name, help string, v *atomic.Int64) metric {
		return metric{name: name, help: help, kind: "counter", value: float64(v.Load())}
	}
	g := func(name, help string, v float64) metric {
		return metric{name: name, help: help, kind: "gauge", value: v}
	}

	return []metric{
		g("welllog_uptime_seconds", "Time since the process started", time.Since(m.startTime).Seconds()),
		g("welllog_goroutines", "Number of goroutines", float64(runtime.NumGoroutine())),
		g("welllog_memory_alloc_bytes", "Current allocated memory", float64(memStats.Alloc)),
		g("welllog_memory_sys_bytes", "Total memory obtained from system", float64(memStats.Sys)),
		{name: "welllog_gc_cycles_total", help: "Total number of GC cycles", kind: "counter", value: float64(memStats.NumGC)},

		c("welllog_http_requests_total", "Total HTTP requests", &m.httpRequestsTotal),
		c("welllog_http_requests_success_total", "Successful HTTP requests", &m.httpRequestsSuccess),
		c("welllog_http_requests_error_total", "Failed HTTP requests", &m.httpRequestsError),

		c("welllog_uploads_total", "Upload requests received", &m.uploadsTotal),
		c("welllog_uploads_rejected_total", "Uploads rejected by validation", &m.uploadsRejected),
		c("welllog_upload_bytes_total", "Bytes of LAS text received", &m.uploadBytesTotal),
		c("welllog_uploads_decompressed_total", "Uploads received gzip or zstd compressed", &m.uploadsDecompressed),

		c("welllog_parse_success_total", "Files parsed", &m.parseSuccessTotal),
		c("welllog_parse_errors_total", "Files that failed to parse", &m.parseErrorsTotal),
		c("welllog_parse_warnings_total", "Recoverable problems reported while parsing", &m.parseWarningsTotal),
		c("welllog_parse_curves_total", "Curves decoded", &m.parseCurvesTotal),
		c("welllog_parse_samples_total", "Samples per curve decoded, summed over files", &m.parseSamplesTotal),
		c("welllog_parse_invalid_tokens_total", "Data tokens replaced with the null value", &m.invalidTokensTotal),
		c("welllog_parse_dropped_tokens_total", "Trailing data tokens dropped", &m.droppedTokensTotal),
		g("welllog_parse_latency_seconds_sum", "Total parse time", float64(m.parseLatencySum.Load())/1e6),
		g("welllog_parse_latency_seconds_count", "Timed parses", float64(m.parseLatencyCount.Load())),

		c("welllog_projections_total", "Projections rendered", &m.projectionsTotal),
		c("welllog_projection_bytes_total", "Bytes of projection output", &m.projectionBytesTotal),
		c("welllog_msgpack_projections_total", "Projections rendered as MessagePack", &m.msgpackProjections),

		c("welllog_archive_writes_total", "Parquet archives written", &m.archiveWritesTotal),
		c("welllog_archive_bytes_total", "Bytes of Parquet written", &m.archiveBytesTotal),
		c("welllog_archive_errors_total", "Parquet archive failures", &m.archiveErrorsTotal),

		c("welllog_storage_writes_total", "Total storage writes", &m.storageWritesTotal),
		c("welllog_storage_write_bytes_total", "Total bytes written to storage", &m.storageWriteBytesTotal),
		c("welllog_storage_reads_total", "Total storage reads", &m.storageReadsTotal),
		c("welllog_storage_read_bytes_total", "Total bytes read from storage", &m.storageReadBytesTotal),
		c("welllog_storage_deletes_total", "Total storage deletes", &m.storageDeletesTotal),
		c("welllog_storage_errors_total", "Total storage errors", &m.storageErrorsTotal),

		g("welllog_catalog_wells", "Wells in the catalog", float64(m.catalogWells.Load())),
		c("welllog_stats_queries_total", "Curve statistics queries", &m.statsQueriesTotal),
		c("welllog_stats_query_errors_total", "Failed curve statistics queries", &m.statsQueryErrors),

		c("welllog_retention_runs_total", "Retention sweeps", &m.retentionRunsTotal),
		c("welllog_retention_wells_purged_total", "Wells removed by retention", &m.retentionWellsPurged),
		c("welllog_retention_errors_total", "Retention failures", &m.retentionErrorsTotal),
	}
}

// Snapshot returns every series as name → value for the JSON endpoint.
func (m *Metrics) Snapshot() map[string]interface{} {
	series := m.series()
	out := make(map[string]interface{}, len(series)+1)
	for _, s := range series {
		out[s.name] = s.value
	}
	out["welllog_http_latency_seconds_count"] = m.httpLatencyCount.Load()
	return out
}

// PrometheusFormat returns metrics in Prometheus text exposition format
func (m *Metrics) PrometheusFormat() string {
	var b []byte
	for _, s := range m.series() {
		b = appendHeader(b, s.name, s.help, s.kind)
		b = appendMetric(b, s.name, s.value)
	}

	b = appendHeader(b, "welllog_http_latency_seconds", "HTTP request latency", "histogram")
	bucketLabels := []string{"0.001", "0.005", "0.01", "0.025", "0.05", "0.1", "0.25", "0.5", "1", "+Inf"}
	var cumulative int64
	for i, label := range bucketLabels {
		cumulative += m.httpLatencyBuckets[i].Load()
		b = appendMetricWithLabel(b, "welllog_http_latency_seconds_bucket", "le", label, float64(cumulative))
	}
	b = appendMetric(b, "welllog_http_latency_seconds_sum", float64(m.httpLatencySum.Load())/1e6)
	b = appendMetric(b, "welllog_http_latency_seconds_count", float64(m.httpLatencyCount.Load()))

	return string(b)
}

func appendHeader(b []byte, name, help, kind string) []byte {
	b = append(b, "# HELP "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, help...)
	b = append(b, "\n# TYPE "...)
	b = append(b, name...)
	b = append(b, ' ')
	b = append(b, kind...)
	return append(b, '\n')
}

func appendMetric(b []byte, name string, value float64) []byte {
	b = append(b, name...)
	b = append(b, ' ')
	b = strconv.AppendFloat(b, value, 'g', -1, 64)
	return append(b, '\n')
}

func appendMetricWithLabel(b []byte, name, labelName, labelValue string, value float64) []byte {
	b = append(b, name...)
	b = append(b, '{')
	b = append(b, labelName...)
	b = append(b, '=', '"')
	b = append(b, labelValue...)
	b = append(b, '"', '}', ' ')
	b = strconv.AppendFloat(b, value, 'g', -1, 64)
	return append(b, '\n')
}
