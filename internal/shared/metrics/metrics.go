package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	extractionStartedTotal   atomic.Uint64
	extractionCompletedTotal atomic.Uint64
	extractionFailedTotal    atomic.Uint64

	documentUploadsTotal atomic.Uint64
	ordersCreatedTotal   atomic.Uint64

	jobsReceivedTotal             atomic.Uint64
	jobsCompletedTotal            atomic.Uint64
	jobsFailedTotal               atomic.Uint64
	jobsDeletedUnrecoverableTotal atomic.Uint64

	extractionDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})

	httpRequestsMu sync.Mutex
	httpRequests   = make(map[httpRequestKey]uint64)
)

type httpRequestKey struct {
	method string
	route  string
	status int
}

// IncExtractionStarted increments the started counter.
func IncExtractionStarted() {
	extractionStartedTotal.Add(1)
}

// IncExtractionCompleted increments the completed counter.
func IncExtractionCompleted() {
	extractionCompletedTotal.Add(1)
}

// IncExtractionFailed increments the failed counter.
func IncExtractionFailed() {
	extractionFailedTotal.Add(1)
}

// IncDocumentUploaded increments the upload counter.
func IncDocumentUploaded() {
	documentUploadsTotal.Add(1)
}

// IncOrderCreated increments the order counter.
func IncOrderCreated() {
	ordersCreatedTotal.Add(1)
}

// IncExtractionJobsReceived counts queue messages picked up by the worker.
func IncExtractionJobsReceived() {
	jobsReceivedTotal.Add(1)
}

// IncExtractionJobsCompleted counts queue messages processed to completion.
func IncExtractionJobsCompleted() {
	jobsCompletedTotal.Add(1)
}

// IncExtractionJobsFailed counts queue messages whose processing failed.
func IncExtractionJobsFailed() {
	jobsFailedTotal.Add(1)
}

// IncExtractionJobsDeletedUnrecoverable counts malformed messages dropped without processing.
func IncExtractionJobsDeletedUnrecoverable() {
	jobsDeletedUnrecoverableTotal.Add(1)
}

// ObserveExtractionDurationMs records an extraction duration in milliseconds.
func ObserveExtractionDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	extractionDuration.Observe(value)
}

// IncHTTPRequest counts one served request by method, route template, and status.
func IncHTTPRequest(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsMu.Lock()
	httpRequests[httpRequestKey{method: method, route: route, status: status}]++
	httpRequestsMu.Unlock()
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "extraction_started_total", "Total extractions started", extractionStartedTotal.Load())
	writeCounter(&buf, "extraction_completed_total", "Total extractions completed", extractionCompletedTotal.Load())
	writeCounter(&buf, "extraction_failed_total", "Total extractions failed", extractionFailedTotal.Load())
	writeCounter(&buf, "document_uploads_total", "Total documents uploaded", documentUploadsTotal.Load())
	writeCounter(&buf, "orders_created_total", "Total orders created", ordersCreatedTotal.Load())
	writeCounter(&buf, "extraction_jobs_received_total", "Total extraction jobs received from the queue", jobsReceivedTotal.Load())
	writeCounter(&buf, "extraction_jobs_completed_total", "Total extraction jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "extraction_jobs_failed_total", "Total extraction jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "extraction_jobs_deleted_unrecoverable_total", "Total malformed extraction jobs dropped", jobsDeletedUnrecoverableTotal.Load())
	writeHistogram(&buf, "extraction_duration_ms", "Extraction duration in milliseconds", extractionDuration.Snapshot())
	writeHTTPRequests(&buf)
	return buf.String()
}

func writeHTTPRequests(buf *bytes.Buffer) {
	httpRequestsMu.Lock()
	keys := make([]httpRequestKey, 0, len(httpRequests))
	for k := range httpRequests {
		keys = append(keys, k)
	}
	counts := make(map[httpRequestKey]uint64, len(httpRequests))
	for k, v := range httpRequests {
		counts[k] = v
	}
	httpRequestsMu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].route != keys[j].route {
			return keys[i].route < keys[j].route
		}
		if keys[i].method != keys[j].method {
			return keys[i].method < keys[j].method
		}
		return keys[i].status < keys[j].status
	})

	fmt.Fprintf(buf, "# HELP http_requests_total Total HTTP requests by method, route, and status\n")
	fmt.Fprintf(buf, "# TYPE http_requests_total counter\n")
	for _, k := range keys {
		fmt.Fprintf(buf, "http_requests_total{method=%q,route=%q,status=\"%d\"} %d\n", k.method, k.route, k.status, counts[k])
	}
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
