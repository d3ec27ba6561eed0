package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for lifecycle operations and
// HTTP requests.
type Metrics struct {
	mu             sync.Mutex
	operationCount map[string]int64
	errorCount     map[string]int64
	requestCount   map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		operationCount: make(map[string]int64),
		errorCount:     make(map[string]int64),
		requestCount:   make(map[string]int64),
	}
}

// RecordOperation increments the counter for a lifecycle operation outcome.
func (m *Metrics) RecordOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operationCount[operation]++
	if err != nil {
		m.errorCount[operation]++
	}
}

// RecordRequest increments counters for HTTP requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters for HTTP requests.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// OperationCount returns the current counter for an operation.
func (m *Metrics) OperationCount(operation string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.operationCount[operation]
}
