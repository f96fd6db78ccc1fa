package testutil

import (
	"bytes"
	"sync"
	"time"

	"github.com/Veraticus/autolinks/pkg/metrics"
)

// MockRecorder is a thread-safe metrics.Recorder that keeps every observation
type MockRecorder struct {
	mu       sync.Mutex
	scans    int
	matches  int
	failures map[string]int
	zones    []int
}

var _ metrics.Recorder = (*MockRecorder)(nil)

// NewMockRecorder creates a new mock recorder
func NewMockRecorder() *MockRecorder {
	return &MockRecorder{failures: map[string]int{}}
}

// ObserveScan implements metrics.Recorder
func (m *MockRecorder) ObserveScan(_ time.Duration, matches int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans++
	m.matches += matches
}

// IncRuleFailure implements metrics.Recorder
func (m *MockRecorder) IncRuleFailure(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[reason]++
}

// ObserveZones implements metrics.Recorder
func (m *MockRecorder) ObserveZones(zones int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zones = append(m.zones, zones)
}

// Scans returns the number of observed scans
func (m *MockRecorder) Scans() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scans
}

// Matches returns the total of accepted matches over all scans
func (m *MockRecorder) Matches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matches
}

// Failures returns how often a rule failed for reason
func (m *MockRecorder) Failures(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[reason]
}

// Zones returns a copy of the observed zone counts
func (m *MockRecorder) Zones() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]int, len(m.zones))
	copy(result, m.zones)
	return result
}

// SafeBuffer is a bytes.Buffer that can be written from one goroutine and
// read from another
type SafeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns the buffered data
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Len returns the number of buffered bytes
func (b *SafeBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}
