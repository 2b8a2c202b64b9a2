package botmonitor

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stages del pipeline que se registran en el monitor.
const (
	StageInbound    = "inbound"
	StageAIRequest  = "ai_request"
	StageAIResponse = "ai_response"
	StageOutbound   = "outbound"
	StageEviction   = "eviction"
	StageLifecycle  = "lifecycle"
)

const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	TraceID    string            `json:"trace_id"`
	InstanceID string            `json:"instance_id"`
	SenderID   string            `json:"sender_id"`
	Provider   string            `json:"provider"`
	Stage      string            `json:"stage"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	DurationMs int64             `json:"duration_ms"`
}

type Stats struct {
	TotalInbound    int64   `json:"total_inbound"`
	TotalAIRequests int64   `json:"total_ai_requests"`
	TotalAIReplies  int64   `json:"total_ai_replies"`
	TotalOutbound   int64   `json:"total_outbound"`
	TotalEvictions  int64   `json:"total_evictions"`
	TotalErrors     int64   `json:"total_errors"`
	RecentEvents    []Event `json:"recent_events"`
}

// Monitor guarda los ultimos eventos en un ring buffer y lleva contadores totales.
type Monitor struct {
	eventsMu sync.Mutex
	events   []Event
	idx      int
	count    int
	ttl      time.Duration

	totalInbound    int64
	totalAIRequests int64
	totalAIReplies  int64
	totalOutbound   int64
	totalEvictions  int64
	totalErrors     int64

	// OnRecord se llama despues de cada evento, sin lock tomado.
	OnRecord func(Event)
}

// New crea un monitor con capacidad para size eventos. ttl > 0 oculta eventos viejos en GetStats.
func New(size int, ttl time.Duration) *Monitor {
	if size <= 0 {
		size = 200
	}
	return &Monitor{events: make([]Event, size), ttl: ttl}
}

func (m *Monitor) Record(e Event) {
	if m == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	switch e.Stage {
	case StageInbound:
		atomic.AddInt64(&m.totalInbound, 1)
	case StageAIRequest:
		atomic.AddInt64(&m.totalAIRequests, 1)
	case StageAIResponse:
		if e.Status == StatusOK {
			atomic.AddInt64(&m.totalAIReplies, 1)
		}
	case StageOutbound:
		if e.Status == StatusOK {
			atomic.AddInt64(&m.totalOutbound, 1)
		}
	case StageEviction:
		atomic.AddInt64(&m.totalEvictions, 1)
	}

	if e.Status == StatusError {
		atomic.AddInt64(&m.totalErrors, 1)
	}

	m.eventsMu.Lock()
	m.events[m.idx] = e
	m.idx = (m.idx + 1) % len(m.events)
	if m.count < len(m.events) {
		m.count++
	}
	m.eventsMu.Unlock()

	if m.OnRecord != nil {
		m.OnRecord(e)
	}
}

func (m *Monitor) GetStats() Stats {
	if m == nil {
		return Stats{RecentEvents: []Event{}}
	}
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()

	res := make([]Event, 0, m.count)
	cutoff := time.Time{}
	if m.ttl > 0 {
		cutoff = time.Now().UTC().Add(-m.ttl)
	}
	start := (m.idx - m.count) % len(m.events)
	if start < 0 {
		start += len(m.events)
	}
	for i := 0; i < m.count; i++ {
		e := m.events[(start+i)%len(m.events)]
		if !cutoff.IsZero() && e.Timestamp.Before(cutoff) {
			continue
		}
		res = append(res, e)
	}

	return Stats{
		TotalInbound:    atomic.LoadInt64(&m.totalInbound),
		TotalAIRequests: atomic.LoadInt64(&m.totalAIRequests),
		TotalAIReplies:  atomic.LoadInt64(&m.totalAIReplies),
		TotalOutbound:   atomic.LoadInt64(&m.totalOutbound),
		TotalEvictions:  atomic.LoadInt64(&m.totalEvictions),
		TotalErrors:     atomic.LoadInt64(&m.totalErrors),
		RecentEvents:    res,
	}
}

// Count devuelve cuantos eventos recientes coinciden con stage y status ("" = cualquiera).
func (m *Monitor) Count(stage, status string) int {
	n := 0
	for _, e := range m.GetStats().RecentEvents {
		if (stage == "" || e.Stage == stage) && (status == "" || e.Status == status) {
			n++
		}
	}
	return n
}
