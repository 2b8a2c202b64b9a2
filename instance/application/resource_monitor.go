package application

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/AzielCF/az-wap-sales/pkg/botmonitor"
	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

type ResourceMonitorOptions struct {
	Interval       time.Duration
	HighWaterBytes uint64
	IdleThreshold  time.Duration
	ErrorCeiling   int
}

// Eviction is one instance removed during a cycle.
type Eviction struct {
	InstanceID string `json:"instance_id"`
	Reason     string `json:"reason"` // memory | error_ceiling | capacity
	Error      string `json:"error,omitempty"`
}

// Report summarizes the last monitor cycle.
type Report struct {
	At             time.Time  `json:"at"`
	MemoryBytes    uint64     `json:"memory_bytes"`
	Memory         string     `json:"memory"`
	HighWaterBytes uint64     `json:"high_water_bytes"`
	HighWater      string     `json:"high_water"`
	Instances      int        `json:"instances"`
	Capacity       int        `json:"capacity"`
	Evicted        []Eviction `json:"evicted"`
}

// ResourceMonitor periodically checks memory, error counts and capacity and
// evicts instances. Nothing it does may stop the next cycle.
type ResourceMonitor struct {
	registry  *Registry
	lifecycle *LifecycleController
	opts      ResourceMonitorOptions
	monitor   *botmonitor.Monitor

	// SampleMemory and GCHint are swapped in tests.
	SampleMemory func() uint64
	GCHint       func()

	cron   *cron.Cron
	runMu  sync.Mutex
	lastMu sync.RWMutex
	last   Report
}

func NewResourceMonitor(registry *Registry, lifecycle *LifecycleController, opts ResourceMonitorOptions, monitor *botmonitor.Monitor) *ResourceMonitor {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = 30 * time.Minute
	}
	return &ResourceMonitor{
		registry:     registry,
		lifecycle:    lifecycle,
		opts:         opts,
		monitor:      monitor,
		SampleMemory: heapInUse,
		GCHint: func() {
			runtime.GC()
			debug.FreeOSMemory()
		},
	}
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// Start schedules RunCycle every Interval until Stop.
func (m *ResourceMonitor) Start(ctx context.Context) error {
	c := cron.New()
	spec := fmt.Sprintf("@every %s", m.opts.Interval)
	if _, err := c.AddFunc(spec, func() { m.RunCycle(ctx) }); err != nil {
		return fmt.Errorf("schedule resource monitor: %w", err)
	}
	m.cron = c
	c.Start()
	logrus.Infof("[RESOURCE_MONITOR] Started (every %s, high water %s, idle %s, error ceiling %d)",
		m.opts.Interval, humanize.Bytes(m.opts.HighWaterBytes), m.opts.IdleThreshold, m.opts.ErrorCeiling)
	return nil
}

func (m *ResourceMonitor) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	logrus.Info("[RESOURCE_MONITOR] Stopped")
}

// RunCycle runs both checks once. Failures are logged per instance and skipped.
func (m *ResourceMonitor) RunCycle(ctx context.Context) Report {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	report := Report{
		At:             time.Now().UTC(),
		HighWaterBytes: m.opts.HighWaterBytes,
		HighWater:      humanize.Bytes(m.opts.HighWaterBytes),
		Evicted:        []Eviction{},
	}

	m.checkErrorCeiling(ctx, &report)
	m.checkCapacity(ctx, &report)
	report.MemoryBytes = m.checkMemory(ctx, &report)
	report.Memory = humanize.Bytes(report.MemoryBytes)
	report.Instances = m.registry.Len()
	report.Capacity = m.registry.Capacity()

	if len(report.Evicted) > 0 {
		logrus.Infof("[RESOURCE_MONITOR] Cycle evicted %d instance(s), memory %s", len(report.Evicted), report.Memory)
	}

	m.lastMu.Lock()
	m.last = report
	m.lastMu.Unlock()
	return report
}

// TrimToCapacity evicts least recently active instances until the registry
// fits its capacity. Used right after the capacity is lowered.
func (m *ResourceMonitor) TrimToCapacity(ctx context.Context) []Eviction {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	report := Report{Evicted: []Eviction{}}
	m.checkCapacity(ctx, &report)
	return report.Evicted
}

func (m *ResourceMonitor) LastReport() Report {
	m.lastMu.RLock()
	defer m.lastMu.RUnlock()
	return m.last
}

func (m *ResourceMonitor) checkErrorCeiling(ctx context.Context, report *Report) {
	if m.opts.ErrorCeiling <= 0 {
		return
	}
	for _, s := range m.registry.all() {
		count := s.handle.ErrorCount()
		if count <= m.opts.ErrorCeiling {
			continue
		}
		logrus.Warnf("[RESOURCE_MONITOR] Instance %s has %d errors (ceiling %d), destroying", s.handle.ID(), count, m.opts.ErrorCeiling)
		m.evict(ctx, s.handle.ID(), "error_ceiling", report)
	}
}

// checkCapacity trims instances above a capacity lowered at runtime.
func (m *ResourceMonitor) checkCapacity(ctx context.Context, report *Report) {
	over := m.registry.Len() - m.registry.Capacity()
	if over <= 0 {
		return
	}
	for _, s := range byActivity(m.registry.all()) {
		if over <= 0 {
			return
		}
		if m.evict(ctx, s.handle.ID(), "capacity", report) {
			over--
		}
	}
}

func (m *ResourceMonitor) checkMemory(ctx context.Context, report *Report) uint64 {
	used := m.SampleMemory()
	if m.opts.HighWaterBytes == 0 || used <= m.opts.HighWaterBytes {
		return used
	}

	logrus.Warnf("[RESOURCE_MONITOR] Memory %s above high water %s", humanize.Bytes(used), humanize.Bytes(m.opts.HighWaterBytes))
	if m.GCHint != nil {
		m.GCHint()
		used = m.SampleMemory()
	}

	for _, id := range m.registry.IdleCandidates(m.opts.IdleThreshold) {
		if used <= m.opts.HighWaterBytes {
			break
		}
		m.evict(ctx, id, "memory", report)
		if m.GCHint != nil {
			m.GCHint()
		}
		used = m.SampleMemory()
	}
	return used
}

func (m *ResourceMonitor) evict(ctx context.Context, instanceID, reason string, report *Report) (ok bool) {
	ev := Eviction{InstanceID: instanceID, Reason: reason}
	defer func() {
		if r := recover(); r != nil {
			ev.Error = fmt.Sprint(r)
			ok = false
			logrus.Errorf("[RESOURCE_MONITOR] Eviction of %s failed: %v", instanceID, r)
		}
		if !ok && ev.Error == "" {
			return // ya no estaba registrada
		}
		status := botmonitor.StatusOK
		if ev.Error != "" {
			status = botmonitor.StatusError
		}
		m.monitor.Record(botmonitor.Event{
			InstanceID: instanceID,
			Stage:      botmonitor.StageEviction,
			Status:     status,
			Error:      ev.Error,
			Metadata:   map[string]string{"reason": reason},
		})
		report.Evicted = append(report.Evicted, ev)
	}()

	return m.lifecycle.destroy(ctx, instanceID, reason)
}
