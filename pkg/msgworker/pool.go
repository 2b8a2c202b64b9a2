package msgworker

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Job es una unidad de trabajo ligada a una conversacion (instancia + remitente).
// Jobs con la misma clave caen siempre en el mismo worker y se ejecutan en orden.
type Job struct {
	InstanceID string
	SenderID   string
	Handler    func(ctx context.Context) error
}

func (j Job) key() string {
	return j.InstanceID + "|" + j.SenderID
}

// PoolStats contiene métricas en tiempo real del worker pool
type PoolStats struct {
	NumWorkers      int            `json:"num_workers"`
	QueueSize       int            `json:"queue_size"`
	ActiveWorkers   int            `json:"active_workers"`
	TotalDispatched int64          `json:"total_dispatched"`
	TotalProcessed  int64          `json:"total_processed"`
	TotalDropped    int64          `json:"total_dropped"`
	TotalErrors     int64          `json:"total_errors"`
	UptimeSeconds   int64          `json:"uptime_seconds"`
	WorkerStats     []WorkerStats  `json:"worker_stats"`
	ActiveSenders   map[string]int `json:"active_senders"` // instanceID|senderID -> worker_id
}

type WorkerStats struct {
	WorkerID      int   `json:"worker_id"`
	QueueDepth    int   `json:"queue_depth"`
	IsProcessing  bool  `json:"is_processing"`
	JobsProcessed int64 `json:"jobs_processed"`
}

type activeEntry struct {
	workerID  int
	updatedAt time.Time
}

const activeTTL = 2 * time.Second

// Pool ejecuta los jobs del pipeline de respuesta repartidos por hash FNV.
type Pool struct {
	numWorkers int
	queueSize  int
	workers    []*worker
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
	stopped    int32
	stopCh     chan struct{}

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64
	activeMu        sync.Mutex
	active          map[string]activeEntry
	startTime       time.Time

	OnJobStart func(workerID int, key string)
	OnJobEnd   func(workerID int, key string, err error)
}

type worker struct {
	id            int
	jobQueue      chan Job
	ctx           context.Context
	cancel        context.CancelFunc
	isProcessing  int32
	jobsProcessed int64
	pool          *Pool
}

// NewPool crea el pool; no arranca workers hasta Start.
func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 10
	}
	if queueSize <= 0 {
		queueSize = 100
	}

	return &Pool{
		numWorkers: numWorkers,
		queueSize:  queueSize,
		workers:    make([]*worker, numWorkers),
		active:     make(map[string]activeEntry),
		stopCh:     make(chan struct{}),
		startTime:  time.Now(),
	}
}

// Start arranca los workers y el barrido de remitentes activos.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.numWorkers; i++ {
			workerCtx, cancel := context.WithCancel(ctx)
			w := &worker{
				id:       i,
				jobQueue: make(chan Job, p.queueSize),
				ctx:      workerCtx,
				cancel:   cancel,
				pool:     p,
			}
			p.workers[i] = w

			p.wg.Add(1)
			go w.run(&p.wg)
		}

		p.wg.Add(1)
		go p.sweepActive(ctx)

		logrus.Infof("[MSG_WORKER_POOL] Started with %d workers, queue size: %d", p.numWorkers, p.queueSize)
	})
}

func (p *Pool) sweepActive(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.pruneActive(time.Now())
		}
	}
}

func (p *Pool) pruneActive(now time.Time) {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for k, v := range p.active {
		if now.Sub(v.updatedAt) > activeTTL {
			delete(p.active, k)
		}
	}
}

// TryDispatch encola sin bloquear y devuelve si el job entró en la cola.
func (p *Pool) TryDispatch(job Job) bool {
	if atomic.LoadInt32(&p.stopped) == 1 || p.workers[0] == nil {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	shard := p.shardFor(job.InstanceID, job.SenderID)
	atomic.AddInt64(&p.totalDispatched, 1)

	key := job.key()
	p.activeMu.Lock()
	p.active[key] = activeEntry{workerID: shard, updatedAt: time.Now()}
	p.activeMu.Unlock()

	sent := func() (ok bool) {
		// la cola puede estar cerrada si Stop corre en paralelo
		defer func() {
			if r := recover(); r != nil {
				ok = false
			}
		}()
		select {
		case p.workers[shard].jobQueue <- job:
			return true
		default:
			return false
		}
	}()

	if sent {
		return true
	}
	p.activeMu.Lock()
	delete(p.active, key)
	p.activeMu.Unlock()

	atomic.AddInt64(&p.totalDropped, 1)
	logrus.WithFields(logrus.Fields{
		"worker":      shard,
		"instance_id": job.InstanceID,
		"sender_id":   job.SenderID,
	}).Warn("[MSG_WORKER_POOL] Queue full (or stopped), dropping job")
	return false
}

// Dispatch es TryDispatch ignorando el resultado.
func (p *Pool) Dispatch(job Job) {
	_ = p.TryDispatch(job)
}

// Stop detiene el pool; los jobs ya encolados se drenan antes de salir.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		atomic.StoreInt32(&p.stopped, 1)
		close(p.stopCh)
		logrus.Info("[MSG_WORKER_POOL] Stopping workers...")

		for _, w := range p.workers {
			if w == nil {
				continue
			}
			w.cancel()
			close(w.jobQueue)
		}

		p.wg.Wait()
		logrus.Info("[MSG_WORKER_POOL] All workers stopped")
	})
}

func (p *Pool) shardFor(instanceID, senderID string) int {
	h := fnv.New32a()
	h.Write([]byte(instanceID + "|" + senderID))
	return int(h.Sum32() % uint32(p.numWorkers))
}

// GetStats retorna estadísticas en tiempo real del pool
func (p *Pool) GetStats() PoolStats {
	workerStats := make([]WorkerStats, 0, len(p.workers))
	activeWorkers := 0

	for _, w := range p.workers {
		if w == nil {
			continue
		}
		isProcessing := atomic.LoadInt32(&w.isProcessing) == 1
		if isProcessing {
			activeWorkers++
		}
		workerStats = append(workerStats, WorkerStats{
			WorkerID:      w.id,
			QueueDepth:    len(w.jobQueue),
			IsProcessing:  isProcessing,
			JobsProcessed: atomic.LoadInt64(&w.jobsProcessed),
		})
	}

	p.pruneActive(time.Now())
	p.activeMu.Lock()
	snapshot := make(map[string]int, len(p.active))
	for k, v := range p.active {
		snapshot[k] = v.workerID
	}
	p.activeMu.Unlock()

	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueSize:       p.queueSize,
		ActiveWorkers:   activeWorkers,
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
		UptimeSeconds:   int64(time.Since(p.startTime).Seconds()),
		WorkerStats:     workerStats,
		ActiveSenders:   snapshot,
	}
}

func (w *worker) run(wg *sync.WaitGroup) {
	defer wg.Done()
	logrus.Debugf("[MSG_WORKER_POOL] Worker %d started", w.id)

	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				logrus.Debugf("[MSG_WORKER_POOL] Worker %d shutting down", w.id)
				return
			}
			w.execute(job)

		case <-w.ctx.Done():
			logrus.Debugf("[MSG_WORKER_POOL] Worker %d context cancelled, draining queue...", w.id)
			w.drainQueue()
			return
		}
	}
}

func (w *worker) execute(job Job) {
	key := job.key()
	var err error

	if w.pool.OnJobStart != nil {
		w.pool.OnJobStart(w.id, key)
	}
	atomic.StoreInt32(&w.isProcessing, 1)
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&w.pool.totalErrors, 1)
			logrus.Errorf("[MSG_WORKER_POOL] Worker %d panic for %s: %v", w.id, key, r)
		}
		if w.pool.OnJobEnd != nil {
			w.pool.OnJobEnd(w.id, key, err)
		}
		atomic.StoreInt32(&w.isProcessing, 0)
		atomic.AddInt64(&w.jobsProcessed, 1)
		atomic.AddInt64(&w.pool.totalProcessed, 1)
	}()

	// Los jobs ya encolados se terminan aunque el pool se esté cerrando.
	err = job.Handler(context.WithoutCancel(w.ctx))
	if err != nil {
		atomic.AddInt64(&w.pool.totalErrors, 1)
		logrus.WithError(err).Errorf("[MSG_WORKER_POOL] Worker %d job failed for %s", w.id, key)
	}
}

func (w *worker) drainQueue() {
	for {
		select {
		case job, ok := <-w.jobQueue:
			if !ok {
				return
			}
			w.execute(job)
		default:
			return
		}
	}
}
