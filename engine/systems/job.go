package systems

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/spaghettifunk/typeset/engine/core"
	"github.com/spaghettifunk/typeset/engine/renderer/metadata"
)

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemStopped = errors.New("job system has been shut down")
var ErrNilJobCallback = errors.New("job kind registered without a callback or shared state")

// JobCallback runs one job against the state shared by its kind. It is
// invoked with the state's lock held and must not retain s after returning.
type JobCallback[P, R, S any] func(payload P, s *S) (R, error)

// SharedState is state used by every job of one or more kinds. Workers hold
// its lock for the entire execution of a callback, so at most one job
// touches the value at any time.
type SharedState[S any] struct {
	mu    sync.Mutex
	value S
}

func NewSharedState[S any](value S) *SharedState[S] {
	return &SharedState[S]{value: value}
}

// With runs fn while holding the state lock.
func (s *SharedState[S]) With(fn func(*S)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.value)
}

type jobKindEntry[P, R any] struct {
	name string
	run  func(P) (R, error)

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

type submission[P, R any] struct {
	id      uuid.UUID
	kind    metadata.JobKind
	entry   *jobKindEntry[P, R]
	payload P
	result  chan metadata.JobOutcome[R]
}

// JobSystem runs registered job kinds on a fixed set of worker goroutines.
// Results travel back on a channel private to each submission.
type JobSystem[P, R any] struct {
	numWorkers int
	queueSize  int
	jobQueue   chan submission[P, R]
	wg         sync.WaitGroup

	kindsMu sync.RWMutex
	kinds   []*jobKindEntry[P, R]

	// guards jobQueue against sends after close
	lifecycleMu sync.RWMutex
	stopped     bool

	submitted atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64

	metrics       *jobMetrics
	metricsReg    prometheus.Registerer
	metricsPrefix string
}

type JobSystemOption func(*jobSystemOptions)

type jobSystemOptions struct {
	registry prometheus.Registerer
	prefix   string
}

// WithJobMetrics registers Prometheus collectors named after prefix.
func WithJobMetrics(registry prometheus.Registerer, prefix string) JobSystemOption {
	return func(o *jobSystemOptions) {
		o.registry = registry
		o.prefix = prefix
	}
}

// NewJobSystem starts numWorkers workers reading from a queue holding
// queueSize submissions. A queueSize of 0 sizes the queue to numWorkers.
func NewJobSystem[P, R any](numWorkers int, queueSize int, opts ...JobSystemOption) (*JobSystem[P, R], error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if queueSize < 0 {
		return nil, ErrNegativeChannelSize
	}
	if queueSize == 0 {
		queueSize = numWorkers
	}

	o := &jobSystemOptions{}
	for _, opt := range opts {
		opt(o)
	}

	js := &JobSystem[P, R]{
		numWorkers:    numWorkers,
		queueSize:     queueSize,
		jobQueue:      make(chan submission[P, R], queueSize),
		metricsReg:    o.registry,
		metricsPrefix: o.prefix,
	}

	if o.registry != nil && o.prefix != "" {
		m, err := newJobMetrics(o.registry, o.prefix)
		if err != nil {
			return nil, err
		}
		js.metrics = m
	}

	js.start()

	core.LogDebug("job system started with %d workers and a queue of %d", numWorkers, queueSize)
	return js, nil
}

// RegisterJobKind stores callback together with the state it runs against
// and returns the index submissions use to address it. Registration may
// happen concurrently with other registrations, but a kind must be
// registered before anything submits to it.
func RegisterJobKind[P, R, S any](js *JobSystem[P, R], name string, callback JobCallback[P, R, S], state *SharedState[S]) (metadata.JobKind, error) {
	if callback == nil || state == nil {
		return metadata.InvalidJobKind, ErrNilJobCallback
	}

	entry := &jobKindEntry[P, R]{
		name: name,
		run: func(payload P) (R, error) {
			state.mu.Lock()
			defer state.mu.Unlock()
			return callback(payload, &state.value)
		},
	}

	js.kindsMu.Lock()
	defer js.kindsMu.Unlock()
	js.kinds = append(js.kinds, entry)
	kind := metadata.JobKind(len(js.kinds) - 1)

	core.LogDebug("job kind '%s' registered as %d", name, kind)
	return kind, nil
}

func (js *JobSystem[P, R]) lookup(kind metadata.JobKind) (*jobKindEntry[P, R], bool) {
	js.kindsMu.RLock()
	defer js.kindsMu.RUnlock()
	if kind < 0 || int(kind) >= len(js.kinds) {
		return nil, false
	}
	return js.kinds[kind], true
}

func (js *JobSystem[P, R]) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for sub := range js.jobQueue {
				js.execute(sub)
			}
		}()
	}
}

func (js *JobSystem[P, R]) execute(sub submission[P, R]) {
	if js.metrics != nil {
		js.metrics.queueDepth.Set(float64(len(js.jobQueue)))
	}

	start := time.Now()
	value, err := js.invoke(sub)
	duration := time.Since(start)

	js.processed.Add(1)
	sub.entry.processed.Add(1)
	status := "success"
	if err != nil {
		js.failed.Add(1)
		sub.entry.failed.Add(1)
		status = "error"
		core.LogDebug("job %s (%s) failed after %s: %s", sub.id, sub.entry.name, duration, err)
	}
	if js.metrics != nil {
		js.metrics.processed.WithLabelValues(sub.entry.name, status).Inc()
		js.metrics.duration.WithLabelValues(sub.entry.name).Observe(duration.Seconds())
	}

	// the channel has room for exactly this one outcome
	sub.result <- metadata.JobOutcome[R]{
		SubmissionID: sub.id,
		Kind:         sub.kind,
		Value:        value,
		Err:          err,
	}
}

// invoke runs the callback, turning a panic into an error outcome so the
// worker keeps serving the queue.
func (js *JobSystem[P, R]) invoke(sub submission[P, R]) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			js.panicked.Add(1)
			var zero R
			value = zero
			err = fmt.Errorf("%w: %s: %v", core.ErrJobPanicked, sub.entry.name, r)
			core.LogError("job %s (%s) panicked: %v", sub.id, sub.entry.name, r)
		}
	}()
	return sub.entry.run(sub.payload)
}

func (js *JobSystem[P, R]) prepare(kind metadata.JobKind, payload P) (submission[P, R], <-chan metadata.JobOutcome[R], bool) {
	result := make(chan metadata.JobOutcome[R], 1)
	sub := submission[P, R]{
		id:      uuid.New(),
		kind:    kind,
		payload: payload,
		result:  result,
	}

	entry, ok := js.lookup(kind)
	if !ok {
		js.rejected.Add(1)
		result <- metadata.JobOutcome[R]{
			SubmissionID: sub.id,
			Kind:         kind,
			Err:          fmt.Errorf("%w: %d", core.ErrJobKindNotFound, kind),
		}
		return sub, result, false
	}
	sub.entry = entry
	return sub, result, true
}

func (js *JobSystem[P, R]) accepted(sub submission[P, R]) {
	js.submitted.Add(1)
	sub.entry.submitted.Add(1)
	if js.metrics != nil {
		js.metrics.submitted.WithLabelValues(sub.entry.name).Inc()
		js.metrics.queueDepth.Set(float64(len(js.jobQueue)))
	}
}

func (js *JobSystem[P, R]) rejectStopped(sub submission[P, R]) {
	sub.result <- metadata.JobOutcome[R]{
		SubmissionID: sub.id,
		Kind:         sub.kind,
		Err:          ErrJobSystemStopped,
	}
}

/**
 * @brief Submits the provided payload to be executed by the given kind.
 * Blocks while the queue is full. The returned channel receives exactly one
 * outcome. Unknown kinds are answered immediately with ErrJobKindNotFound
 * without reaching a worker.
 */
func (js *JobSystem[P, R]) Submit(kind metadata.JobKind, payload P) <-chan metadata.JobOutcome[R] {
	sub, result, ok := js.prepare(kind, payload)
	if !ok {
		return result
	}

	js.lifecycleMu.RLock()
	defer js.lifecycleMu.RUnlock()
	if js.stopped {
		js.rejectStopped(sub)
		return result
	}
	js.jobQueue <- sub
	js.accepted(sub)
	return result
}

// TrySubmit is Submit without blocking. It returns false, and enqueues
// nothing, when the queue is full.
func (js *JobSystem[P, R]) TrySubmit(kind metadata.JobKind, payload P) (<-chan metadata.JobOutcome[R], bool) {
	sub, result, ok := js.prepare(kind, payload)
	if !ok {
		return result, true
	}

	js.lifecycleMu.RLock()
	defer js.lifecycleMu.RUnlock()
	if js.stopped {
		js.rejectStopped(sub)
		return result, true
	}
	select {
	case js.jobQueue <- sub:
		js.accepted(sub)
		return result, true
	default:
		return nil, false
	}
}

/**
 * @brief Shuts the job system down. Queued jobs still run; later
 * submissions are answered with ErrJobSystemStopped.
 */
func (js *JobSystem[P, R]) Shutdown() error {
	js.lifecycleMu.Lock()
	if js.stopped {
		js.lifecycleMu.Unlock()
		return nil
	}
	js.stopped = true
	close(js.jobQueue)
	js.lifecycleMu.Unlock()

	js.wg.Wait()
	if js.metrics != nil {
		js.metrics.unregister(js.metricsReg)
	}
	core.LogDebug("job system stopped after processing %d jobs", js.processed.Load())
	return nil
}

// JobSystemStats is a snapshot of the job system counters.
type JobSystemStats struct {
	Workers    int   `json:"workers"`
	QueueSize  int   `json:"queue_size"`
	QueueDepth int   `json:"queue_depth"`
	Kinds      int   `json:"kinds"`
	Submitted  int64 `json:"submitted"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
	Panicked   int64 `json:"panicked"`
	Rejected   int64 `json:"rejected"`
}

// JobKindStats is a snapshot of the counters of one kind.
type JobKindStats struct {
	Name      string `json:"name"`
	Submitted int64  `json:"submitted"`
	Processed int64  `json:"processed"`
	Failed    int64  `json:"failed"`
}

func (js *JobSystem[P, R]) Stats() JobSystemStats {
	js.kindsMu.RLock()
	kinds := len(js.kinds)
	js.kindsMu.RUnlock()

	return JobSystemStats{
		Workers:    js.numWorkers,
		QueueSize:  js.queueSize,
		QueueDepth: len(js.jobQueue),
		Kinds:      kinds,
		Submitted:  js.submitted.Load(),
		Processed:  js.processed.Load(),
		Failed:     js.failed.Load(),
		Panicked:   js.panicked.Load(),
		Rejected:   js.rejected.Load(),
	}
}

func (js *JobSystem[P, R]) KindStats(kind metadata.JobKind) (JobKindStats, bool) {
	entry, ok := js.lookup(kind)
	if !ok {
		return JobKindStats{}, false
	}
	return JobKindStats{
		Name:      entry.name,
		Submitted: entry.submitted.Load(),
		Processed: entry.processed.Load(),
		Failed:    entry.failed.Load(),
	}, true
}

type jobMetrics struct {
	queueDepth prometheus.Gauge
	submitted  *prometheus.CounterVec
	processed  *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newJobMetrics(registry prometheus.Registerer, prefix string) (*jobMetrics, error) {
	m := &jobMetrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_queue_depth",
			Help: "Current job queue depth",
		}),
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_submitted_total",
			Help: "Total jobs accepted by the queue",
		}, []string{"kind"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_processed_total",
			Help: "Total jobs executed by a worker",
		}, []string{"kind", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_duration_seconds",
			Help:    "Time spent executing jobs, lock wait included",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"kind"}),
	}
	var registered []prometheus.Collector
	for _, c := range m.collectors() {
		if err := registry.Register(c); err != nil {
			// only roll back what this call registered
			for _, r := range registered {
				registry.Unregister(r)
			}
			return nil, fmt.Errorf("registering job metrics: %w", err)
		}
		registered = append(registered, c)
	}
	return m, nil
}

func (m *jobMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.queueDepth, m.submitted, m.processed, m.duration}
}

func (m *jobMetrics) unregister(registry prometheus.Registerer) {
	for _, c := range m.collectors() {
		registry.Unregister(c)
	}
}
