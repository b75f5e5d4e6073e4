package clcores

import (
	"runtime"
	"strings"
	"sync"

	"github.com/gomlx/clcores/cl"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Cores is the job dispatcher: the public entry point that pins host arrays,
// consults the load balancer, fans the partition out to the per-device
// workers and joins.
//
// Create one with New(runtime)...Done(). A Cores that failed to initialize
// stays usable but inert: every compute call returns after the error gate and
// the failure is readable through ErrorCode and ErrorMessage.
type Cores struct {
	workers []*worker

	smooth       bool
	noPipelining bool

	// mu guards the per-compute-id states, the array registry and the
	// enqueue-mode bookkeeping. Workers synchronize on their own locks.
	mu        sync.Mutex
	states    map[int]*computeState
	arrays    map[*Array]struct{}
	callCount int

	enqActive      bool
	enqAsync       bool
	enqFineGrained bool
	enqIndex       int
	enqPinners     []*runtime.Pinner

	lastComputeID int

	// affinityHook is swapped out by tests; in production it sets the
	// process affinity mask to every available logical processor.
	affinityHook func()

	errMu    sync.Mutex
	errCount int
	errLog   strings.Builder

	// inert is set when construction fails: compute calls return at the
	// error gate without dispatching. Runtime errors accumulate in the
	// counter but do not render the dispatcher inert.
	inert bool

	disposed bool
}

// Builder configures the construction of a Cores. Obtain one with New,
// chain options, finish with Done.
type Builder struct {
	rt          cl.Runtime
	devices     []cl.Device
	kinds       []cl.DeviceKind
	source      string
	kernelNames []string

	numGPUs          int
	maxCPUCores      int
	gpuStreaming     bool
	noPipelining     bool
	queueConcurrency int
	smooth           bool

	err error
}

// New starts the construction of a Cores over the given runtime.
//
// Two construction shapes are supported. Filtered discovery:
//
//	cores, err := clcores.New(rt).
//		WithKinds(cl.GPU, cl.CPU).
//		WithSource(kernelSource).
//		WithKernelNames("vecAdd", "vecMul").
//		Done()
//
// or an explicit device list via WithDevices, bypassing discovery.
func New(rt cl.Runtime) *Builder {
	return &Builder{
		rt:               rt,
		numGPUs:          -1,
		maxCPUCores:      -1,
		gpuStreaming:     true,
		queueConcurrency: 4,
		smooth:           true,
	}
}

// WithKinds restricts discovery to the given device kinds. Without it, every
// discovered device is used.
func (b *Builder) WithKinds(kinds ...cl.DeviceKind) *Builder {
	if b.err != nil {
		return b
	}
	if b.devices != nil {
		b.err = errors.New("WithKinds and WithDevices are mutually exclusive")
		return b
	}
	b.kinds = kinds
	return b
}

// WithDevices selects an explicit device list, bypassing discovery and kind
// filtering.
func (b *Builder) WithDevices(devices ...cl.Device) *Builder {
	if b.err != nil {
		return b
	}
	if b.kinds != nil {
		b.err = errors.New("WithKinds and WithDevices are mutually exclusive")
		return b
	}
	b.devices = devices
	return b
}

// WithSource sets the kernel source (C99 dialect) compiled on every device.
func (b *Builder) WithSource(source string) *Builder {
	b.source = source
	return b
}

// WithKernelNames declares the kernel entry points the job will launch.
func (b *Builder) WithKernelNames(names ...string) *Builder {
	b.kernelNames = names
	return b
}

// MaxGPUs caps how many GPUs are used: -1 (default) means all, 0 excludes
// GPUs entirely.
func (b *Builder) MaxGPUs(n int) *Builder {
	b.numGPUs = n
	return b
}

// MaxCPUCores limits the logical processors a CPU device may use: -1
// (default) means logical processors minus one, other values are clamped to
// [1, logical-1]. Devices that don't support limiting ignore it.
func (b *Builder) MaxCPUCores(n int) *Builder {
	b.maxCPUCores = n
	return b
}

// GPUStreaming selects dedicated device memory with explicit DMA for GPUs
// (the default). With false, GPUs use the pinned host-memory policy, which
// is the right call for integrated GPUs sharing host RAM.
func (b *Builder) GPUStreaming(on bool) *Builder {
	b.gpuStreaming = on
	return b
}

// NoPipelining creates a single command queue per device and disables the
// pipeline engine. Saves driver resources when calls are known to be small.
func (b *Builder) NoPipelining(on bool) *Builder {
	b.noPipelining = on
	return b
}

// QueueConcurrency sets how many queues the async enqueue mode round-robins
// compute over, clamped to [1, 16].
func (b *Builder) QueueConcurrency(n int) *Builder {
	if n < 1 {
		n = 1
	}
	if n > MaxQueues {
		n = MaxQueues
	}
	b.queueConcurrency = n
	return b
}

// SmoothBalancing toggles benchmark smoothing over the history window
// (default on). Without it the balancer follows the last measurement alone.
func (b *Builder) SmoothBalancing(on bool) *Builder {
	b.smooth = on
	return b
}

// Done builds the Cores: it discovers and filters devices, creates contexts
// and queues, and compiles the kernel source on every device.
//
// On failure it returns the error and a non-nil inert Cores carrying it, so
// callers that poll ErrorCode instead of checking the error keep working.
func (b *Builder) Done() (*Cores, error) {
	c := &Cores{
		smooth:       b.smooth,
		noPipelining: b.noPipelining,
		states:       make(map[int]*computeState),
		arrays:       make(map[*Array]struct{}),
		affinityHook: refreshProcessAffinity,
	}
	runtime.SetFinalizer(c, func(c *Cores) {
		if !c.disposed {
			klog.Warningf("clcores.Cores garbage collected without Dispose; releasing device resources in finalizer")
			c.Dispose()
		}
	})
	if b.err != nil {
		c.recordError(b.err)
		c.inert = true
		return c, b.err
	}

	devices, err := b.selectDevices()
	if err != nil {
		c.recordError(err)
		c.inert = true
		return c, err
	}

	queueCount := 1 + MaxQueues
	if b.noPipelining {
		queueCount = 1
	}
	computeQueues := b.queueConcurrency
	if computeQueues > queueCount {
		computeQueues = queueCount
	}
	for i, dev := range devices {
		policy := dev.MemoryPolicy()
		if dev.Kind() == cl.GPU {
			policy = cl.MemPinned
			if b.gpuStreaming {
				policy = cl.MemStreaming
			}
		}
		w, werr := newWorker(i, dev, b.source, b.kernelNames, queueCount, computeQueues, policy)
		if werr != nil {
			c.recordError(werr)
			err = werr
			continue
		}
		c.workers = append(c.workers, w)
	}
	if err != nil {
		// A device that fails to compile poisons the whole dispatcher: a
		// partial device set would silently change the partition.
		for _, w := range c.workers {
			w.release()
		}
		c.workers = nil
		c.inert = true
		return c, err
	}
	return c, nil
}

// selectDevices applies the discovery filters of construction variant A, or
// returns the explicit list of variant B.
func (b *Builder) selectDevices() ([]cl.Device, error) {
	devices := b.devices
	if devices == nil {
		all, err := b.rt.Devices()
		if err != nil {
			return nil, errors.WithMessage(err, "device discovery failed")
		}
		for _, dev := range all {
			if len(b.kinds) > 0 && !kindIn(dev.Kind(), b.kinds) {
				continue
			}
			devices = append(devices, dev)
		}
	}

	gpusTaken := 0
	var selected []cl.Device
	for _, dev := range devices {
		if dev.Kind() == cl.GPU {
			if b.numGPUs == 0 || (b.numGPUs > 0 && gpusTaken >= b.numGPUs) {
				continue
			}
			gpusTaken++
		}
		if dev.Kind() == cl.CPU {
			if lim, ok := dev.(cl.CoreLimited); ok {
				logical := dev.LogicalProcessors()
				n := b.maxCPUCores
				if n < 0 {
					n = logical - 1
				}
				if n < 1 {
					n = 1
				}
				if logical > 1 && n > logical-1 {
					n = logical - 1
				}
				lim.SetCoreLimit(n)
			}
		}
		selected = append(selected, dev)
	}
	if len(selected) == 0 {
		return nil, errors.New("no compute device matches the requested filters")
	}
	return selected, nil
}

func kindIn(k cl.DeviceKind, kinds []cl.DeviceKind) bool {
	for _, kk := range kinds {
		if k == kk {
			return true
		}
	}
	return false
}

// NumberOfDevices returns how many devices the dispatcher drives.
func (c *Cores) NumberOfDevices() int { return len(c.workers) }

// DeviceNames returns the device names in partition order.
func (c *Cores) DeviceNames() []string {
	names := make([]string, len(c.workers))
	for i, w := range c.workers {
		names[i] = w.dev.Name()
	}
	return names
}

// ErrorCode returns the number of errors accumulated so far; 0 means
// healthy.
func (c *Cores) ErrorCode() int {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.errCount
}

// ErrorMessage returns the accumulated textual error log.
func (c *Cores) ErrorMessage() string {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.errLog.String()
}

func (c *Cores) recordError(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	c.errCount++
	c.errLog.WriteString(err.Error())
	c.errLog.WriteString("\n")
}

// Benchmarks returns the last measured execution time (ms) per device for
// the compute-id, nil if the id was never dispatched.
func (c *Cores) Benchmarks(computeID int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[computeID]
	if !ok {
		return nil
	}
	return append([]float64(nil), st.benchmarks...)
}

// Ranges returns the current partition (workitems per device) for the
// compute-id, nil if the id was never dispatched.
func (c *Cores) Ranges(computeID int) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[computeID]
	if !ok {
		return nil
	}
	return append([]int(nil), st.ranges...)
}

// PerformanceHistory returns the benchmark ring for the compute-id, newest
// row first: history[h][d] is an execution time of device d in ms, 0 meaning
// no measurement. A row is pushed when a smoothed rebalance starts a call, so
// row 0 holds the measurement of the call before the latest one; with
// smoothing off the ring stays zero.
func (c *Cores) PerformanceHistory(computeID int) [][]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[computeID]
	if !ok {
		return nil
	}
	out := make([][]float64, HistoryDepth)
	for h := range out {
		out[h] = append([]float64(nil), st.histMs[h]...)
	}
	return out
}

// CountMarkers returns the total number of counting markers issued across
// all devices; see Cores.SetFineGrainedQueueControl.
func (c *Cores) CountMarkers() int64 {
	var n int64
	for _, w := range c.workers {
		n += w.markersIssued.Load()
	}
	return n
}

// CountMarkerCallbacks returns how many counting markers have completed.
// CountMarkers() - CountMarkerCallbacks() is the work still in flight.
func (c *Cores) CountMarkerCallbacks() int64 {
	var n int64
	for _, w := range c.workers {
		n += w.markerHits.Load()
	}
	return n
}

// Dispose releases every device resource the dispatcher holds: kernels,
// buffers, queues, programs and contexts, on every device. The Cores is
// inert afterwards. Safe to call more than once.
func (c *Cores) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	for _, p := range c.enqPinners {
		p.Unpin()
	}
	c.enqPinners = nil
	c.arrays = map[*Array]struct{}{}
	c.states = map[int]*computeState{}
	c.mu.Unlock()

	for _, w := range c.workers {
		w.release()
	}
}
