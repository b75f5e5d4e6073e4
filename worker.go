package clcores

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomlx/clcores/cl"
	"github.com/pkg/errors"
)

// kernelKey identifies one argument-binding slot: argument state is cached
// per (kernel, compute-id), so different workload classes never clobber each
// other's bindings.
type kernelKey struct {
	name      string
	computeID int
}

// worker owns everything clcores holds on one device: the context, the
// command queues (queue 0 is the primary, the rest are auxiliary), the
// compiled program, the kernel-argument cache, the lazily allocated device
// buffers and the wall-clock benchmark.
type worker struct {
	index int
	dev   cl.Device
	ctx   cl.Context

	queues        []cl.Queue
	computeQueues int // width of the round-robin used by async enqueue mode

	program   cl.Program
	memPolicy cl.MemPolicy

	// mu guards the argument cache and buffer map; everything else on the
	// worker is either owned by the dispatcher task or atomic.
	mu        sync.Mutex
	kernels   map[kernelKey]cl.Kernel
	argsBound map[kernelKey][]*Array
	buffers   map[*Array]cl.Buffer

	benchT0 time.Time

	markersIssued atomic.Int64
	markerHits    atomic.Int64
}

// newWorker creates the context, compiles the program and allocates the
// command queues on one device. queueCount is the total number of queues
// (primary included); computeQueues bounds the async round-robin.
func newWorker(index int, dev cl.Device, source string, kernelNames []string, queueCount, computeQueues int, memPolicy cl.MemPolicy) (*worker, error) {
	ctx, err := dev.NewContext()
	if err != nil {
		return nil, errors.WithMessagef(err, "creating context on device %q", dev.Name())
	}
	program, err := ctx.CompileProgram(source, kernelNames)
	if err != nil {
		_ = ctx.Release()
		return nil, errors.WithMessagef(err, "compiling program on device %q", dev.Name())
	}
	w := &worker{
		index:         index,
		dev:           dev,
		ctx:           ctx,
		program:       program,
		memPolicy:     memPolicy,
		computeQueues: computeQueues,
		kernels:       make(map[kernelKey]cl.Kernel),
		argsBound:     make(map[kernelKey][]*Array),
		buffers:       make(map[*Array]cl.Buffer),
	}
	for i := 0; i < queueCount; i++ {
		q, err := ctx.NewQueue()
		if err != nil {
			w.release()
			return nil, errors.WithMessagef(err, "creating queue %d on device %q", i+1, dev.Name())
		}
		w.queues = append(w.queues, q)
	}
	return w, nil
}

// primary returns the device's primary command queue.
func (w *worker) primary() cl.Queue { return w.queues[0] }

// queue returns queue number i (0 = primary), wrapping around the available
// queues so callers can index segments directly.
func (w *worker) queue(i int) cl.Queue { return w.queues[i%len(w.queues)] }

// nextComputeQueue round-robins over the compute queues; used when async
// enqueue mode spreads concurrent issues over several queues.
func (w *worker) nextComputeQueue(i int) cl.Queue {
	return w.queues[i%w.computeQueues]
}

// bufferFor lazily allocates the device buffer backing a host array. Buffers
// always cover the full array so global workitem ids index them directly.
// Caller must hold w.mu.
func (w *worker) bufferFor(a *Array) (cl.Buffer, error) {
	if buf, ok := w.buffers[a]; ok {
		return buf, nil
	}
	buf, err := w.ctx.NewBuffer(w.memPolicy, a.n*a.dtype.Size())
	if err != nil {
		return nil, errors.WithMessagef(err, "allocating %d-byte buffer on device %q", a.n*a.dtype.Size(), w.dev.Name())
	}
	w.buffers[a] = buf
	return buf, nil
}

// bindArgs returns the kernel instance for (name, computeID) with the given
// arrays bound as arguments, in order. Rebinding with the same arrays is a
// no-op: the cache compares array identity, not contents.
func (w *worker) bindArgs(name string, computeID int, arrays []*Array) (cl.Kernel, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := kernelKey{name: name, computeID: computeID}
	k, ok := w.kernels[key]
	if !ok {
		var err error
		k, err = w.program.Kernel(name)
		if err != nil {
			return nil, errors.WithMessagef(err, "device %q", w.dev.Name())
		}
		w.kernels[key] = k
	}
	if sameArrays(w.argsBound[key], arrays) {
		return k, nil
	}
	for i, a := range arrays {
		buf, err := w.bufferFor(a)
		if err != nil {
			return nil, err
		}
		if err := k.SetArg(i, buf); err != nil {
			return nil, errors.WithMessagef(err, "binding argument %d of kernel %q on device %q", i, name, w.dev.Name())
		}
	}
	w.argsBound[key] = append([]*Array(nil), arrays...)
	return k, nil
}

func sameArrays(a, b []*Array) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// writeToBuffer issues the host→device transfers for workitems
// [offset, offset+rng) on queue q: the whole array under ReadAll, only the
// slice under ReadPartial, nothing for write-only policies. Returned events
// complete when the transfers do.
func (w *worker) writeToBuffer(arrays []*Array, access []Access, epw []int, offset, rng int, q cl.Queue, wait []cl.Event) ([]cl.Event, error) {
	var evs []cl.Event
	for i, a := range arrays {
		if !access[i].isRead() {
			continue
		}
		w.mu.Lock()
		buf, err := w.bufferFor(a)
		w.mu.Unlock()
		if err != nil {
			return evs, err
		}
		var ev cl.Event
		if access[i] == ReadAll {
			ev, err = q.EnqueueWrite(buf, 0, a.bytes, wait)
		} else {
			off := offset * epw[i]
			ev, err = q.EnqueueWrite(buf, off*a.dtype.Size(), a.slice(off, rng*epw[i]), wait)
		}
		if err != nil {
			return evs, errors.WithMessagef(err, "host→device transfer of %s on device %q", a, w.dev.Name())
		}
		evs = append(evs, ev)
	}
	return evs, nil
}

// readFromBuffer issues the device→host transfers symmetric to
// writeToBuffer: the device's own slice under WriteSlice, the entire array
// under WriteAll.
func (w *worker) readFromBuffer(arrays []*Array, access []Access, epw []int, offset, rng int, q cl.Queue, wait []cl.Event) ([]cl.Event, error) {
	var evs []cl.Event
	for i, a := range arrays {
		if !access[i].isWrite() {
			continue
		}
		w.mu.Lock()
		buf, err := w.bufferFor(a)
		w.mu.Unlock()
		if err != nil {
			return evs, err
		}
		var ev cl.Event
		if access[i] == WriteAll {
			ev, err = q.EnqueueRead(buf, 0, a.bytes, wait)
		} else {
			off := offset * epw[i]
			ev, err = q.EnqueueRead(buf, off*a.dtype.Size(), a.slice(off, rng*epw[i]), wait)
		}
		if err != nil {
			return evs, errors.WithMessagef(err, "device→host transfer of %s on device %q", a, w.dev.Name())
		}
		evs = append(evs, ev)
	}
	return evs, nil
}

// compute enqueues one kernel launch over [offset, offset+rng).
func (w *worker) compute(k cl.Kernel, offset, rng, local int, q cl.Queue, wait []cl.Event) (cl.Event, error) {
	ev, err := q.EnqueueKernel(k, offset, rng, local, wait)
	if err != nil {
		return nil, errors.WithMessagef(err, "kernel launch over [%d, %d) on device %q", offset, offset+rng, w.dev.Name())
	}
	return ev, nil
}

// computeRepeated launches the kernel n times back to back on the in-order
// queue, avoiding one dispatcher round-trip per iteration.
func (w *worker) computeRepeated(k cl.Kernel, offset, rng, local, n int, q cl.Queue) error {
	for i := 0; i < n; i++ {
		if _, err := w.compute(k, offset, rng, local, q, nil); err != nil {
			return err
		}
	}
	return nil
}

// computeRepeatedWithSyncKernel is computeRepeated with a single-workgroup
// sync kernel launched after each iteration, acting as a cheap global
// barrier within the device.
func (w *worker) computeRepeatedWithSyncKernel(k, sync cl.Kernel, offset, rng, local, syncLocal, n int, q cl.Queue) error {
	for i := 0; i < n; i++ {
		if _, err := w.compute(k, offset, rng, local, q, nil); err != nil {
			return err
		}
		if _, err := w.compute(sync, 0, syncLocal, syncLocal, q, nil); err != nil {
			return errors.WithMessage(err, "sync kernel")
		}
	}
	return nil
}

// addCountingMarker appends a marker to q whose completion bumps the
// worker's callback counter; fine-grained queue control reads the
// issued/completed pair.
func (w *worker) addCountingMarker(q cl.Queue) error {
	w.markersIssued.Add(1)
	_, err := q.EnqueueMarker(func() { w.markerHits.Add(1) })
	if err != nil {
		return errors.WithMessagef(err, "counting marker on device %q", w.dev.Name())
	}
	return nil
}

// startBench begins the wall-clock scope of the next benchmark.
func (w *worker) startBench() { w.benchT0 = time.Now() }

// endBench closes the scope and returns the elapsed time in milliseconds.
func (w *worker) endBench() float64 {
	return float64(time.Since(w.benchT0).Microseconds()) / 1e3
}

// flush hints the driver on queue number i.
func (w *worker) flush(i int) error { return w.queue(i).Flush() }

// finish blocks until queue number i has drained.
func (w *worker) finish(i int) error { return w.queue(i).Finish() }

// finishComputeQueues drains every queue async enqueue mode may have issued
// compute on.
func (w *worker) finishComputeQueues() error {
	var first error
	for i := 0; i < w.computeQueues; i++ {
		if err := w.queues[i].Finish(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// release frees every resource the worker holds, in reverse acquisition
// order. Safe to call on a partially constructed worker.
func (w *worker) release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, k := range w.kernels {
		_ = k.Release()
	}
	w.kernels = map[kernelKey]cl.Kernel{}
	for _, b := range w.buffers {
		_ = b.Release()
	}
	w.buffers = map[*Array]cl.Buffer{}
	for _, q := range w.queues {
		_ = q.Release()
	}
	w.queues = nil
	if w.program != nil {
		_ = w.program.Release()
		w.program = nil
	}
	if w.ctx != nil {
		_ = w.ctx.Release()
		w.ctx = nil
	}
}
