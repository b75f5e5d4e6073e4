package clcores

import (
	"runtime"

	"github.com/gomlx/clcores/cl"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// computeJob is the resolved, validated form of one compute call, handed to
// the per-device runners.
type computeJob struct {
	kernels    []string
	numRepeats int
	syncKernel string

	arrays []*Array
	access []Access
	epw    []int // elements per workitem, per array

	globalRange  int
	globalOffset int
	computeID    int

	stages     int
	discipline PipelineType
	localRange int

	enqueue     bool
	asyncIndex  int // round-robin cursor for async enqueue mode; -1 when unused
	fineGrained bool
}

// ComputeConfig accumulates the parameters of one compute call; created by
// Cores.Compute, fired by Done.
type ComputeConfig struct {
	cores *Cores

	kernels      []string
	numRepeats   int
	syncKernel   string
	arrays       []*Array
	access       []Access
	epw          []int
	globalRange  int
	globalOffset int
	computeID    int
	pipelined    bool
	stages       int
	discipline   PipelineType
	localRange   int

	// err stores the first configuration error; Done returns it without
	// dispatching.
	err error
}

// Compute starts the configuration of one compute call. The kernels run in
// the given order over every workitem.
//
// Minimal example, a single kernel copying in to out over 4096 workitems:
//
//	err := cores.Compute("copy").
//		Arrays(in, out).
//		Access(clcores.ReadPartial, clcores.WriteSlice).
//		GlobalRange(4096).
//		LocalRange(64).
//		ComputeID(1).
//		Done()
func (c *Cores) Compute(kernels ...string) *ComputeConfig {
	cfg := &ComputeConfig{
		cores:      c,
		kernels:    kernels,
		localRange: DefaultLocalRange,
	}
	if len(kernels) == 0 {
		cfg.err = errors.New("Compute requires at least one kernel name")
	}
	return cfg
}

// Arrays sets the host arrays the kernels operate on, in kernel-argument
// order.
func (cfg *ComputeConfig) Arrays(arrays ...*Array) *ComputeConfig {
	cfg.arrays = arrays
	return cfg
}

// Access sets the per-array transfer policy, aligned with Arrays.
func (cfg *ComputeConfig) Access(access ...Access) *ComputeConfig {
	cfg.access = access
	return cfg
}

// ElementsPerItem sets how many consecutive elements of each array one
// workitem touches; defaults to 1 for every array.
func (cfg *ComputeConfig) ElementsPerItem(epw ...int) *ComputeConfig {
	cfg.epw = epw
	return cfg
}

// Repeats makes the kernel chain run n times per call. 0 and 1 both mean a
// single run; n > 1 disables pipelining.
func (cfg *ComputeConfig) Repeats(n int) *ComputeConfig {
	cfg.numRepeats = n
	return cfg
}

// SyncKernel names a kernel inserted as a single-workgroup launch after each
// iteration when Repeats(n > 1) is in effect, serving as an intra-device
// barrier between iterations. It runs under compute-id -1 and is excluded
// from load-balance statistics.
func (cfg *ComputeConfig) SyncKernel(name string) *ComputeConfig {
	cfg.syncKernel = name
	return cfg
}

// GlobalRange sets the total number of workitems of the call.
func (cfg *ComputeConfig) GlobalRange(n int) *ComputeConfig {
	cfg.globalRange = n
	return cfg
}

// GlobalOffset shifts the global index space; workitems cover
// [offset, offset+range).
func (cfg *ComputeConfig) GlobalOffset(n int) *ComputeConfig {
	cfg.globalOffset = n
	return cfg
}

// ComputeID tags the call with its workload class: all scheduling state
// (partition, benchmarks, history) is keyed by it. Reuse the same id for
// statistically similar calls.
func (cfg *ComputeConfig) ComputeID(id int) *ComputeConfig {
	cfg.computeID = id
	return cfg
}

// Pipeline enables the per-device pipeline engine with the given discipline
// and stage count. Stages must be a positive multiple of 4 (and at least 4).
func (cfg *ComputeConfig) Pipeline(t PipelineType, stages int) *ComputeConfig {
	cfg.pipelined = true
	cfg.discipline = t
	cfg.stages = stages
	return cfg
}

// LocalRange sets the workgroup size (default 256). Device sub-ranges are
// aligned to it, except for an unaligned remainder of the global range,
// which device 0 absorbs.
func (cfg *ComputeConfig) LocalRange(n int) *ComputeConfig {
	cfg.localRange = n
	return cfg
}

// validate resolves defaults and rejects malformed calls before any device
// work is issued.
func (cfg *ComputeConfig) validate() error {
	if cfg.err != nil {
		return cfg.err
	}
	if len(cfg.arrays) == 0 {
		return errors.New("compute call has no arrays")
	}
	if len(cfg.access) != len(cfg.arrays) {
		return errors.Errorf("got %d access policies for %d arrays", len(cfg.access), len(cfg.arrays))
	}
	if cfg.epw == nil {
		cfg.epw = make([]int, len(cfg.arrays))
		for i := range cfg.epw {
			cfg.epw[i] = 1
		}
	}
	if len(cfg.epw) != len(cfg.arrays) {
		return errors.Errorf("got %d elements-per-item values for %d arrays", len(cfg.epw), len(cfg.arrays))
	}
	if cfg.globalRange <= 0 {
		return errors.Errorf("invalid global range %d", cfg.globalRange)
	}
	if cfg.localRange <= 0 {
		return errors.Errorf("invalid local range %d", cfg.localRange)
	}
	for i, a := range cfg.arrays {
		// Whole-array policies carry no per-workitem slicing to check.
		if cfg.access[i] == ReadAll || cfg.access[i] == WriteAll {
			continue
		}
		need := (cfg.globalOffset + cfg.globalRange) * cfg.epw[i]
		if a.Len() < need {
			return errors.Errorf("array %d (%s) too small: call touches %d elements", i, a, need)
		}
	}
	return nil
}

// Done runs the compute call: registers and pins the host arrays, balances
// the partition, fans out to the devices, joins and records benchmarks.
// Under enqueue mode it returns as soon as the host-side issue is complete.
func (cfg *ComputeConfig) Done() error {
	c := cfg.cores

	// Error gate: a dispatcher whose initialization failed never
	// dispatches.
	if c.inert {
		return errors.Errorf("dispatcher is inert after a failed initialization; see ErrorMessage()")
	}
	if c.disposed {
		return errors.New("dispatcher has been disposed")
	}
	if err := cfg.validate(); err != nil {
		c.recordError(err)
		return err
	}

	c.mu.Lock()
	// Strong-reference registry: the host slices must not be collected
	// while device work may still reference them.
	for _, a := range cfg.arrays {
		c.arrays[a] = struct{}{}
	}
	pinner := new(runtime.Pinner)
	for _, a := range cfg.arrays {
		a.pin(pinner)
	}

	c.callCount++
	if c.callCount%AffinityRefreshPeriod == 1 {
		c.affinityHook()
	}

	numDevices := len(c.workers)
	stagesOK := cfg.pipelined && cfg.stages >= MinPipelineStages && cfg.stages%MinPipelineStages == 0
	repeats := cfg.numRepeats
	if repeats < 1 {
		repeats = 1
	}

	// Alignment: pipeline-viable calls partition in units of
	// stages×localRange so every sub-range divides into whole segments.
	alignment := cfg.localRange
	if stagesOK && !c.noPipelining && repeats <= 1 &&
		cfg.globalRange >= numDevices*cfg.stages*cfg.localRange {
		alignment = cfg.stages * cfg.localRange
	}

	st, ok := c.states[cfg.computeID]
	if !ok {
		st = newComputeState(numDevices)
		c.states[cfg.computeID] = st
		st.initEqual(cfg.globalRange, cfg.globalOffset, alignment)
	} else {
		st.rebalance(cfg.globalRange, alignment, c.smooth)
		st.updateReferences(cfg.globalOffset)
	}
	st.calls++

	// Pipeline feasibility on the concrete partition.
	pipelined := stagesOK && !c.noPipelining && repeats <= 1
	active := 0
	for _, r := range st.ranges {
		if r == 0 {
			continue
		}
		active++
		if r < cfg.stages*cfg.localRange || cfg.stages == 0 ||
			(r/max(cfg.stages, 1))%cfg.localRange != 0 {
			pipelined = false
		}
	}
	if cfg.pipelined && !pipelined && stagesOK {
		klog.V(1).Infof("pipeline infeasible for compute id %d (range %d, stages %d, local %d); using simple path",
			cfg.computeID, cfg.globalRange, cfg.stages, cfg.localRange)
	}
	if cfg.pipelined && !stagesOK {
		if cfg.discipline == PipelineDriver {
			// Driver discipline treats a bad stage count as a contract
			// violation rather than a fallback: abort before any issue.
			err := errors.Errorf("driver pipeline requires stages to be a positive multiple of %d, got %d",
				MinPipelineStages, cfg.stages)
			pinner.Unpin()
			c.mu.Unlock()
			c.recordError(err)
			return err
		}
		klog.Warningf("pipeline stages %d not a multiple of %d; falling back to simple path", cfg.stages, MinPipelineStages)
	}

	// Multi-device write-all is under-defined: only a single participating
	// device may write the whole array unchecked.
	if active > 1 {
		for i, acc := range cfg.access {
			if acc == WriteAll {
				err := errors.Errorf("WriteAll on array %d requires a single participating device, have %d", i, active)
				pinner.Unpin()
				c.mu.Unlock()
				c.recordError(err)
				return err
			}
		}
	}

	enqueue := c.enqActive
	job := &computeJob{
		kernels:      cfg.kernels,
		numRepeats:   repeats,
		syncKernel:   cfg.syncKernel,
		arrays:       cfg.arrays,
		access:       cfg.access,
		epw:          cfg.epw,
		globalRange:  cfg.globalRange,
		globalOffset: cfg.globalOffset,
		computeID:    cfg.computeID,
		stages:       cfg.stages,
		discipline:   cfg.discipline,
		localRange:   cfg.localRange,
		enqueue:      enqueue,
		asyncIndex:   -1,
		fineGrained:  c.enqFineGrained,
	}
	if enqueue {
		// No host sync inside the call; pins are held until the drain
		// barrier, and pipelining (which must finish its queues) is off.
		pipelined = false
		if c.enqAsync {
			job.asyncIndex = c.enqIndex
			c.enqIndex++
		}
		c.enqPinners = append(c.enqPinners, pinner)
	}
	references := append([]int(nil), st.references...)
	ranges := append([]int(nil), st.ranges...)
	c.mu.Unlock()

	// Parallel bounded fan-out: one task per device with work this call.
	benchMs := make([]float64, numDevices)
	for i := range benchMs {
		benchMs[i] = -1
	}
	var firstErr error
	if active == 1 || numDevices == 1 {
		for d, w := range c.workers {
			if ranges[d] == 0 {
				continue
			}
			ms, err := c.runDevice(w, job, references[d], ranges[d], pipelined)
			benchMs[d] = ms
			if err != nil {
				c.recordError(err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	} else {
		var g errgroup.Group
		for d, w := range c.workers {
			if ranges[d] == 0 {
				continue
			}
			d, w := d, w
			g.Go(func() error {
				ms, err := c.runDevice(w, job, references[d], ranges[d], pipelined)
				benchMs[d] = ms
				if err != nil {
					c.recordError(err)
				}
				return err
			})
		}
		firstErr = g.Wait()
	}

	// Benchmarks and ranges are dispatcher-owned: mutate only after join.
	c.mu.Lock()
	for d, ms := range benchMs {
		if ms >= 0 {
			st.recordBenchmark(d, ms)
		}
	}
	c.lastComputeID = cfg.computeID
	c.mu.Unlock()

	if !enqueue {
		pinner.Unpin()
	}
	return firstErr
}

// runDevice executes one device's share of the job, pipelined or simple,
// and returns the measured wall time in ms (-1 when not benchmarked).
func (c *Cores) runDevice(w *worker, job *computeJob, offset, rng int, pipelined bool) (float64, error) {
	bench := !job.enqueue
	if bench {
		w.startBench()
	}
	var err error
	if pipelined {
		if job.discipline == PipelineDriver {
			err = w.runPipelineDriver(job, offset, rng)
		} else {
			err = w.runPipelineEvent(job, offset, rng)
		}
	} else {
		err = w.runSimple(job, offset, rng)
	}
	if !bench {
		return -1, err
	}
	return w.endBench(), err
}

// runSimple is the non-pipelined path: transfer in, run the kernel chain
// (optionally repeated with the sync kernel in between), transfer out, and
// synchronize unless enqueue mode defers it.
func (w *worker) runSimple(job *computeJob, offset, rng int) error {
	q := w.primary()
	if job.asyncIndex >= 0 {
		q = w.nextComputeQueue(job.asyncIndex)
	}

	kernels := make([]cl.Kernel, len(job.kernels))
	for i, name := range job.kernels {
		k, err := w.bindArgs(name, job.computeID, job.arrays)
		if err != nil {
			return err
		}
		kernels[i] = k
	}
	var syncK cl.Kernel
	if job.syncKernel != "" && job.numRepeats > 1 {
		var err error
		syncK, err = w.bindArgs(job.syncKernel, -1, job.arrays)
		if err != nil {
			return err
		}
	}

	if _, err := w.writeToBuffer(job.arrays, job.access, job.epw, offset, rng, q, nil); err != nil {
		return err
	}

	// A residue sub-range (device 0 absorbing an unaligned remainder) can't
	// keep the requested workgroup size; let the driver pick one.
	local := job.localRange
	if rng < local || rng%local != 0 {
		klog.V(1).Infof("sub-range %d not aligned to local range %d on device %q; using driver-chosen workgroups", rng, local, w.dev.Name())
		local = 0
	}

	switch {
	case len(kernels) == 1 && job.numRepeats > 1 && syncK != nil:
		if err := w.computeRepeatedWithSyncKernel(kernels[0], syncK, offset, rng, local, job.localRange, job.numRepeats, q); err != nil {
			return err
		}
	case len(kernels) == 1 && job.numRepeats > 1:
		if err := w.computeRepeated(kernels[0], offset, rng, local, job.numRepeats, q); err != nil {
			return err
		}
	default:
		for rep := 0; rep < job.numRepeats; rep++ {
			for _, k := range kernels {
				if _, err := w.compute(k, offset, rng, local, q, nil); err != nil {
					return err
				}
			}
			if syncK != nil {
				if _, err := w.compute(syncK, 0, job.localRange, job.localRange, q, nil); err != nil {
					return errors.WithMessage(err, "sync kernel")
				}
			}
		}
	}

	if _, err := w.readFromBuffer(job.arrays, job.access, job.epw, offset, rng, q, nil); err != nil {
		return err
	}

	if job.fineGrained {
		if err := w.addCountingMarker(q); err != nil {
			return err
		}
	}
	if !job.enqueue {
		if err := q.Finish(); err != nil {
			return errors.WithMessagef(err, "finishing queue on device %q", w.dev.Name())
		}
	}
	return nil
}
