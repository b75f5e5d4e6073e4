package clcores

import (
	"github.com/gomlx/clcores/cl"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// The pipeline engine splits a device's sub-range into stages equal segments
// and overlaps the three phases -- host→device transfer ("read"), kernel
// execution, device→host transfer ("write") -- either through an explicit
// event DAG over six queues (PipelineEvent) or by spreading segments over up
// to 16 in-order queues and letting the driver overlap them
// (PipelineDriver).
//
// Queue numbering within the worker: 0 is the primary; the event discipline
// uses the auxiliary pairs {1,2} for reads, {3,4} for computes, {5,6} for
// writes; the driver discipline uses 1..16.

// pipelinePass is one pipelined sweep over the sub-range: which phases it
// carries and which kernel it launches. Multi-kernel calls decompose into
// several passes, see passesFor.
type pipelinePass struct {
	kernel    string
	read      bool
	write     bool
	pipelined bool
}

// passesFor maps the kernel chain onto pipeline passes:
//
//	K=1: one pass carrying read+compute+write;
//	K=2: read+k₀, then k₁+write -- the intermediate state stays device-resident;
//	K>2: read+k₀, the middle kernels non-pipelined on the primary queue,
//	     then k_last+write.
func passesFor(kernels []string) []pipelinePass {
	switch len(kernels) {
	case 1:
		return []pipelinePass{{kernel: kernels[0], read: true, write: true, pipelined: true}}
	case 2:
		return []pipelinePass{
			{kernel: kernels[0], read: true, pipelined: true},
			{kernel: kernels[1], write: true, pipelined: true},
		}
	default:
		passes := []pipelinePass{{kernel: kernels[0], read: true, pipelined: true}}
		for _, mid := range kernels[1 : len(kernels)-1] {
			passes = append(passes, pipelinePass{kernel: mid})
		}
		return append(passes, pipelinePass{kernel: kernels[len(kernels)-1], write: true, pipelined: true})
	}
}

// jobArrays is the job's array set split by transfer role for the pipeline:
// per-segment reads and writes, whole-array preloads (ReadAll) and the final
// single-device whole-array writeback (WriteAll).
type jobArrays struct {
	segReadArrays []*Array
	segReadAccess []Access
	segReadEpw    []int

	segWriteArrays []*Array
	segWriteAccess []Access
	segWriteEpw    []int

	preloadArrays []*Array
	preloadAccess []Access
	preloadEpw    []int

	finalArrays []*Array
	finalAccess []Access
	finalEpw    []int
}

func splitJobArrays(job *computeJob) jobArrays {
	var ja jobArrays
	for i, a := range job.arrays {
		switch job.access[i] {
		case ReadPartial:
			ja.segReadArrays = append(ja.segReadArrays, a)
			ja.segReadAccess = append(ja.segReadAccess, ReadPartial)
			ja.segReadEpw = append(ja.segReadEpw, job.epw[i])
		case ReadAll:
			ja.preloadArrays = append(ja.preloadArrays, a)
			ja.preloadAccess = append(ja.preloadAccess, ReadAll)
			ja.preloadEpw = append(ja.preloadEpw, job.epw[i])
		case WriteSlice:
			ja.segWriteArrays = append(ja.segWriteArrays, a)
			ja.segWriteAccess = append(ja.segWriteAccess, WriteSlice)
			ja.segWriteEpw = append(ja.segWriteEpw, job.epw[i])
		case WriteAll:
			ja.finalArrays = append(ja.finalArrays, a)
			ja.finalAccess = append(ja.finalAccess, WriteAll)
			ja.finalEpw = append(ja.finalEpw, job.epw[i])
		}
	}
	return ja
}

// runPipelineEvent runs the event-driven discipline over [offset,
// offset+rng): two interleaved wavefronts, one per half of the sub-range,
// each on its own read/compute/write queue triple.
func (w *worker) runPipelineEvent(job *computeJob, offset, rng int) error {
	ja := splitJobArrays(job)

	// Whole-array inputs go up once, before the wavefronts; their events
	// guard the first compute of each half.
	var preloadEvs []cl.Event
	if len(ja.preloadArrays) > 0 {
		evs, err := w.writeToBuffer(ja.preloadArrays, ja.preloadAccess, ja.preloadEpw, offset, rng, w.queue(1), nil)
		if err != nil {
			return err
		}
		preloadEvs = evs
	}

	for _, pass := range passesFor(job.kernels) {
		kernel, err := w.bindArgs(pass.kernel, job.computeID, job.arrays)
		if err != nil {
			return err
		}
		if !pass.pipelined {
			// Middle kernels of a K>2 chain: full range on the primary
			// queue, host barrier before the next pass.
			if _, err := w.compute(kernel, offset, rng, job.localRange, w.primary(), nil); err != nil {
				return err
			}
			if err := w.primary().Finish(); err != nil {
				return err
			}
			continue
		}

		half := rng / 2
		var released []cl.Event
		for h := 0; h < 2; h++ {
			evs, err := w.wavefront(job, ja, kernel, pass,
				offset+h*half, half,
				w.queue(1+h), w.queue(3+h), w.queue(5+h),
				preloadEvs)
			released = append(released, evs...)
			if err != nil {
				return err
			}
		}
		preloadEvs = nil // only the first pass reads after the preload

		// Flush everything, then wait on the queues that carried the last
		// observable side effect of the pass.
		for q := 1; q <= 6; q++ {
			if err := w.flush(q); err != nil {
				return err
			}
		}
		finishFrom := 3 // compute pair
		if pass.write && len(ja.segWriteArrays) > 0 {
			finishFrom = 5 // write pair
		}
		for h := 0; h < 2; h++ {
			if err := w.finish(finishFrom + h); err != nil {
				return err
			}
		}
		for _, ev := range released {
			ev.Release()
		}
	}

	return w.finalWriteback(ja, w.queue(5))
}

// wavefront issues one classic read→compute→write pipeline over half of the
// sub-range. Event propagation: a segment's read guards its compute and the
// write issued one step later; a compute guards its write and the read
// issued on the next step (two segments ahead); a write guards the read and compute issued on the following
// steps. All of it keeps device-buffer and host-region reuse ordered while
// the three queues run free otherwise.
func (w *worker) wavefront(job *computeJob, ja jobArrays, kernel cl.Kernel, pass pipelinePass,
	base, halfRng int, readQ, compQ, writeQ cl.Queue, preloadEvs []cl.Event) ([]cl.Event, error) {

	segs := job.stages / 2
	seg := halfRng / segs

	inEvs := make([][]cl.Event, segs)
	execEv := make([]cl.Event, segs)
	outEvs := make([][]cl.Event, segs)
	var all []cl.Event

	for step := 0; step <= segs+1; step++ {
		if pass.read && step < segs && len(ja.segReadArrays) > 0 {
			var wait []cl.Event
			if step >= 2 {
				wait = append(wait, execEv[step-2])
			}
			if step >= 3 {
				wait = append(wait, outEvs[step-3]...)
			}
			evs, err := w.writeToBuffer(ja.segReadArrays, ja.segReadAccess, ja.segReadEpw,
				base+step*seg, seg, readQ, wait)
			all = append(all, evs...)
			if err != nil {
				return all, err
			}
			inEvs[step] = evs
		}

		if step >= 1 && step <= segs {
			j := step - 1
			var wait []cl.Event
			wait = append(wait, inEvs[j]...)
			if step >= 3 {
				wait = append(wait, outEvs[step-3]...)
			}
			if j == 0 {
				wait = append(wait, preloadEvs...)
			}
			ev, err := w.compute(kernel, base+j*seg, seg, job.localRange, compQ, wait)
			if err != nil {
				return all, err
			}
			all = append(all, ev)
			execEv[j] = ev
		}

		if pass.write && step >= 2 && step <= segs+1 && len(ja.segWriteArrays) > 0 {
			j := step - 2
			wait := []cl.Event{execEv[j]}
			if step-1 < segs {
				wait = append(wait, inEvs[step-1]...)
			}
			evs, err := w.readFromBuffer(ja.segWriteArrays, ja.segWriteAccess, ja.segWriteEpw,
				base+j*seg, seg, writeQ, wait)
			all = append(all, evs...)
			if err != nil {
				return all, err
			}
			outEvs[j] = evs
		}
	}
	return all, nil
}

// runPipelineDriver runs the driver-scheduled discipline: each segment's
// (read, compute, write) triple lands on its own in-order queue, no events,
// disjoint offsets guaranteeing independence. The driver overlaps the
// queues.
func (w *worker) runPipelineDriver(job *computeJob, offset, rng int) error {
	if job.stages < MinPipelineStages || job.stages%MinPipelineStages != 0 {
		return errors.Errorf("driver pipeline requires stages to be a positive multiple of %d, got %d",
			MinPipelineStages, job.stages)
	}
	ja := splitJobArrays(job)
	seg := rng / job.stages

	// Whole-array inputs need a host barrier: with no events there is no
	// other way to make them visible to every queue before the computes.
	if len(ja.preloadArrays) > 0 {
		if _, err := w.writeToBuffer(ja.preloadArrays, ja.preloadAccess, ja.preloadEpw, offset, rng, w.primary(), nil); err != nil {
			return err
		}
		if err := w.primary().Finish(); err != nil {
			return err
		}
	}

	used := min(job.stages, MaxQueues)
	for pi, pass := range passesFor(job.kernels) {
		kernel, err := w.bindArgs(pass.kernel, job.computeID, job.arrays)
		if err != nil {
			return err
		}
		if !pass.pipelined {
			if _, err := w.compute(kernel, offset, rng, job.localRange, w.primary(), nil); err != nil {
				return err
			}
			if err := w.primary().Finish(); err != nil {
				return err
			}
			continue
		}
		if pi > 0 {
			// Pass boundary: all segments of the previous pass must land
			// before a queue may start the next one.
			if err := w.finishPaired(used); err != nil {
				return err
			}
		}
		for k := 0; k < job.stages; k++ {
			q := w.queue(1 + k%MaxQueues)
			segOff := offset + k*seg
			if pass.read {
				if _, err := w.writeToBuffer(ja.segReadArrays, ja.segReadAccess, ja.segReadEpw, segOff, seg, q, nil); err != nil {
					return err
				}
			}
			if _, err := w.compute(kernel, segOff, seg, job.localRange, q, nil); err != nil {
				return err
			}
			if pass.write {
				if _, err := w.readFromBuffer(ja.segWriteArrays, ja.segWriteAccess, ja.segWriteEpw, segOff, seg, q, nil); err != nil {
					return err
				}
			}
		}
	}

	for k := 1; k <= used; k++ {
		if err := w.flush(k); err != nil {
			return err
		}
	}
	if err := w.finishPaired(used); err != nil {
		return err
	}
	return w.finalWriteback(ja, w.queue(1))
}

// finishPaired drains the auxiliary queues 1..used, pairing queue q with
// queue 17-q across a small host pool so the waits overlap.
func (w *worker) finishPaired(used int) error {
	var g errgroup.Group
	g.SetLimit(8)
	for i := 1; i <= MaxQueues/2; i++ {
		lo, hi := i, MaxQueues+1-i
		g.Go(func() error {
			if lo <= used {
				if err := w.finish(lo); err != nil {
					return err
				}
			}
			if hi <= used {
				return w.finish(hi)
			}
			return nil
		})
	}
	return g.Wait()
}

// finalWriteback transfers WriteAll arrays back in one piece after the
// pipelined passes have drained.
func (w *worker) finalWriteback(ja jobArrays, q cl.Queue) error {
	if len(ja.finalArrays) == 0 {
		return nil
	}
	if _, err := w.readFromBuffer(ja.finalArrays, ja.finalAccess, ja.finalEpw, 0, 0, q, nil); err != nil {
		return err
	}
	return q.Finish()
}
