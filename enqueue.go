package clcores

import (
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Enqueue mode batches many compute calls without host synchronization:
// while active, compute calls return once their commands are issued, leaving
// device work outstanding. The caller contract is strict for the duration:
// the kernel-array binding matrix must not change, and no host array seen by
// a compute call may be mutated or freed until EndEnqueue returns (the
// dispatcher keeps them registered and pinned until then).

// BeginEnqueue enters enqueue mode and opens a fresh benchmark scope on
// every device. No-op when already active.
func (c *Cores) BeginEnqueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enqActive {
		return
	}
	c.enqActive = true
	c.enqIndex = 0
	for _, w := range c.workers {
		w.startBench()
	}
}

// EndEnqueue leaves enqueue mode: it finishes every compute queue on every
// device in parallel (the drain barrier), closes the benchmark scope for the
// last used compute-id and releases the host-array pins accumulated while
// the mode was active.
func (c *Cores) EndEnqueue() error {
	c.mu.Lock()
	if !c.enqActive {
		c.mu.Unlock()
		return nil
	}
	workers := c.workers
	c.mu.Unlock()

	var g errgroup.Group
	for _, w := range workers {
		g.Go(w.finishComputeQueues)
	}
	err := g.Wait()
	if err != nil {
		c.recordError(err)
		klog.Errorf("enqueue-mode drain reported an error: %v", err)
	}

	c.mu.Lock()
	st := c.states[c.lastComputeID]
	for d, w := range workers {
		ms := w.endBench()
		if st != nil {
			st.recordBenchmark(d, ms)
		}
	}
	for _, p := range c.enqPinners {
		p.Unpin()
	}
	c.enqPinners = nil
	c.enqActive = false
	c.mu.Unlock()
	return err
}

// SetEnqueueAsync spreads the compute issues of enqueue-mode calls over the
// device's compute queues round-robin instead of always using the primary.
// Valid for single-device jobs and intra-device pipelining; the width of the
// round-robin is the builder's QueueConcurrency.
func (c *Cores) SetEnqueueAsync(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqAsync = on
}

// SetFineGrainedQueueControl makes every compute call that takes the simple
// path append a counting marker to its last used queue; pipelined calls
// append none (enqueue-mode calls always take the simple path).
// CountMarkers and CountMarkerCallbacks then expose the issued/completed
// totals; the difference is the number of calls still in flight.
func (c *Cores) SetFineGrainedQueueControl(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqFineGrained = on
}
