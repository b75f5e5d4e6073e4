package clcores

import (
	"math"
)

// computeState is the per-compute-id scheduling state: current partition of
// the global range, the latest benchmark per device and a short ring of past
// benchmarks used for smoothing. It is created lazily on the first compute
// call that uses the compute-id and mutated only by the dispatcher between
// device fan-outs.
type computeState struct {
	ranges     []int // workitems assigned per device; sums to globalRange
	references []int // starting global offset per device (prefix sums)

	benchmarks []float64 // last measured execution time per device, ms

	// Benchmark ring, newest row first. histItems records the range each
	// device held when the row was measured, so smoothing can normalize a
	// latency to per-item cost before applying it to the current partition.
	// A zero entry means "no measurement" and is excluded from the mean.
	histMs    [][]float64
	histItems [][]int

	calls int // compute calls dispatched with this id
}

func newComputeState(numDevices int) *computeState {
	s := &computeState{
		ranges:     make([]int, numDevices),
		references: make([]int, numDevices),
		benchmarks: make([]float64, numDevices),
		histMs:     make([][]float64, HistoryDepth),
		histItems:  make([][]int, HistoryDepth),
	}
	for h := range s.histMs {
		s.histMs[h] = make([]float64, numDevices)
		s.histItems[h] = make([]int, numDevices)
	}
	seed := float64(benchmarkSeed.Microseconds()) / 1e3
	for d := range s.benchmarks {
		s.benchmarks[d] = seed
	}
	return s
}

// initEqual assigns equal aligned shares, any remainder to device 0 so the
// partition sums exactly to globalRange.
func (s *computeState) initEqual(globalRange, globalOffset, alignment int) {
	d := len(s.ranges)
	if alignment <= 0 {
		alignment = 1
	}
	share := globalRange / d / alignment * alignment
	total := 0
	for i := range s.ranges {
		s.ranges[i] = share
		total += share
	}
	s.ranges[0] += globalRange - total
	s.updateReferences(globalOffset)
}

// rebalance recomputes the partition from the measured benchmarks. With
// smooth set, the benchmark ring is shifted and the effective latency of a
// device is its mean per-item latency over the ring scaled to the device's
// current range; without it the last benchmark is used as-is. The new ranges
// are throughput-proportional shares of globalRange, snapped down to
// alignment, with the leftover handed out one alignment unit at a time to
// the devices with the largest fractional loss (lower index wins ties). A
// device whose share rounds below one alignment unit sits out this call with
// range 0; only when the whole partition would be empty does device 0 take
// everything.
func (s *computeState) rebalance(globalRange, alignment int, smooth bool) {
	d := len(s.ranges)
	if alignment <= 0 {
		alignment = 1
	}

	t := make([]float64, d)
	if smooth {
		s.shiftHistory()
		for i := 0; i < d; i++ {
			var perItem float64
			var samples int
			for h := 0; h < HistoryDepth; h++ {
				if s.histMs[h][i] > 0 && s.histItems[h][i] > 0 {
					perItem += s.histMs[h][i] / float64(s.histItems[h][i])
					samples++
				}
			}
			if samples > 0 {
				items := s.ranges[i]
				if items <= 0 {
					items = alignment
				}
				t[i] = perItem / float64(samples) * float64(items)
			} else {
				t[i] = s.benchmarks[i]
			}
		}
	} else {
		copy(t, s.benchmarks)
	}

	// Throughput per device; a zero range gets a half-alignment epsilon so
	// a starved device can re-enter the partition.
	w := make([]float64, d)
	var sum float64
	for i := 0; i < d; i++ {
		items := float64(s.ranges[i])
		if items <= 0 {
			items = float64(alignment) / 2
		}
		ti := t[i]
		if ti <= 0 {
			ti = float64(benchmarkSeed.Microseconds()) / 1e3
		}
		w[i] = items / ti
		sum += w[i]
	}

	next := make([]int, d)
	frac := make([]float64, d)
	total := 0
	for i := 0; i < d; i++ {
		share := 1.0 / float64(d)
		if sum > 0 {
			share = w[i] / sum
		}
		raw := share * float64(globalRange)
		snapped := int(math.Floor(raw/float64(alignment))) * alignment
		next[i] = snapped
		frac[i] = raw - float64(snapped)
		total += snapped
	}

	for leftover := globalRange - total; leftover >= alignment; leftover -= alignment {
		best := 0
		for i := 1; i < d; i++ {
			if frac[i] > frac[best] {
				best = i
			}
		}
		next[best] += alignment
		frac[best] -= float64(alignment)
	}

	// Sub-alignment residue (globalRange itself not aligned) lands on
	// device 0, mirroring the equal-share initialization.
	residue := globalRange
	for _, r := range next {
		residue -= r
	}
	next[0] += residue

	copy(s.ranges, next)
}

// updateReferences recomputes the per-device starting offsets.
func (s *computeState) updateReferences(globalOffset int) {
	off := globalOffset
	for i, r := range s.ranges {
		s.references[i] = off
		off += r
	}
}

// recordBenchmark stores a freshly measured execution time (ms) for device d.
func (s *computeState) recordBenchmark(d int, ms float64) {
	s.benchmarks[d] = ms
}

// shiftHistory pushes the current benchmarks into the ring as the newest
// row.
func (s *computeState) shiftHistory() {
	lastMs := s.histMs[HistoryDepth-1]
	lastItems := s.histItems[HistoryDepth-1]
	for h := HistoryDepth - 1; h >= 1; h-- {
		s.histMs[h] = s.histMs[h-1]
		s.histItems[h] = s.histItems[h-1]
	}
	copy(lastMs, s.benchmarks)
	copy(lastItems, s.ranges)
	s.histMs[0] = lastMs
	s.histItems[0] = lastItems
}
