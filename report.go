package clcores

import (
	"fmt"
	"strings"

	"github.com/gomlx/clcores/cl"
)

// PerformanceReport renders a human-readable snapshot of one compute-id's
// balance: per-device share of the partition, last measured latency and the
// device memory policy ("gddr" for dedicated device memory, "stream" for
// pinned host memory).
func (c *Cores) PerformanceReport(computeID int) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[computeID]
	if !ok {
		return fmt.Sprintf("compute id %d: no calls dispatched yet", computeID)
	}

	total := 0
	for _, r := range st.ranges {
		total += r
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "compute id %d: %d workitems over %d device(s), %d call(s)\n",
		computeID, total, len(c.workers), st.calls)
	for d, w := range c.workers {
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(st.ranges[d]) / float64(total)
		}
		tag := "stream"
		if w.memPolicy == cl.MemStreaming {
			tag = "gddr"
		}
		fmt.Fprintf(&sb, "  #%d %-24s [%s]  %5.1f%%  %8d items  %8.2f ms\n",
			d, w.dev.Name(), tag, pct, st.ranges[d], st.benchmarks[d])
	}
	return sb.String()
}
