//go:build linux

package clcores

import (
	"runtime"

	"golang.org/x/sys/unix"
	"k8s.io/klog/v2"
)

// refreshProcessAffinity resets the process affinity mask to every available
// logical processor. Long-running jobs inherit shrunken masks from container
// managers and noisy neighbors; re-widening it periodically keeps the CPU
// devices from running on a fraction of the machine.
func refreshProcessAffinity() {
	var mask unix.CPUSet
	for i := 0; i < runtime.NumCPU(); i++ {
		mask.Set(i)
	}
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		klog.Warningf("failed to refresh process affinity mask: %v", err)
	}
}
