// Package clcores distributes a compute job -- a set of kernels over a shared
// set of host arrays and a one-dimensional index space -- across several
// compute devices (CPUs, GPUs, accelerators) of an OpenCL 1.2-class runtime.
//
// The runtime itself is abstracted behind the interfaces of the cl
// sub-package: clcores never enumerates hardware or compiles kernel source on
// its own, it orchestrates. What it adds on top of a raw runtime:
//
//   - A load balancer that iteratively re-partitions the global index range
//     across devices from measured per-call execution times, with optional
//     smoothing over a short history window.
//   - A per-device pipeline engine that splits a device's sub-range into
//     segments and overlaps host→device transfers, kernel execution and
//     device→host transfers, either through an explicit event DAG
//     (PipelineEvent) or by fanning segments out over many in-order queues
//     and trusting the driver to overlap them (PipelineDriver).
//   - An enqueue mode that batches many compute calls without host
//     synchronization, draining on exit.
//
// Construction goes through New followed by chained options and Done; compute
// calls go through Cores.Compute, also a chained configuration ending in
// Done. See the package tests and cmd/clcores-bench for complete examples.
package clcores

import "time"

const (
	// DefaultLocalRange is the workgroup size used when a compute call does
	// not set one.
	DefaultLocalRange = 256

	// HistoryDepth is the number of most recent benchmarks kept per device
	// for smoothed balancing.
	HistoryDepth = 10

	// MaxQueues is the number of auxiliary command queues created per device
	// (on top of the primary queue) when pipelining is enabled.
	MaxQueues = 16

	// AffinityRefreshPeriod is how many compute calls pass between refreshes
	// of the process affinity mask.
	AffinityRefreshPeriod = 255

	// MinPipelineStages is the smallest accepted pipeline depth. Stage
	// counts must also be a multiple of MinPipelineStages.
	MinPipelineStages = 4

	// benchmarkSeed is the latency assumed for every device before the
	// first measurement.
	benchmarkSeed = 10 * time.Millisecond
)

// PipelineType selects the scheduling discipline of the per-device pipeline.
type PipelineType int

//go:generate go tool enumer -type=PipelineType clcores.go

const (
	// PipelineEvent overlaps transfers and compute through an explicit
	// event DAG over three queue pairs.
	PipelineEvent PipelineType = iota

	// PipelineDriver places each segment on its own in-order queue and
	// relies on the driver to overlap independent queues.
	PipelineDriver
)

// Access is the per-array transfer policy of one compute call.
type Access int

//go:generate go tool enumer -type=Access clcores.go

const (
	// ReadPartial transfers only each device's slice to the device before
	// compute.
	ReadPartial Access = iota

	// ReadAll transfers the entire host array to every participating
	// device before compute.
	ReadAll

	// WriteSlice transfers each device's slice back to the host after
	// compute.
	WriteSlice

	// WriteAll transfers the entire array back from a single device,
	// unchecked. Rejected when more than one device participates.
	WriteAll
)

// isRead reports whether the policy implies a host→device transfer.
func (a Access) isRead() bool { return a == ReadPartial || a == ReadAll }

// isWrite reports whether the policy implies a device→host transfer.
func (a Access) isWrite() bool { return a == WriteSlice || a == WriteAll }
