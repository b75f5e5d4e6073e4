// Package cl defines the surface that clcores requires from a vendor-neutral
// GPGPU runtime (an OpenCL 1.2-class driver).
//
// The orchestrator in the parent package never talks to a driver directly:
// device discovery, kernel compilation and buffer allocation are the
// runtime's business, and everything it must provide is captured by the
// interfaces here. A real backend wraps the vendor API; the simcl package
// provides a host-only implementation used by tests and benchmarks.
//
// Semantics expected from implementations:
//
//   - All Enqueue* calls are non-blocking: they register the command on the
//     queue and return an Event that completes when the command (and its
//     wait-list) has executed.
//   - Within one Queue, commands execute in enqueue order. Across queues of
//     the same Context there is no ordering beyond what Event wait-lists
//     impose.
//   - Queue.Finish blocks until every command enqueued so far has completed,
//     including marker callbacks.
package cl

// Runtime is the entry point of a backend: it enumerates the compute devices
// the driver can see. Discovery details (platforms, vendor extensions) stay
// behind this call.
type Runtime interface {
	// Devices returns every device the runtime exposes, in a stable order.
	Devices() ([]Device, error)
}

// Device is one compute device (a CPU, a GPU or an accelerator card).
// Implementations own the handle; Device values are cheap references.
type Device interface {
	// Name returns a human-readable device name, used in reports.
	Name() string

	// Kind classifies the device.
	Kind() DeviceKind

	// MemoryPolicy returns the host-memory policy the device prefers:
	// MemPinned for zero-copy devices (CPUs, integrated GPUs), MemStreaming
	// for discrete devices with dedicated memory.
	MemoryPolicy() MemPolicy

	// LogicalProcessors returns the number of logical processors backing the
	// device. Only meaningful for CPU devices; others may return 0.
	LogicalProcessors() int

	// NewContext creates an execution context on the device.
	NewContext() (Context, error)
}

// CoreLimited is an optional capability of CPU devices: limiting how many
// logical processors the device may use. Backends that cannot limit cores
// simply don't implement it.
type CoreLimited interface {
	SetCoreLimit(n int)
}

// Context owns the queues, programs and buffers created on one device.
type Context interface {
	// NewQueue creates an in-order command queue on the context.
	NewQueue() (Queue, error)

	// CompileProgram builds the given kernel source (C99 dialect) and checks
	// that every name in kernelNames resolves to a kernel entry point.
	CompileProgram(source string, kernelNames []string) (Program, error)

	// NewBuffer allocates a device buffer of sizeBytes under the given
	// host-memory policy.
	NewBuffer(policy MemPolicy, sizeBytes int) (Buffer, error)

	// Release frees the context. Queues, programs and buffers created from
	// it must be released first.
	Release() error
}

// Program is a compiled kernel module.
type Program interface {
	// Kernel returns a fresh kernel instance for the named entry point.
	// Each instance carries its own argument bindings.
	Kernel(name string) (Kernel, error)

	Release() error
}

// Kernel is one entry point of a Program with its argument bindings.
type Kernel interface {
	// SetArg binds the buffer as argument idx. Bindings persist across
	// enqueues until overwritten.
	SetArg(idx int, buf Buffer) error

	Release() error
}

// Queue is an in-order command queue.
type Queue interface {
	// EnqueueWrite copies src (host) into buf at [offsetBytes,
	// offsetBytes+len(src)) after every event in wait has completed.
	EnqueueWrite(buf Buffer, offsetBytes int, src []byte, wait []Event) (Event, error)

	// EnqueueRead copies buf[offsetBytes, offsetBytes+len(dst)) into dst
	// (host) after every event in wait has completed.
	EnqueueRead(buf Buffer, offsetBytes int, dst []byte, wait []Event) (Event, error)

	// EnqueueKernel launches k over the 1-D index space
	// [globalOffset, globalOffset+globalSize) with workgroups of localSize.
	// A localSize of 0 (or negative) lets the driver pick the workgroup
	// size; otherwise globalSize must be a multiple of localSize.
	EnqueueKernel(k Kernel, globalOffset, globalSize, localSize int, wait []Event) (Event, error)

	// EnqueueMarker inserts a zero-work command; cb (if non-nil) runs when
	// every command enqueued before the marker has completed.
	EnqueueMarker(cb func()) (Event, error)

	// Flush hints the driver to start submitted work. It never blocks.
	Flush() error

	// Finish blocks until all enqueued commands have completed.
	Finish() error

	Release() error
}

// Event signals completion of one enqueued command.
type Event interface {
	// Wait blocks until the command has completed and returns its error,
	// if any.
	Wait() error

	// Release frees the event. Waiting on a released event is invalid.
	Release()
}

// Buffer is a device-side allocation.
type Buffer interface {
	// Size returns the allocation size in bytes.
	Size() int

	Release() error
}
