// Package simcl is a host-only implementation of the cl runtime surface.
//
// It executes kernels as plain Go functions over the buffer bytes, one
// goroutine per command queue, honoring enqueue order and event wait-lists
// exactly as an in-order OpenCL driver would. A per-device cost knob models
// relative device capacity, which makes load-balancing behavior reproducible
// without hardware.
//
// simcl is what the clcores tests and the clcores-bench command run on; it is
// not a performance tool.
package simcl

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomlx/clcores/cl"
	"github.com/pkg/errors"
)

// KernelFunc is the host-side body of a kernel: it is called once per
// workitem with the bound argument buffers and the global workitem id.
type KernelFunc func(args Args, gid int)

// Args are the raw bytes of the buffers bound to the kernel, in argument
// order. Use the typed view helpers (Float32s, Int32s, ...) to index them.
type Args [][]byte

// DeviceConfig describes one simulated device.
type DeviceConfig struct {
	Name   string
	Kind   cl.DeviceKind
	Policy cl.MemPolicy

	// CostPerItem is the simulated execution time per workitem. Zero means
	// the device computes instantly (timing-sensitive tests aside, that is
	// usually what unit tests want).
	CostPerItem time.Duration

	// Logical is the logical-processor count reported for CPU devices.
	// Defaults to 1.
	Logical int
}

// Stats counts the commands a device has executed or accepted.
type Stats struct {
	Writes     int64 // host→device transfers
	Reads      int64 // device→host transfers
	Launches   int64 // kernel launches
	SetArgs    int64 // argument bindings
	Markers    int64 // markers enqueued
	SyncPoints int64 // Finish calls
}

// Platform implements cl.Runtime over a fixed set of simulated devices and a
// registry of named kernels.
type Platform struct {
	kernels map[string]KernelFunc
	devices []*Device
}

// NewPlatform creates a Platform with the given kernel registry and devices.
// Kernel sources handed to Context.CompileProgram are ignored; kernel names
// resolve against the registry, and unknown names fail compilation.
func NewPlatform(kernels map[string]KernelFunc, configs ...DeviceConfig) *Platform {
	p := &Platform{kernels: kernels}
	for _, cfg := range configs {
		if cfg.Logical <= 0 {
			cfg.Logical = 1
		}
		p.devices = append(p.devices, &Device{platform: p, cfg: cfg})
	}
	return p
}

// Device returns the i-th simulated device, exposing its Stats beyond the
// cl.Device surface.
func (p *Platform) Device(i int) *Device { return p.devices[i] }

// Devices implements cl.Runtime.
func (p *Platform) Devices() ([]cl.Device, error) {
	if len(p.devices) == 0 {
		return nil, errors.New("simcl platform has no devices configured")
	}
	out := make([]cl.Device, len(p.devices))
	for i, d := range p.devices {
		out[i] = d
	}
	return out, nil
}

// Device implements cl.Device and cl.CoreLimited.
type Device struct {
	platform  *Platform
	cfg       DeviceConfig
	coreLimit atomic.Int64

	writes, reads, launches, setArgs, markers, syncs atomic.Int64
}

func (d *Device) Name() string               { return d.cfg.Name }
func (d *Device) Kind() cl.DeviceKind        { return d.cfg.Kind }
func (d *Device) MemoryPolicy() cl.MemPolicy { return d.cfg.Policy }
func (d *Device) LogicalProcessors() int     { return d.cfg.Logical }
func (d *Device) SetCoreLimit(n int)         { d.coreLimit.Store(int64(n)) }

// CoreLimit returns the last value set through cl.CoreLimited, 0 if unset.
func (d *Device) CoreLimit() int { return int(d.coreLimit.Load()) }

// Stats returns a snapshot of the device's command counters.
func (d *Device) Stats() Stats {
	return Stats{
		Writes:     d.writes.Load(),
		Reads:      d.reads.Load(),
		Launches:   d.launches.Load(),
		SetArgs:    d.setArgs.Load(),
		Markers:    d.markers.Load(),
		SyncPoints: d.syncs.Load(),
	}
}

// NewContext implements cl.Device.
func (d *Device) NewContext() (cl.Context, error) {
	return &context{device: d}, nil
}

type context struct {
	device *Device
}

func (c *context) NewQueue() (cl.Queue, error) {
	q := &queue{ctx: c}
	q.cond = sync.NewCond(&q.mu)
	go q.loop()
	return q, nil
}

func (c *context) CompileProgram(source string, kernelNames []string) (cl.Program, error) {
	_ = source // the registry is the compiled form
	prog := &program{ctx: c, kernels: make(map[string]KernelFunc, len(kernelNames))}
	for _, name := range kernelNames {
		fn, ok := c.device.platform.kernels[name]
		if !ok {
			return nil, errors.Errorf("kernel %q is not defined in the simcl registry (device %s)", name, c.device.Name())
		}
		prog.kernels[name] = fn
	}
	return prog, nil
}

func (c *context) NewBuffer(policy cl.MemPolicy, sizeBytes int) (cl.Buffer, error) {
	if sizeBytes <= 0 {
		return nil, errors.Errorf("invalid buffer size %d", sizeBytes)
	}
	return &buffer{policy: policy, data: make([]byte, sizeBytes)}, nil
}

func (c *context) Release() error { return nil }

type program struct {
	ctx     *context
	kernels map[string]KernelFunc
}

func (p *program) Kernel(name string) (cl.Kernel, error) {
	fn, ok := p.kernels[name]
	if !ok {
		return nil, errors.Errorf("kernel %q not found in program", name)
	}
	return &kernel{prog: p, name: name, fn: fn}, nil
}

func (p *program) Release() error { return nil }

type kernel struct {
	prog *program
	name string
	fn   KernelFunc

	mu   sync.Mutex
	args []*buffer
}

func (k *kernel) SetArg(idx int, buf cl.Buffer) error {
	b, ok := buf.(*buffer)
	if !ok {
		return errors.Errorf("kernel %q: SetArg(%d) given a buffer not allocated by simcl", k.name, idx)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for len(k.args) <= idx {
		k.args = append(k.args, nil)
	}
	k.args[idx] = b
	k.prog.ctx.device.setArgs.Add(1)
	return nil
}

func (k *kernel) Release() error { return nil }

// snapshotArgs copies the current bindings so a later SetArg does not race
// with an in-flight launch.
func (k *kernel) snapshotArgs() (Args, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	args := make(Args, len(k.args))
	for i, b := range k.args {
		if b == nil {
			return nil, errors.Errorf("kernel %q: argument %d never bound", k.name, i)
		}
		args[i] = b.data
	}
	return args, nil
}

type buffer struct {
	policy   cl.MemPolicy
	data     []byte
	released atomic.Bool
}

func (b *buffer) Size() int { return len(b.data) }

func (b *buffer) Release() error {
	b.released.Store(true)
	return nil
}

type event struct {
	done chan struct{}
	err  error
}

func newEvent() *event { return &event{done: make(chan struct{})} }

func (e *event) Wait() error {
	<-e.done
	return e.err
}

func (e *event) Release() {}

func (e *event) complete(err error) {
	e.err = err
	close(e.done)
}

type command struct {
	wait []cl.Event
	run  func() error
	ev   *event
}

// queue executes commands strictly in enqueue order on its own goroutine,
// waiting for each command's wait-list first.
type queue struct {
	ctx    *context
	mu     sync.Mutex
	cond   *sync.Cond
	cmds   []command
	closed bool
}

func (q *queue) loop() {
	for {
		q.mu.Lock()
		for len(q.cmds) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed && len(q.cmds) == 0 {
			q.mu.Unlock()
			return
		}
		cmd := q.cmds[0]
		q.cmds = q.cmds[1:]
		q.mu.Unlock()

		var err error
		for _, w := range cmd.wait {
			if werr := w.Wait(); werr != nil && err == nil {
				err = errors.WithMessage(werr, "wait-list event failed")
			}
		}
		if err == nil && cmd.run != nil {
			err = cmd.run()
		}
		cmd.ev.complete(err)
	}
}

func (q *queue) enqueue(wait []cl.Event, run func() error) (cl.Event, error) {
	ev := newEvent()
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, errors.New("enqueue on a released queue")
	}
	q.cmds = append(q.cmds, command{wait: wait, run: run, ev: ev})
	q.mu.Unlock()
	q.cond.Signal()
	return ev, nil
}

func (q *queue) EnqueueWrite(buf cl.Buffer, offsetBytes int, src []byte, wait []cl.Event) (cl.Event, error) {
	b, err := q.checkBuffer(buf, offsetBytes, len(src))
	if err != nil {
		return nil, errors.WithMessage(err, "EnqueueWrite")
	}
	q.ctx.device.writes.Add(1)
	return q.enqueue(wait, func() error {
		copy(b.data[offsetBytes:offsetBytes+len(src)], src)
		return nil
	})
}

func (q *queue) EnqueueRead(buf cl.Buffer, offsetBytes int, dst []byte, wait []cl.Event) (cl.Event, error) {
	b, err := q.checkBuffer(buf, offsetBytes, len(dst))
	if err != nil {
		return nil, errors.WithMessage(err, "EnqueueRead")
	}
	q.ctx.device.reads.Add(1)
	return q.enqueue(wait, func() error {
		copy(dst, b.data[offsetBytes:offsetBytes+len(dst)])
		return nil
	})
}

func (q *queue) EnqueueKernel(k cl.Kernel, globalOffset, globalSize, localSize int, wait []cl.Event) (cl.Event, error) {
	sk, ok := k.(*kernel)
	if !ok {
		return nil, errors.New("EnqueueKernel given a kernel not created by simcl")
	}
	if globalSize <= 0 {
		return nil, errors.Errorf("EnqueueKernel: invalid global size %d", globalSize)
	}
	if localSize > 0 && globalSize%localSize != 0 {
		return nil, errors.Errorf("EnqueueKernel: global size %d not a multiple of local size %d", globalSize, localSize)
	}
	q.ctx.device.launches.Add(1)
	cost := q.ctx.device.cfg.CostPerItem
	return q.enqueue(wait, func() error {
		args, err := sk.snapshotArgs()
		if err != nil {
			return err
		}
		if cost > 0 {
			time.Sleep(cost * time.Duration(globalSize))
		}
		for gid := globalOffset; gid < globalOffset+globalSize; gid++ {
			sk.fn(args, gid)
		}
		return nil
	})
}

func (q *queue) EnqueueMarker(cb func()) (cl.Event, error) {
	q.ctx.device.markers.Add(1)
	return q.enqueue(nil, func() error {
		if cb != nil {
			cb()
		}
		return nil
	})
}

func (q *queue) Flush() error { return nil }

func (q *queue) Finish() error {
	ev, err := q.enqueue(nil, nil)
	if err != nil {
		return err
	}
	q.ctx.device.syncs.Add(1)
	return ev.Wait()
}

func (q *queue) Release() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Signal()
	return nil
}

func (q *queue) checkBuffer(buf cl.Buffer, offsetBytes, n int) (*buffer, error) {
	b, ok := buf.(*buffer)
	if !ok {
		return nil, errors.New("buffer not allocated by simcl")
	}
	if b.released.Load() {
		return nil, errors.New("buffer already released")
	}
	if offsetBytes < 0 || offsetBytes+n > len(b.data) {
		return nil, errors.Errorf("transfer [%d, %d) out of range of buffer size %d", offsetBytes, offsetBytes+n, len(b.data))
	}
	return b, nil
}

var (
	_ cl.Runtime     = (*Platform)(nil)
	_ cl.Device      = (*Device)(nil)
	_ cl.CoreLimited = (*Device)(nil)
	_ cl.Queue       = (*queue)(nil)
)
