package simcl

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomlx/clcores/cl"
	"github.com/stretchr/testify/require"
)

func testDevice(t *testing.T) (*Platform, cl.Context) {
	t.Helper()
	p := NewPlatform(BuiltinKernels(), DeviceConfig{Name: "sim", Kind: cl.CPU, Policy: cl.MemPinned})
	devs, err := p.Devices()
	require.NoError(t, err)
	require.Len(t, devs, 1)
	ctx, err := devs[0].NewContext()
	require.NoError(t, err)
	return p, ctx
}

func TestQueueOrderAndTransfers(t *testing.T) {
	_, ctx := testDevice(t)
	q, err := ctx.NewQueue()
	require.NoError(t, err)

	buf, err := ctx.NewBuffer(cl.MemPinned, 16)
	require.NoError(t, err)

	src := []byte{1, 2, 3, 4}
	dst := make([]byte, 4)
	_, err = q.EnqueueWrite(buf, 4, src, nil)
	require.NoError(t, err)
	ev, err := q.EnqueueRead(buf, 4, dst, nil)
	require.NoError(t, err)
	require.NoError(t, ev.Wait())
	require.Equal(t, src, dst)
}

func TestKernelLaunchAndWaitList(t *testing.T) {
	p, ctx := testDevice(t)
	q1, err := ctx.NewQueue()
	require.NoError(t, err)
	q2, err := ctx.NewQueue()
	require.NoError(t, err)

	prog, err := ctx.CompileProgram("//", []string{"scale"})
	require.NoError(t, err)
	k, err := prog.Kernel("scale")
	require.NoError(t, err)

	n := 128
	in, err := ctx.NewBuffer(cl.MemPinned, n*4)
	require.NoError(t, err)
	out, err := ctx.NewBuffer(cl.MemPinned, n*4)
	require.NoError(t, err)
	require.NoError(t, k.SetArg(0, in))
	require.NoError(t, k.SetArg(1, out))

	host := make([]float32, n)
	for i := range host {
		host[i] = float32(i)
	}
	raw := make([]byte, n*4)
	copy(Float32s(raw), host)

	// Write on q1; the kernel on q2 must wait on the cross-queue event.
	wev, err := q1.EnqueueWrite(in, 0, raw, nil)
	require.NoError(t, err)
	kev, err := q2.EnqueueKernel(k, 0, n, 64, []cl.Event{wev})
	require.NoError(t, err)

	got := make([]byte, n*4)
	rev, err := q2.EnqueueRead(out, 0, got, []cl.Event{kev})
	require.NoError(t, err)
	require.NoError(t, rev.Wait())
	for i, v := range Float32s(got) {
		require.Equalf(t, 2*host[i], v, "item %d", i)
	}

	stats := p.Device(0).Stats()
	require.Equal(t, int64(1), stats.Launches)
	require.Equal(t, int64(2), stats.SetArgs)
}

func TestMarkerCallbackRunsAfterPriorCommands(t *testing.T) {
	_, ctx := testDevice(t)
	q, err := ctx.NewQueue()
	require.NoError(t, err)

	buf, err := ctx.NewBuffer(cl.MemPinned, 8)
	require.NoError(t, err)

	var wrote atomic.Bool
	var sawWrite atomic.Bool
	slow := func() {
		time.Sleep(5 * time.Millisecond)
		wrote.Store(true)
	}
	_, err = q.EnqueueMarker(slow)
	require.NoError(t, err)
	_, err = q.EnqueueMarker(func() { sawWrite.Store(wrote.Load()) })
	require.NoError(t, err)
	_, err = q.EnqueueWrite(buf, 0, []byte{1}, nil)
	require.NoError(t, err)
	require.NoError(t, q.Finish())
	require.True(t, sawWrite.Load(), "markers complete in enqueue order")
}

func TestCompileUnknownKernelFails(t *testing.T) {
	_, ctx := testDevice(t)
	_, err := ctx.CompileProgram("//", []string{"copy", "missing"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
}

func TestTransferOutOfRange(t *testing.T) {
	_, ctx := testDevice(t)
	q, err := ctx.NewQueue()
	require.NoError(t, err)
	buf, err := ctx.NewBuffer(cl.MemPinned, 8)
	require.NoError(t, err)
	_, err = q.EnqueueWrite(buf, 6, []byte{1, 2, 3, 4}, nil)
	require.Error(t, err)
}

func TestKernelLocalSizeValidation(t *testing.T) {
	_, ctx := testDevice(t)
	q, err := ctx.NewQueue()
	require.NoError(t, err)
	prog, err := ctx.CompileProgram("//", []string{"barrier"})
	require.NoError(t, err)
	k, err := prog.Kernel("barrier")
	require.NoError(t, err)

	_, err = q.EnqueueKernel(k, 0, 100, 64, nil)
	require.Error(t, err, "global size must divide into workgroups")

	ev, err := q.EnqueueKernel(k, 0, 100, 0, nil)
	require.NoError(t, err, "driver-chosen workgroup size accepts any global size")
	require.NoError(t, ev.Wait())
}

func TestCoreLimit(t *testing.T) {
	p := NewPlatform(nil, DeviceConfig{Name: "cpu", Kind: cl.CPU, Logical: 8})
	devs, err := p.Devices()
	require.NoError(t, err)
	lim, ok := devs[0].(cl.CoreLimited)
	require.True(t, ok)
	lim.SetCoreLimit(5)
	require.Equal(t, 5, p.Device(0).CoreLimit())
}
