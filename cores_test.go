package clcores

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gomlx/clcores/cl"
	"github.com/gomlx/clcores/simcl"
	"github.com/stretchr/testify/require"
)

// testPlatform builds a simcl platform with one GPU-kind device per given
// cost, plus the builtin kernel registry extended with extras.
func testPlatform(extras map[string]simcl.KernelFunc, costs ...time.Duration) *simcl.Platform {
	kernels := simcl.BuiltinKernels()
	for name, fn := range extras {
		kernels[name] = fn
	}
	var cfgs []simcl.DeviceConfig
	for i, cost := range costs {
		cfgs = append(cfgs, simcl.DeviceConfig{
			Name:        fmt.Sprintf("sim-gpu-%d", i),
			Kind:        cl.GPU,
			Policy:      cl.MemStreaming,
			CostPerItem: cost,
		})
	}
	return simcl.NewPlatform(kernels, cfgs...)
}

func testCores(t *testing.T, platform *simcl.Platform, kernelNames ...string) *Cores {
	t.Helper()
	cores, err := New(platform).
		WithSource("// kernels resolved against the simcl registry").
		WithKernelNames(kernelNames...).
		Done()
	require.NoError(t, err)
	t.Cleanup(cores.Dispose)
	return cores
}

func iotaFloats(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

// Single device, identity-copy kernel, event pipeline: output equals input,
// the whole range stays on the only device and a benchmark lands.
func TestSingleDeviceEventPipeline(t *testing.T) {
	cores := testCores(t, testPlatform(nil, 0), "copy")

	input := iotaFloats(4096)
	output := make([]float32, 4096)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	require.NoError(t, cores.Compute("copy").
		Arrays(in, out).
		Access(ReadPartial, WriteSlice).
		GlobalRange(4096).
		LocalRange(64).
		ComputeID(1).
		Pipeline(PipelineEvent, 8).
		Done())

	require.Equal(t, input, output)
	require.Equal(t, []int{4096}, cores.Ranges(1))
	bms := cores.Benchmarks(1)
	require.Len(t, bms, 1)
	require.GreaterOrEqual(t, bms[0], 0.0)
}

// Two devices with a 3:1 capacity ratio settle on a 3:1 partition after a
// few smoothed iterations.
func TestTwoDeviceConvergence(t *testing.T) {
	cores := testCores(t, testPlatform(nil, 5*time.Microsecond, 15*time.Microsecond), "copy")

	input := iotaFloats(4096)
	output := make([]float32, 4096)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, cores.Compute("copy").
			Arrays(in, out).
			Access(ReadPartial, WriteSlice).
			GlobalRange(4096).
			LocalRange(64).
			ComputeID(7).
			Pipeline(PipelineEvent, 8).
			Done())
		require.Equal(t, input, output)
	}

	ranges := cores.Ranges(7)
	require.InDelta(t, 3072, float64(ranges[0]), 64, "fast device share, report:\n%s", cores.PerformanceReport(7))
	require.InDelta(t, 1024, float64(ranges[1]), 64, "slow device share")
	require.Equal(t, 4096, ranges[0]+ranges[1])
}

// Three kernels with repeats and a sync kernel: pipelining is off, the chain
// runs twice per device with the sync kernel after each iteration under
// compute-id -1.
func TestKernelChainRepeatsWithSyncKernel(t *testing.T) {
	var syncRuns atomic.Int64
	extras := map[string]simcl.KernelFunc{
		"acc": func(args simcl.Args, gid int) {
			in, out := simcl.Float32s(args[0]), simcl.Float32s(args[1])
			out[gid] += in[gid]
		},
		"inc": func(args simcl.Args, gid int) {
			out := simcl.Float32s(args[1])
			out[gid]++
		},
		"syncmark": func(args simcl.Args, gid int) {
			if gid == 0 {
				syncRuns.Add(1)
			}
		},
	}
	cores := testCores(t, testPlatform(extras, 0, 0), "acc", "inc", "syncmark")

	input := iotaFloats(8192)
	output := make([]float32, 8192)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	require.NoError(t, cores.Compute("acc", "inc", "inc").
		Arrays(in, out).
		Access(ReadPartial, WriteSlice).
		GlobalRange(8192).
		LocalRange(64).
		ComputeID(3).
		Repeats(2).
		SyncKernel("syncmark").
		Pipeline(PipelineEvent, 8). // ignored: repeats disable pipelining
		Done())

	// Two iterations of (out += in; out++; out++): out = 2*in + 4.
	for i, v := range output {
		require.Equalf(t, 2*input[i]+4, v, "workitem %d", i)
	}
	require.Equal(t, int64(4), syncRuns.Load(), "sync kernel runs once per iteration per device")
	require.Nil(t, cores.Benchmarks(-1), "the sync compute-id is excluded from balancing state")
}

// Global range below stages×localRange (100 < 4×64): the feasibility check
// rejects the pipeline and the simple path still computes the right answer.
func TestSmallRangeFallsBackToSimplePath(t *testing.T) {
	cores := testCores(t, testPlatform(nil, 0), "copy")

	input := iotaFloats(100)
	output := make([]float32, 100)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	require.NoError(t, cores.Compute("copy").
		Arrays(in, out).
		Access(ReadPartial, WriteSlice).
		GlobalRange(100).
		LocalRange(64).
		ComputeID(9).
		Pipeline(PipelineEvent, 4).
		Done())

	require.Equal(t, input, output)
	require.Equal(t, []int{100}, cores.Ranges(9))
}

// WriteAll with more than one participating device is rejected before any
// dispatch.
func TestWriteAllRequiresSingleDevice(t *testing.T) {
	cores := testCores(t, testPlatform(nil, 0, 0), "copy")

	input := iotaFloats(4096)
	output := make([]float32, 4096)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	err = cores.Compute("copy").
		Arrays(in, out).
		Access(ReadAll, WriteAll).
		GlobalRange(4096).
		LocalRange(64).
		ComputeID(2).
		Done()
	require.Error(t, err)
	require.Greater(t, cores.ErrorCode(), 0)
	require.Contains(t, cores.ErrorMessage(), "WriteAll")
}

// WriteAll on a single device transfers the whole array back.
func TestWriteAllSingleDevice(t *testing.T) {
	cores := testCores(t, testPlatform(nil, 0), "copy")

	input := iotaFloats(1024)
	output := make([]float32, 1024)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	require.NoError(t, cores.Compute("copy").
		Arrays(in, out).
		Access(ReadAll, WriteAll).
		GlobalRange(1024).
		LocalRange(64).
		ComputeID(2).
		Done())
	require.Equal(t, input, output)
}

// A kernel name missing from the program renders the dispatcher inert:
// construction reports, and every later compute call returns at the error
// gate without dispatching.
func TestUnknownKernelMakesDispatcherInert(t *testing.T) {
	platform := testPlatform(nil, 0)
	cores, err := New(platform).
		WithSource("//").
		WithKernelNames("copy", "no_such_kernel").
		Done()
	require.Error(t, err)
	require.Greater(t, cores.ErrorCode(), 0)
	require.Contains(t, cores.ErrorMessage(), "no_such_kernel")

	input := iotaFloats(64)
	in, err2 := NewArray(input)
	require.NoError(t, err2)
	err = cores.Compute("copy").
		Arrays(in).
		Access(ReadPartial).
		GlobalRange(64).
		LocalRange(64).
		Done()
	require.Error(t, err)
	require.Equal(t, int64(0), platform.Device(0).Stats().Launches, "inert dispatcher must not launch")
}

// Discovery filters: no matching device renders the dispatcher inert.
func TestNoDeviceIsInert(t *testing.T) {
	platform := testPlatform(nil, 0) // GPU only
	cores, err := New(platform).
		WithKinds(cl.Accelerator).
		WithSource("//").
		WithKernelNames("copy").
		Done()
	require.Error(t, err)
	require.Equal(t, 0, cores.NumberOfDevices())
	require.Greater(t, cores.ErrorCode(), 0)
}

// The affinity refresh fires on call indices 1, 256, 511, ... and nowhere
// else.
func TestAffinityRefreshPeriod(t *testing.T) {
	cores := testCores(t, testPlatform(nil, 0), "copy")
	var refreshes atomic.Int64
	cores.affinityHook = func() { refreshes.Add(1) }

	input := iotaFloats(64)
	output := make([]float32, 64)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		require.NoError(t, cores.Compute("copy").
			Arrays(in, out).
			Access(ReadPartial, WriteSlice).
			GlobalRange(64).
			LocalRange(64).
			ComputeID(1).
			Done())
	}
	require.Equal(t, int64(2), refreshes.Load(), "calls 1 and 256 refresh the mask")
}

func TestPerformanceReport(t *testing.T) {
	cores := testCores(t, testPlatform(nil, 0, 0), "copy")

	input := iotaFloats(4096)
	output := make([]float32, 4096)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	require.NoError(t, cores.Compute("copy").
		Arrays(in, out).
		Access(ReadPartial, WriteSlice).
		GlobalRange(4096).
		LocalRange(64).
		ComputeID(5).
		Done())

	report := cores.PerformanceReport(5)
	require.Contains(t, report, "compute id 5")
	require.Contains(t, report, "sim-gpu-0")
	require.Contains(t, report, "[gddr]")

	history := cores.PerformanceHistory(5)
	require.Len(t, history, HistoryDepth)
	require.Len(t, history[0], 2)

	require.Equal(t, []string{"sim-gpu-0", "sim-gpu-1"}, cores.DeviceNames())
	require.Equal(t, 2, cores.NumberOfDevices())
}

// Global offset shifts the index space: only [offset, offset+range) is
// touched.
func TestGlobalOffset(t *testing.T) {
	cores := testCores(t, testPlatform(nil, 0), "copy")

	input := iotaFloats(4096)
	output := make([]float32, 4096)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	require.NoError(t, cores.Compute("copy").
		Arrays(in, out).
		Access(ReadPartial, WriteSlice).
		GlobalRange(1024).
		GlobalOffset(2048).
		LocalRange(64).
		ComputeID(6).
		Done())

	for i := 0; i < 4096; i++ {
		if i >= 2048 && i < 3072 {
			require.Equal(t, input[i], output[i])
		} else {
			require.Zerof(t, output[i], "workitem %d outside the offset window must stay untouched", i)
		}
	}
}
