package clcores

import (
	"testing"
	"time"

	"github.com/gomlx/clcores/simcl"
	"github.com/stretchr/testify/require"
)

// Event discipline issue counts: with one read-partial input and one
// write-slice output, a pipelined pass issues exactly stages reads, stages
// launches and stages writes per device.
func TestEventPipelineIssueCounts(t *testing.T) {
	platform := testPlatform(nil, 0)
	cores := testCores(t, platform, "copy")

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

	stats := platform.Device(0).Stats()
	require.Equal(t, int64(8), stats.Writes, "one host→device transfer per segment")
	require.Equal(t, int64(8), stats.Launches, "one launch per segment")
	require.Equal(t, int64(8), stats.Reads, "one device→host transfer per segment")
	require.Equal(t, input, output)
}

// Driver discipline, 16 segments over 16 queues: same totals, correct
// output.
func TestDriverPipeline(t *testing.T) {
	platform := testPlatform(nil, time.Microsecond)
	cores := testCores(t, platform, "copy")

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
		Pipeline(PipelineDriver, 16).
		Done())

	stats := platform.Device(0).Stats()
	require.Equal(t, int64(16), stats.Writes)
	require.Equal(t, int64(16), stats.Launches)
	require.Equal(t, int64(16), stats.Reads)
	require.Equal(t, input, output)
}

// Driver discipline with a stage count that is not a multiple of 4 aborts
// before any issue and leaves the host arrays untouched.
func TestDriverPipelineBadStagesAborts(t *testing.T) {
	platform := testPlatform(nil, 0)
	cores := testCores(t, platform, "copy")

	input := iotaFloats(4096)
	output := make([]float32, 4096)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	err = cores.Compute("copy").
		Arrays(in, out).
		Access(ReadPartial, WriteSlice).
		GlobalRange(4096).
		LocalRange(64).
		ComputeID(1).
		Pipeline(PipelineDriver, 6).
		Done()
	require.Error(t, err)
	require.Greater(t, cores.ErrorCode(), 0)
	require.Equal(t, int64(0), platform.Device(0).Stats().Launches)
	for i, v := range output {
		require.Zerof(t, v, "host array corrupted at %d", i)
	}
}

// The same bad stage count under the event discipline only demotes the call
// to the simple path.
func TestEventPipelineBadStagesFallsBack(t *testing.T) {
	platform := testPlatform(nil, 0)
	cores := testCores(t, platform, "copy")

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
		Pipeline(PipelineEvent, 6).
		Done())
	require.Equal(t, input, output)
	require.Equal(t, int64(1), platform.Device(0).Stats().Launches, "simple path launches once")
}

// Two-kernel split: pipelined read+k₀, then k₁+write, with the intermediate
// staying device-resident.
func TestEventPipelineTwoKernels(t *testing.T) {
	extras := map[string]simcl.KernelFunc{
		// stage1 reads in, writes tmp; stage2 reads tmp, writes out.
		"stage1": func(args simcl.Args, gid int) {
			in, tmp := simcl.Float32s(args[0]), simcl.Float32s(args[1])
			tmp[gid] = in[gid] + 1
		},
		"stage2": func(args simcl.Args, gid int) {
			tmp, out := simcl.Float32s(args[1]), simcl.Float32s(args[2])
			out[gid] = tmp[gid] * 2
		},
	}
	platform := testPlatform(extras, 0)
	cores := testCores(t, platform, "stage1", "stage2")

	input := iotaFloats(4096)
	scratch := make([]float32, 4096)
	output := make([]float32, 4096)
	in, err := NewArray(input)
	require.NoError(t, err)
	tmp, err := NewArray(scratch)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	require.NoError(t, cores.Compute("stage1", "stage2").
		Arrays(in, tmp, out).
		Access(ReadPartial, ReadPartial, WriteSlice).
		GlobalRange(4096).
		LocalRange(64).
		ComputeID(1).
		Pipeline(PipelineEvent, 8).
		Done())

	for i := range output {
		require.Equalf(t, (input[i]+1)*2, output[i], "workitem %d", i)
	}
	require.Zero(t, scratch[0], "the intermediate array never travels back to the host")
}

// K>2: first and last kernels pipelined, middles on the primary queue.
func TestEventPipelineManyKernels(t *testing.T) {
	extras := map[string]simcl.KernelFunc{
		"plus1": func(args simcl.Args, gid int) {
			out := simcl.Float32s(args[1])
			out[gid]++
		},
		"seed": func(args simcl.Args, gid int) {
			in, out := simcl.Float32s(args[0]), simcl.Float32s(args[1])
			out[gid] = in[gid]
		},
	}
	platform := testPlatform(extras, 0)
	cores := testCores(t, platform, "seed", "plus1")

	input := iotaFloats(2048)
	output := make([]float32, 2048)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	require.NoError(t, cores.Compute("seed", "plus1", "plus1", "plus1").
		Arrays(in, out).
		Access(ReadPartial, WriteSlice).
		GlobalRange(2048).
		LocalRange(64).
		ComputeID(1).
		Pipeline(PipelineEvent, 8).
		Done())

	for i := range output {
		require.Equalf(t, input[i]+3, output[i], "workitem %d", i)
	}
}

// ReadAll arrays are transferred once per call, not once per segment.
func TestReadAllTransfersOnce(t *testing.T) {
	extras := map[string]simcl.KernelFunc{
		"saxpyish": func(args simcl.Args, gid int) {
			coef, in, out := simcl.Float32s(args[0]), simcl.Float32s(args[1]), simcl.Float32s(args[2])
			out[gid] = coef[0] * in[gid]
		},
	}
	platform := testPlatform(extras, 0)
	cores := testCores(t, platform, "saxpyish")

	coefs := []float32{3}
	input := iotaFloats(4096)
	output := make([]float32, 4096)
	coef, err := NewArray(coefs)
	require.NoError(t, err)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	require.NoError(t, cores.Compute("saxpyish").
		Arrays(coef, in, out).
		Access(ReadAll, ReadPartial, WriteSlice).
		GlobalRange(4096).
		LocalRange(64).
		ComputeID(1).
		Pipeline(PipelineEvent, 8).
		Done())

	stats := platform.Device(0).Stats()
	// 8 segment transfers for the partial input plus exactly one for the
	// whole-array coefficient.
	require.Equal(t, int64(9), stats.Writes)
	for i := range output {
		require.Equalf(t, 3*input[i], output[i], "workitem %d", i)
	}
}

// Driver discipline with more segments than queues wraps around and still
// computes correctly.
func TestDriverPipelineWrapsQueues(t *testing.T) {
	platform := testPlatform(nil, 0)
	cores := testCores(t, platform, "copy")

	input := iotaFloats(8192)
	output := make([]float32, 8192)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	require.NoError(t, cores.Compute("copy").
		Arrays(in, out).
		Access(ReadPartial, WriteSlice).
		GlobalRange(8192).
		LocalRange(64).
		ComputeID(1).
		Pipeline(PipelineDriver, 32).
		Done())
	require.Equal(t, input, output)
	require.Equal(t, int64(32), platform.Device(0).Stats().Launches)
}
