package clcores

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// A batch of enqueue-mode calls with async queues and fine-grained control:
// after the drain barrier, every issued marker has completed -- one per call
// per device.
func TestEnqueueModeDrain(t *testing.T) {
	const calls = 100
	platform := testPlatform(nil, 0, 0)
	cores := testCores(t, platform, "scale")

	input := iotaFloats(4096)
	output := make([]float32, 4096)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)

	cores.SetEnqueueAsync(true)
	cores.SetFineGrainedQueueControl(true)
	cores.BeginEnqueue()
	for i := 0; i < calls; i++ {
		require.NoError(t, cores.Compute("scale").
			Arrays(in, out).
			Access(ReadPartial, WriteSlice).
			GlobalRange(4096).
			LocalRange(64).
			ComputeID(1).
			Done())
	}
	require.NoError(t, cores.EndEnqueue())

	require.Equal(t, int64(calls*2), cores.CountMarkers())
	require.Equal(t, cores.CountMarkers(), cores.CountMarkerCallbacks(),
		"the drain barrier leaves no marker outstanding")

	for i := range output {
		require.Equalf(t, 2*input[i], output[i], "workitem %d", i)
	}

	// The scope benchmark closed on the last used compute-id.
	bms := cores.Benchmarks(1)
	require.Len(t, bms, 2)
	for d, ms := range bms {
		require.GreaterOrEqualf(t, ms, 0.0, "device %d benchmark", d)
	}
}

// EndEnqueue without BeginEnqueue is a no-op; Begin twice doesn't reset the
// scope.
func TestEnqueueModeIdempotentTransitions(t *testing.T) {
	cores := testCores(t, testPlatform(nil, 0), "copy")
	require.NoError(t, cores.EndEnqueue())

	cores.BeginEnqueue()
	cores.BeginEnqueue()

	input := iotaFloats(64)
	output := make([]float32, 64)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)
	require.NoError(t, cores.Compute("copy").
		Arrays(in, out).
		Access(ReadPartial, WriteSlice).
		GlobalRange(64).
		LocalRange(64).
		ComputeID(1).
		Done())
	require.NoError(t, cores.EndEnqueue())
	require.Equal(t, input, output)
}

// Without enqueue mode, a compute call synchronizes before returning: the
// output is visible immediately, no markers involved.
func TestSynchronousCallLeavesNoMarkers(t *testing.T) {
	cores := testCores(t, testPlatform(nil, 0), "copy")

	input := iotaFloats(256)
	output := make([]float32, 256)
	in, err := NewArray(input)
	require.NoError(t, err)
	out, err := NewArray(output)
	require.NoError(t, err)
	require.NoError(t, cores.Compute("copy").
		Arrays(in, out).
		Access(ReadPartial, WriteSlice).
		GlobalRange(256).
		LocalRange(64).
		ComputeID(1).
		Done())
	require.Equal(t, input, output)
	require.Zero(t, cores.CountMarkers())
}
