package simcl

import (
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/gomlx/clcores/dtypes"
)

// Typed views over raw argument bytes. The returned slices alias the buffer
// storage, so writes through them are writes into the device buffer.

// Float32s reinterprets raw bytes as a []float32.
func Float32s(raw []byte) []float32 {
	if len(raw) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&raw[0])), len(raw)/4)
}

// Float64s reinterprets raw bytes as a []float64.
func Float64s(raw []byte) []float64 {
	if len(raw) == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&raw[0])), len(raw)/8)
}

// Int32s reinterprets raw bytes as a []int32.
func Int32s(raw []byte) []int32 {
	if len(raw) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&raw[0])), len(raw)/4)
}

// Int64s reinterprets raw bytes as a []int64.
func Int64s(raw []byte) []int64 {
	if len(raw) == 0 {
		return nil
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&raw[0])), len(raw)/8)
}

// F16s reinterprets raw bytes as a []dtypes.F16.
func F16s(raw []byte) []dtypes.F16 {
	if len(raw) == 0 {
		return nil
	}
	return unsafe.Slice((*dtypes.F16)(unsafe.Pointer(&raw[0])), len(raw)/2)
}

// BuiltinKernels returns a registry with the kernels the bench command and
// the examples use:
//
//   - "copy":    arg1[gid] = arg0[gid]                  (float32)
//   - "scale":   arg1[gid] = 2 * arg0[gid]              (float32)
//   - "saxpy":   arg2[gid] = a[0]*x[gid] + y[gid]       (float32; a is arg0)
//   - "rsqrt":   arg1[gid] = 1 / sqrt(arg0[gid])        (float32)
//   - "barrier": single-workgroup no-op used as an inter-iteration sync point
func BuiltinKernels() map[string]KernelFunc {
	return map[string]KernelFunc{
		"copy": func(args Args, gid int) {
			in, out := Float32s(args[0]), Float32s(args[1])
			out[gid] = in[gid]
		},
		"scale": func(args Args, gid int) {
			in, out := Float32s(args[0]), Float32s(args[1])
			out[gid] = 2 * in[gid]
		},
		"saxpy": func(args Args, gid int) {
			a, x, y := Float32s(args[0]), Float32s(args[1]), Float32s(args[2])
			y[gid] = a[0]*x[gid] + y[gid]
		},
		"rsqrt": func(args Args, gid int) {
			in, out := Float32s(args[0]), Float32s(args[1])
			out[gid] = 1 / math32.Sqrt(in[gid])
		},
		"barrier": func(args Args, gid int) {},
	}
}
