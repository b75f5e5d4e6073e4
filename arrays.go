package clcores

import (
	"fmt"
	"reflect"
	"runtime"
	"unsafe"

	"github.com/gomlx/clcores/dtypes"
	"github.com/pkg/errors"
)

// Array binds a flat host slice to the device buffers the workers allocate
// for it. The same *Array must be reused across compute calls for the
// kernel-argument cache to take effect: identity is the pointer, not the
// contents.
//
// The dispatcher keeps a strong reference to every Array seen in a compute
// call, so the backing slice cannot be collected while device work is in
// flight; additionally the backing memory is pinned for the duration of each
// call (or of the whole enqueue-mode scope, see Cores.BeginEnqueue).
type Array struct {
	flat  any // keeps the backing slice alive
	bytes []byte
	dtype dtypes.DType
	n     int
}

// NewArray wraps a flat host slice. The slice must be non-empty; it is
// shared, not copied.
func NewArray[T dtypes.Supported](flat []T) (*Array, error) {
	if len(flat) == 0 {
		return nil, errors.New("NewArray requires a non-empty slice")
	}
	dtype := dtypes.FromGenericsType[T]()
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&flat[0])), len(flat)*dtype.Size())
	return &Array{flat: flat, bytes: raw, dtype: dtype, n: len(flat)}, nil
}

// ArrayFromAnySlice is the reflection variant of NewArray, for callers that
// hold the slice as an any.
func ArrayFromAnySlice(flat any) (*Array, error) {
	dtype, n, err := dtypes.FromAnySlice(flat)
	if err != nil {
		return nil, errors.WithMessage(err, "ArrayFromAnySlice")
	}
	if n == 0 {
		return nil, errors.New("ArrayFromAnySlice requires a non-empty slice")
	}
	v := reflect.ValueOf(flat)
	raw := unsafe.Slice((*byte)(v.Index(0).Addr().UnsafePointer()), n*dtype.Size())
	return &Array{flat: flat, bytes: raw, dtype: dtype, n: n}, nil
}

// DType returns the element type of the array.
func (a *Array) DType() dtypes.DType { return a.dtype }

// Len returns the number of elements.
func (a *Array) Len() int { return a.n }

// String implements fmt.Stringer.
func (a *Array) String() string {
	return fmt.Sprintf("Array[%s x %d]", a.dtype, a.n)
}

// slice returns the raw bytes of elements [off, off+n).
func (a *Array) slice(off, n int) []byte {
	es := a.dtype.Size()
	return a.bytes[off*es : (off+n)*es]
}

// pin pins the backing memory into the given pinner.
func (a *Array) pin(p *runtime.Pinner) {
	p.Pin(&a.bytes[0])
}
