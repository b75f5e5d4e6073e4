// Package dtypes declares the host-array element types the orchestrator can
// move between host and device, and their mapping to Go types.
package dtypes

import (
	"reflect"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// DType is the element type of a host array and of its device buffer.
type DType int

//go:generate go tool enumer -type=DType dtypes.go

const (
	InvalidDType DType = iota
	Uint8
	Int8
	Int32
	Uint32
	Int64
	Float16
	Float32
	Float64
)

// Aliases following the C naming of the kernel language.
const (
	// Byte is an alias for Uint8 (uchar in kernel source).
	Byte = Uint8

	// Char is an alias for Int8.
	Char = Int8

	// Int is an alias for Int32.
	Int = Int32

	// UInt is an alias for Uint32.
	UInt = Uint32

	// Long is an alias for Int64.
	Long = Int64

	// Half is an alias for Float16.
	Half = Float16

	// Float is an alias for Float32.
	Float = Float32

	// Double is an alias for Float64.
	Double = Float64
)

// F16 is the Go representation of a Half element. Conversions go through
// the float16 package, see F16FromFloat32.
type F16 = float16.Float16

// F16FromFloat32 converts to the nearest representable half value (IEEE
// 754 round-to-nearest-even).
func F16FromFloat32(x float32) F16 {
	return float16.Fromfloat32(x)
}

// Supported is the constraint listing every Go type that maps to a DType.
type Supported interface {
	~uint8 | ~int8 | ~int32 | ~uint32 | ~int64 | ~float32 | ~float64 | F16
}

// Size returns the element size in bytes, or 0 for InvalidDType.
func (dtype DType) Size() int {
	switch dtype {
	case Uint8, Int8:
		return 1
	case Float16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Float64:
		return 8
	}
	return 0
}

var goToDType = map[reflect.Kind]DType{
	reflect.Uint8:   Uint8,
	reflect.Int8:    Int8,
	reflect.Int32:   Int32,
	reflect.Uint32:  Uint32,
	reflect.Int64:   Int64,
	reflect.Float32: Float32,
	reflect.Float64: Float64,
}

var f16Type = reflect.TypeOf(F16(0))

// FromGoType returns the DType for the given Go type, or InvalidDType if the
// type has no device representation. float16.Float16 maps to Float16 even
// though its underlying kind is uint16.
func FromGoType(t reflect.Type) DType {
	if t == f16Type {
		return Float16
	}
	if dtype, ok := goToDType[t.Kind()]; ok {
		return dtype
	}
	return InvalidDType
}

// FromGenericsType returns the DType of the type parameter.
func FromGenericsType[T Supported]() DType {
	var v T
	return FromGoType(reflect.TypeOf(v))
}

// FromAnySlice returns the DType and length of a flat slice passed as any.
// It errors out for non-slices and unsupported element types.
func FromAnySlice(flat any) (dtype DType, n int, err error) {
	v := reflect.ValueOf(flat)
	if v.Kind() != reflect.Slice {
		return InvalidDType, 0, errors.Errorf("expected a flat slice, got %s", v.Kind())
	}
	dtype = FromGoType(v.Type().Elem())
	if dtype == InvalidDType {
		return InvalidDType, 0, errors.Errorf("slice element type %s has no device representation", v.Type().Elem())
	}
	return dtype, v.Len(), nil
}
