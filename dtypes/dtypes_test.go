package dtypes

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizes(t *testing.T) {
	require.Equal(t, 1, Byte.Size())
	require.Equal(t, 1, Char.Size())
	require.Equal(t, 2, Half.Size())
	require.Equal(t, 4, Int.Size())
	require.Equal(t, 4, UInt.Size())
	require.Equal(t, 8, Long.Size())
	require.Equal(t, 4, Float.Size())
	require.Equal(t, 8, Double.Size())
	require.Equal(t, 0, InvalidDType.Size())
}

func TestFromGoType(t *testing.T) {
	require.Equal(t, Float32, FromGoType(reflect.TypeOf(float32(0))))
	require.Equal(t, Float16, FromGoType(reflect.TypeOf(F16(0))))
	require.Equal(t, Int64, FromGoType(reflect.TypeOf(int64(0))))
	require.Equal(t, InvalidDType, FromGoType(reflect.TypeOf("")))
	require.Equal(t, InvalidDType, FromGoType(reflect.TypeOf(uint16(0))), "bare uint16 is not a device type, only float16.Float16 is")
}

func TestFromGenericsType(t *testing.T) {
	require.Equal(t, Float64, FromGenericsType[float64]())
	require.Equal(t, Uint8, FromGenericsType[byte]())
	require.Equal(t, Float16, FromGenericsType[F16]())
}

func TestFromAnySlice(t *testing.T) {
	dtype, n, err := FromAnySlice([]int32{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, Int32, dtype)
	require.Equal(t, 3, n)

	_, _, err = FromAnySlice(42)
	require.Error(t, err)

	_, _, err = FromAnySlice([]string{"x"})
	require.Error(t, err)
}

func TestF16Conversion(t *testing.T) {
	h := F16FromFloat32(1.5)
	require.Equal(t, float32(1.5), h.Float32())
}

func TestDTypeStringRoundTrip(t *testing.T) {
	for _, dtype := range DTypeValues() {
		got, err := DTypeString(dtype.String())
		require.NoErrorf(t, err, "round-tripping %s", dtype)
		require.Equal(t, dtype, got)
	}
}
