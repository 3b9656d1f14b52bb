package column

import (
	"encoding/binary"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"chronoset/core"
)

// AppendScalarBytes appends a canonical byte encoding of col's row-th value
// to dst and returns the extended slice. Every supported physical type has
// a fixed-width or length-prefixed encoding, so a row's concatenated
// encoding is unambiguous for a fixed column layout. No type tag is
// written: types of the same width (e.g. int32, uint32, date32) encode the
// same number to the same bytes. A null value contributes a
// single marker byte and nothing else. Floats are canonicalized to bit
// pattern form with a single NaN representation so NaN collates
// deterministically regardless of payload bits.
func AppendScalarBytes(dst []byte, col arrow.Array, row int) ([]byte, error) {
	if col.IsNull(row) {
		return append(dst, 0x00), nil
	}
	dst = append(dst, 0x01)

	switch arr := col.(type) {
	case *array.Boolean:
		if arr.Value(row) {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case *array.Int8:
		return append(dst, byte(arr.Value(row))), nil
	case *array.Int16:
		return binary.LittleEndian.AppendUint16(dst, uint16(arr.Value(row))), nil
	case *array.Int32:
		return binary.LittleEndian.AppendUint32(dst, uint32(arr.Value(row))), nil
	case *array.Int64:
		return binary.LittleEndian.AppendUint64(dst, uint64(arr.Value(row))), nil
	case *array.Uint8:
		return append(dst, arr.Value(row)), nil
	case *array.Uint16:
		return binary.LittleEndian.AppendUint16(dst, arr.Value(row)), nil
	case *array.Uint32:
		return binary.LittleEndian.AppendUint32(dst, arr.Value(row)), nil
	case *array.Uint64:
		return binary.LittleEndian.AppendUint64(dst, arr.Value(row)), nil
	case *array.Float32:
		return binary.LittleEndian.AppendUint32(dst, math.Float32bits(canonicalNaN32(arr.Value(row)))), nil
	case *array.Float64:
		return binary.LittleEndian.AppendUint64(dst, math.Float64bits(canonicalNaN64(arr.Value(row)))), nil
	case *array.String:
		v := arr.Value(row)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(len(v)))
		return append(dst, v...), nil
	case *array.Date32:
		return binary.LittleEndian.AppendUint32(dst, uint32(arr.Value(row))), nil
	default:
		return nil, core.NewSchemaError(col.DataType().Name(), "unsupported physical type for a value column")
	}
}

func canonicalNaN32(f float32) float32 {
	if math.IsNaN(float64(f)) {
		return float32(math.NaN())
	}
	return f
}

func canonicalNaN64(f float64) float64 {
	if math.IsNaN(f) {
		return math.NaN()
	}
	return f
}
