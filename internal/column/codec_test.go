package column_test

import (
	"math"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"chronoset/core"
	"chronoset/internal/column"
)

func TestReadTemporalColumn_Date32(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := array.NewDate32Builder(mem)
	defer b.Release()
	b.AppendValues([]arrow.Date32{20089, 20090}, nil)
	arr := b.NewArray()
	defer arr.Release()

	vals, unit, err := column.ReadTemporalColumn(arr, "effective_from")
	require.NoError(t, err)
	require.Equal(t, core.UnitDate32, unit)
	require.Equal(t, []int64{20089, 20090}, vals)
}

func TestReadTemporalColumn_TimestampSecondsToMicros(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := array.NewTimestampBuilder(mem, &arrow.TimestampType{Unit: arrow.Second})
	defer b.Release()
	b.AppendValues([]arrow.Timestamp{1, 2}, nil)
	arr := b.NewArray()
	defer arr.Release()

	vals, unit, err := column.ReadTemporalColumn(arr, "as_of_from")
	require.NoError(t, err)
	require.Equal(t, core.UnitTimestampSeconds, unit)
	require.Equal(t, []int64{1_000_000, 2_000_000}, vals)
}

func TestReadTemporalColumn_NullRejected(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := array.NewDate32Builder(mem)
	defer b.Release()
	b.Append(1)
	b.AppendNull()
	arr := b.NewArray()
	defer arr.Release()

	_, _, err := column.ReadTemporalColumn(arr, "effective_to")
	require.Error(t, err)
	var schemaErr *core.SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestReadTemporalColumn_UnsupportedType(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := array.NewStringBuilder(mem)
	defer b.Release()
	b.Append("not-a-date")
	arr := b.NewArray()
	defer arr.Release()

	_, _, err := column.ReadTemporalColumn(arr, "effective_from")
	require.Error(t, err)
	var schemaErr *core.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, "effective_from", schemaErr.Column)
}

func TestAppendScalarBytes_NaNCanonicalizes(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := array.NewFloat64Builder(mem)
	defer b.Release()
	// Two distinct NaN payloads.
	b.AppendValues([]float64{math.Float64frombits(0x7ff8000000000001), math.Float64frombits(0x7ff8000000000002)}, nil)
	arr := b.NewArray()
	defer arr.Release()

	b0, err := column.AppendScalarBytes(nil, arr, 0)
	require.NoError(t, err)
	b1, err := column.AppendScalarBytes(nil, arr, 1)
	require.NoError(t, err)
	require.Equal(t, b0, b1)
}

func TestAppendScalarBytes_Null(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := array.NewInt32Builder(mem)
	defer b.Release()
	b.AppendNull()
	arr := b.NewArray()
	defer arr.Release()

	out, err := column.AppendScalarBytes(nil, arr, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00}, out)
}
