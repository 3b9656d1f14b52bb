package fingerprint_test

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"

	"chronoset/core"
	"chronoset/internal/fingerprint"
)

func buildRecord(t *testing.T, mem memory.Allocator, vs []int64) arrow.Record {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64},
	}, nil)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues(vs, nil)
	return b.NewRecord()
}

func TestBuild_DeterministicAndDistinguishing(t *testing.T) {
	mem := memory.NewGoAllocator()
	rec := buildRecord(t, mem, []int64{100, 200, 100})
	defer rec.Release()

	col, err := fingerprint.Build(mem, rec, []string{"v"}, core.Fast64)
	require.NoError(t, err)
	defer col.Release()

	require.Equal(t, col.Value(0), col.Value(2), "equal values must fingerprint equal")
	require.NotEqual(t, col.Value(0), col.Value(1), "different values must fingerprint different")
	require.Len(t, col.Value(0), core.FingerprintWidthFast64)
}

func TestBuild_Crypto256Width(t *testing.T) {
	mem := memory.NewGoAllocator()
	rec := buildRecord(t, mem, []int64{1})
	defer rec.Release()

	col, err := fingerprint.Build(mem, rec, []string{"v"}, core.Crypto256)
	require.NoError(t, err)
	defer col.Release()

	require.Len(t, col.Value(0), core.FingerprintWidthCrypto256)
}

func TestBuild_ReusesExistingValueHash(t *testing.T) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "v", Type: arrow.PrimitiveTypes.Int64},
		{Name: core.ColValueHash, Type: arrow.BinaryTypes.String},
	}, nil)
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1}, nil)
	b.Field(1).(*array.StringBuilder).AppendValues([]string{"deadbeefdeadbeef"}, nil)
	rec := b.NewRecord()
	defer rec.Release()

	col, err := fingerprint.Build(mem, rec, []string{"v"}, core.Fast64)
	require.NoError(t, err)
	defer col.Release()
	require.Equal(t, "deadbeefdeadbeef", col.Value(0))
}

func TestBuild_MissingValueColumn(t *testing.T) {
	mem := memory.NewGoAllocator()
	rec := buildRecord(t, mem, []int64{1})
	defer rec.Release()

	_, err := fingerprint.Build(mem, rec, []string{"missing"}, core.Fast64)
	require.Error(t, err)
	var schemaErr *core.SchemaError
	require.ErrorAs(t, err, &schemaErr)
}
