// Package fingerprint computes the per-row content hash over a batch's
// value columns (component C2). Two algorithms are offered: a fast,
// non-cryptographic 64-bit hash (the default) and a cryptographic 256-bit
// digest kept only for wire-compatibility with legacy consumers.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"

	"chronoset/core"
	"chronoset/internal/column"
)

// Build computes a fingerprint column over rec's value columns, in the
// order given, according to algo. If rec's schema already carries a
// value_hash column of the width implied by algo, that column is returned
// unchanged (retained) instead of being recomputed — the idempotence
// policy from §4.2.
//
// The walk is column-by-column, not row-by-row: each value column is
// looked up once in the outer loop and its bytes are appended into every
// row's running buffer in a single inner pass. The physical-type switch
// inside column.AppendScalarBytes still runs once per cell.
func Build(mem memory.Allocator, rec arrow.Record, valueColumns []string, algo core.HashAlgorithm) (*array.String, error) {
	if existing, ok := reuseExisting(rec, algo); ok {
		existing.Retain()
		return existing, nil
	}

	n := int(rec.NumRows())
	rowBytes := make([][]byte, n)

	for _, name := range valueColumns {
		idx := core.FieldIndex(rec.Schema(), name)
		if idx < 0 {
			return nil, core.NewSchemaError(name, "value column missing from batch")
		}
		col := rec.Column(idx)
		for row := 0; row < n; row++ {
			var err error
			rowBytes[row], err = column.AppendScalarBytes(rowBytes[row], col, row)
			if err != nil {
				return nil, err
			}
		}
	}

	builder := array.NewStringBuilder(mem)
	defer builder.Release()
	builder.Reserve(n)
	for row := 0; row < n; row++ {
		builder.Append(digest(rowBytes[row], algo))
	}
	arr := builder.NewArray()
	strArr, ok := arr.(*array.String)
	if !ok {
		arr.Release()
		return nil, core.NewInternalErrorf("fingerprint builder produced %T, not *array.String", arr)
	}
	return strArr, nil
}

func digest(b []byte, algo core.HashAlgorithm) string {
	if algo == core.Crypto256 {
		sum := sha256.Sum256(b)
		return hex.EncodeToString(sum[:])
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b))
}

func reuseExisting(rec arrow.Record, algo core.HashAlgorithm) (*array.String, bool) {
	idx := core.FieldIndex(rec.Schema(), core.ColValueHash)
	if idx < 0 {
		return nil, false
	}
	col, ok := rec.Column(idx).(*array.String)
	if !ok || col.Len() == 0 {
		return nil, false
	}
	want := core.FingerprintWidthFast64
	if algo == core.Crypto256 {
		want = core.FingerprintWidthCrypto256
	}
	if len(col.Value(0)) != want {
		return nil, false
	}
	return col, true
}
