// Package column implements the type-polymorphic read of date, timestamp,
// and scalar value cells from Arrow columnar arrays (component C1). Every
// later stage in the pipeline works with normalized int64 values or
// canonical byte encodings produced here; none of them inspect an
// arrow.DataType directly.
package column

import (
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"

	"chronoset/core"
)

// Codec normalizes one physical Arrow temporal type to a signed 64-bit
// integer in a fixed internal unit: microseconds for timestamps, days for
// dates.
type Codec interface {
	Unit() core.TemporalUnit
	Read(col arrow.Array, row int) (value int64, valid bool)
}

type codecCtor func(arrow.DataType) (Codec, error)

var (
	registryMu sync.RWMutex
	registry   = map[arrow.Type]codecCtor{}
)

func init() {
	RegisterCodec(arrow.DATE32, newDate32Codec)
	RegisterCodec(arrow.TIMESTAMP, newTimestampCodec)
}

// RegisterCodec adds a codec constructor for an Arrow physical type ID.
// Exported so a caller embedding this engine in a larger pipeline can add
// support for another physical type without forking this package — the
// same extensibility the source schema-diff engine's dialect registry
// (internal/dialect.RegisterDialect) offers for additional SQL dialects.
func RegisterCodec(t arrow.Type, ctor codecCtor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = ctor
}

// ForType returns the codec registered for dt's physical type ID, or a
// SchemaError naming columnName if none is registered.
func ForType(dt arrow.DataType, columnName string) (Codec, error) {
	registryMu.RLock()
	ctor, ok := registry[dt.ID()]
	registryMu.RUnlock()
	if !ok {
		return nil, core.NewSchemaError(columnName, fmt.Sprintf("unsupported physical type %s for a temporal column", dt))
	}
	return ctor(dt)
}

// ReadTemporalColumn normalizes every row of col into a freshly allocated
// []int64 and reports which TemporalUnit the column was encoded in, so the
// caller can re-encode outputs identically. Temporal columns must not
// contain nulls; a null cell is reported as a SchemaError rather than
// silently defaulting, since a row with no known effective or as-of bound
// cannot be reasoned about.
func ReadTemporalColumn(col arrow.Array, columnName string) ([]int64, core.TemporalUnit, error) {
	codec, err := ForType(col.DataType(), columnName)
	if err != nil {
		return nil, 0, err
	}
	n := col.Len()
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		v, ok := codec.Read(col, i)
		if !ok {
			return nil, 0, core.NewSchemaError(columnName, fmt.Sprintf("row %d: temporal column must not contain nulls", i))
		}
		out[i] = v
	}
	return out, codec.Unit(), nil
}
