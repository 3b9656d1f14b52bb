package column

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	"chronoset/core"
)

// date32Codec reads arrow.DATE32 columns, already days-since-epoch, so no
// conversion is needed beyond the int32 -> int64 widen.
type date32Codec struct{}

func newDate32Codec(arrow.DataType) (Codec, error) { return date32Codec{}, nil }

func (date32Codec) Unit() core.TemporalUnit { return core.UnitDate32 }

func (date32Codec) Read(col arrow.Array, row int) (int64, bool) {
	arr, ok := col.(*array.Date32)
	if !ok || arr.IsNull(row) {
		return 0, false
	}
	return int64(arr.Value(row)), true
}

// timestampCodec reads arrow.TIMESTAMP columns at any of the four
// supported precisions, normalizing every value to microseconds.
type timestampCodec struct {
	unit core.TemporalUnit
	// scaleUp multiplies the raw stored value to reach microseconds;
	// scaleDown divides it. At most one is ever greater than 1.
	scaleUp, scaleDown int64
}

func newTimestampCodec(dt arrow.DataType) (Codec, error) {
	tt, ok := dt.(*arrow.TimestampType)
	if !ok {
		return nil, core.NewInternalErrorf("column: %s is not a timestamp type", dt)
	}
	switch tt.Unit {
	case arrow.Second:
		return timestampCodec{unit: core.UnitTimestampSeconds, scaleUp: 1_000_000, scaleDown: 1}, nil
	case arrow.Millisecond:
		return timestampCodec{unit: core.UnitTimestampMillis, scaleUp: 1_000, scaleDown: 1}, nil
	case arrow.Microsecond:
		return timestampCodec{unit: core.UnitTimestampMicros, scaleUp: 1, scaleDown: 1}, nil
	case arrow.Nanosecond:
		return timestampCodec{unit: core.UnitTimestampNanos, scaleUp: 1, scaleDown: 1_000}, nil
	default:
		return nil, core.NewSchemaErrorf("unsupported timestamp unit %v for a temporal column", tt.Unit)
	}
}

func (c timestampCodec) Unit() core.TemporalUnit { return c.unit }

func (c timestampCodec) Read(col arrow.Array, row int) (int64, bool) {
	arr, ok := col.(*array.Timestamp)
	if !ok || arr.IsNull(row) {
		return 0, false
	}
	raw := int64(arr.Value(row))
	if c.scaleDown > 1 {
		return raw / c.scaleDown, true
	}
	return raw * c.scaleUp, true
}

// EncodeMicros converts a normalized microsecond value back to the raw
// on-wire integer for the given unit, the inverse of timestampCodec.Read.
// Used by C9 when materializing audit rows in the caller's original
// precision.
func EncodeMicros(micros int64, unit core.TemporalUnit) (int64, error) {
	switch unit {
	case core.UnitTimestampSeconds:
		return micros / 1_000_000, nil
	case core.UnitTimestampMillis:
		return micros / 1_000, nil
	case core.UnitTimestampMicros:
		return micros, nil
	case core.UnitTimestampNanos:
		return micros * 1_000, nil
	default:
		return 0, core.NewInternalErrorf("column: %v is not a timestamp unit", unit)
	}
}

// EncodeDays converts a normalized day value back to the raw on-wire int32
// for arrow.DATE32; days-since-epoch needs no scaling.
func EncodeDays(days int64) int32 {
	return int32(days)
}
