// Package batchio consolidates reconciled segments back into Arrow
// records (component C8). A RecordBuilder held open across segments is
// the batch-concatenation primitive: there is no separate pass that
// assembles many one-row records and concatenates them afterward.
package batchio

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"chronoset/core"
	"chronoset/internal/column"
	"chronoset/internal/reconcile"
)

// Consolidate materializes segments into one or more Arrow records sharing
// schema (the current-state schema plus a trailing fingerprint field),
// packing up to targetRows rows per record. Already-small segment sets
// produce exactly one record.
func Consolidate(mem memory.Allocator, segments []reconcile.Segment, current, updates arrow.Record, schema *arrow.Schema, effectiveUnit, asOfUnit core.TemporalUnit, targetRows int) ([]arrow.Record, error) {
	if err := validateSchema(schema, current.Schema()); err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, nil
	}
	if targetRows <= 0 {
		targetRows = len(segments)
	}

	var records []arrow.Record
	builder := array.NewRecordBuilder(mem, schema)
	count := 0

	releaseAll := func() {
		builder.Release()
		for _, r := range records {
			r.Release()
		}
	}

	for _, seg := range segments {
		src := current
		if seg.Source == reconcile.SourceUpdates {
			src = updates
		}
		if err := appendSegment(builder, schema, src, seg, effectiveUnit, asOfUnit); err != nil {
			releaseAll()
			return nil, err
		}
		count++
		if count == targetRows {
			records = append(records, builder.NewRecord())
			builder.Release()
			builder = array.NewRecordBuilder(mem, schema)
			count = 0
		}
	}
	if count > 0 {
		records = append(records, builder.NewRecord())
	}
	builder.Release()
	return records, nil
}

// validateSchema requires schema to be exactly currentSchema's fields, in
// order, plus one trailing string fingerprint field — or, when
// currentSchema already carries a value_hash field, currentSchema itself.
func validateSchema(schema, currentSchema *arrow.Schema) error {
	if core.FieldIndex(currentSchema, core.ColValueHash) >= 0 {
		if !schema.Equal(currentSchema) {
			return core.NewSchemaErrorf("output schema must equal a current-state schema that already carries %s", core.ColValueHash)
		}
		return nil
	}
	curFields := currentSchema.Fields()
	schemaFields := schema.Fields()
	if len(schemaFields) != len(curFields)+1 {
		return core.NewSchemaErrorf("output schema must be the current-state schema plus one fingerprint column, got %d fields for %d current fields", len(schemaFields), len(curFields))
	}
	for i, f := range curFields {
		if schemaFields[i].Name != f.Name || !arrow.TypeEqual(schemaFields[i].Type, f.Type) {
			return core.NewSchemaError(f.Name, "output schema must match the current-state schema field by field")
		}
	}
	last := schemaFields[len(schemaFields)-1]
	if last.Name != core.ColValueHash || !arrow.TypeEqual(last.Type, arrow.BinaryTypes.String) {
		return core.NewSchemaError(core.ColValueHash, "output schema's final field must be the string fingerprint column")
	}
	return nil
}

func appendSegment(builder *array.RecordBuilder, schema *arrow.Schema, src arrow.Record, seg reconcile.Segment, effectiveUnit, asOfUnit core.TemporalUnit) error {
	for i, field := range schema.Fields() {
		fb := builder.Field(i)
		switch field.Name {
		case core.ColEffectiveFrom:
			if err := AppendTemporal(fb, seg.EffectiveFrom, effectiveUnit); err != nil {
				return err
			}
		case core.ColEffectiveTo:
			if err := AppendTemporal(fb, seg.EffectiveTo, effectiveUnit); err != nil {
				return err
			}
		case core.ColAsOfFrom:
			if err := AppendTemporal(fb, seg.AsOfFrom, asOfUnit); err != nil {
				return err
			}
		case core.ColAsOfTo:
			if err := AppendTemporal(fb, seg.AsOfTo, asOfUnit); err != nil {
				return err
			}
		case core.ColValueHash:
			sb, ok := fb.(*array.StringBuilder)
			if !ok {
				return core.NewInternalErrorf("value_hash field is not backed by a StringBuilder")
			}
			sb.Append(seg.Fingerprint)
		default:
			idx := core.FieldIndex(src.Schema(), field.Name)
			if idx < 0 {
				return core.NewSchemaError(field.Name, "column missing from source batch during consolidation")
			}
			if err := CopyScalar(fb, src.Column(idx), seg.SourceRow); err != nil {
				return err
			}
		}
	}
	return nil
}

func AppendTemporal(b array.Builder, value int64, unit core.TemporalUnit) error {
	if unit == core.UnitDate32 {
		bb, ok := b.(*array.Date32Builder)
		if !ok {
			return core.NewInternalErrorf("temporal field normalized as date32 is not backed by a Date32Builder")
		}
		bb.Append(arrow.Date32(column.EncodeDays(value)))
		return nil
	}
	raw, err := column.EncodeMicros(value, unit)
	if err != nil {
		return err
	}
	bb, ok := b.(*array.TimestampBuilder)
	if !ok {
		return core.NewInternalErrorf("temporal field normalized as a timestamp is not backed by a TimestampBuilder")
	}
	bb.Append(arrow.Timestamp(raw))
	return nil
}

// CopyScalar copies src's row-th value into b, dispatching on physical
// type exactly as internal/column.AppendScalarBytes does for fingerprinting.
func CopyScalar(b array.Builder, src arrow.Array, row int) error {
	if src.IsNull(row) {
		b.AppendNull()
		return nil
	}
	switch arr := src.(type) {
	case *array.Boolean:
		bb, ok := b.(*array.BooleanBuilder)
		if !ok {
			return core.NewInternalErrorf("boolean column is not backed by a BooleanBuilder")
		}
		bb.Append(arr.Value(row))
	case *array.Int8:
		bb, ok := b.(*array.Int8Builder)
		if !ok {
			return core.NewInternalErrorf("int8 column is not backed by an Int8Builder")
		}
		bb.Append(arr.Value(row))
	case *array.Int16:
		bb, ok := b.(*array.Int16Builder)
		if !ok {
			return core.NewInternalErrorf("int16 column is not backed by an Int16Builder")
		}
		bb.Append(arr.Value(row))
	case *array.Int32:
		bb, ok := b.(*array.Int32Builder)
		if !ok {
			return core.NewInternalErrorf("int32 column is not backed by an Int32Builder")
		}
		bb.Append(arr.Value(row))
	case *array.Int64:
		bb, ok := b.(*array.Int64Builder)
		if !ok {
			return core.NewInternalErrorf("int64 column is not backed by an Int64Builder")
		}
		bb.Append(arr.Value(row))
	case *array.Uint8:
		bb, ok := b.(*array.Uint8Builder)
		if !ok {
			return core.NewInternalErrorf("uint8 column is not backed by a Uint8Builder")
		}
		bb.Append(arr.Value(row))
	case *array.Uint16:
		bb, ok := b.(*array.Uint16Builder)
		if !ok {
			return core.NewInternalErrorf("uint16 column is not backed by a Uint16Builder")
		}
		bb.Append(arr.Value(row))
	case *array.Uint32:
		bb, ok := b.(*array.Uint32Builder)
		if !ok {
			return core.NewInternalErrorf("uint32 column is not backed by a Uint32Builder")
		}
		bb.Append(arr.Value(row))
	case *array.Uint64:
		bb, ok := b.(*array.Uint64Builder)
		if !ok {
			return core.NewInternalErrorf("uint64 column is not backed by a Uint64Builder")
		}
		bb.Append(arr.Value(row))
	case *array.Float32:
		bb, ok := b.(*array.Float32Builder)
		if !ok {
			return core.NewInternalErrorf("float32 column is not backed by a Float32Builder")
		}
		bb.Append(arr.Value(row))
	case *array.Float64:
		bb, ok := b.(*array.Float64Builder)
		if !ok {
			return core.NewInternalErrorf("float64 column is not backed by a Float64Builder")
		}
		bb.Append(arr.Value(row))
	case *array.String:
		bb, ok := b.(*array.StringBuilder)
		if !ok {
			return core.NewInternalErrorf("string column is not backed by a StringBuilder")
		}
		bb.Append(arr.Value(row))
	case *array.Date32:
		bb, ok := b.(*array.Date32Builder)
		if !ok {
			return core.NewInternalErrorf("date32 column is not backed by a Date32Builder")
		}
		bb.Append(arr.Value(row))
	default:
		return core.NewSchemaError(src.DataType().Name(), "unsupported physical type for a value or identity column")
	}
	return nil
}
