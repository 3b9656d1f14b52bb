// Package chronoset computes the change-set a bitemporal table needs to
// apply in order to absorb a batch of proposed updates: which current rows
// to expire and which new rows to insert, without ever mutating the
// caller's current-state batch in place.
package chronoset

import (
	"context"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"chronoset/core"
	"chronoset/internal/batchio"
	"chronoset/internal/column"
	"chronoset/internal/fingerprint"
	"chronoset/internal/group"
	"chronoset/internal/postprocess"
	"chronoset/internal/reconcile"
	"chronoset/internal/schedule"
)

// ChangeSet is the result of one Compute call.
type ChangeSet struct {
	// ToExpire holds indices into the caller's current record, never a
	// copy of the rows themselves.
	ToExpire []int

	// ToInsert is a sequence of columnar batches sharing the
	// current-state schema plus a trailing fingerprint column (or the
	// current-state schema unchanged when it already carries value_hash).
	ToInsert []arrow.Record

	// ExpiredRecords materializes the rows named by ToExpire with
	// as_of_to overwritten to the batch timestamp, for callers that want
	// the exact audit-trail payload. Nil unless Options.IncludeExpiredRecords
	// is set.
	ExpiredRecords arrow.Record
}

// Options configures one Compute call. There is no file, environment
// variable, or global this engine reads; every setting is explicit.
type Options struct {
	// IDColumns and ValueColumns must be present, in this order, on both
	// current and updates.
	IDColumns    []string
	ValueColumns []string

	Mode          core.UpdateMode
	HashAlgorithm core.HashAlgorithm

	// ConflateInputs pre-merges adjacent, equal-valued update rows
	// within an identity before reconciliation. Off by default.
	ConflateInputs bool

	// IncludeExpiredRecords materializes ChangeSet.ExpiredRecords. Most
	// callers only need the index list, so this defaults to false.
	IncludeExpiredRecords bool

	// TargetBatchRows bounds how many rows internal/batchio packs into
	// one output record. Zero means "one record regardless of size."
	TargetBatchRows int

	// Clock supplies the batch timestamp (system_date) used to stamp new
	// as_of_from values and close expired rows' as_of_to. Defaults to
	// time.Now so tests can pin it without touching wall-clock state.
	Clock func() time.Time

	// Allocator backs every Arrow builder Compute creates. Defaults to a
	// plain Go-heap allocator.
	Allocator memory.Allocator
}

// DefaultOptions returns an Options with every field at its documented
// default. Callers still must set IDColumns and ValueColumns.
func DefaultOptions() Options {
	return Options{
		Mode:            core.Delta,
		HashAlgorithm:   core.Fast64,
		TargetBatchRows: 10_000,
		Clock:           time.Now,
		Allocator:       memory.NewGoAllocator(),
	}
}

// Compute reconciles updates against current and returns the resulting
// change-set. It is transactional at the call level: on error, no partial
// ToExpire or ToInsert is returned.
func Compute(ctx context.Context, current, updates arrow.Record, opts Options) (ChangeSet, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Allocator == nil {
		opts.Allocator = memory.NewGoAllocator()
	}
	if _, err := core.ParseUpdateMode(string(opts.Mode)); err != nil {
		return ChangeSet{}, err
	}
	if _, err := core.ParseHashAlgorithm(string(opts.HashAlgorithm)); err != nil {
		return ChangeSet{}, err
	}

	if err := core.ValidateRequiredColumns(current.Schema(), opts.IDColumns, opts.ValueColumns, "current"); err != nil {
		return ChangeSet{}, err
	}
	if err := core.ValidateRequiredColumns(updates.Schema(), opts.IDColumns, opts.ValueColumns, "updates"); err != nil {
		return ChangeSet{}, err
	}
	if err := core.ValidateMatchingSchemas(current.Schema(), updates.Schema(), opts.IDColumns, opts.ValueColumns); err != nil {
		return ChangeSet{}, err
	}

	mem := opts.Allocator

	currentAxes, err := column.ReadAxes(current)
	if err != nil {
		return ChangeSet{}, err
	}
	updatesAxes, err := column.ReadAxes(updates)
	if err != nil {
		return ChangeSet{}, err
	}

	currentFP, err := fingerprint.Build(mem, current, opts.ValueColumns, opts.HashAlgorithm)
	if err != nil {
		return ChangeSet{}, err
	}
	defer currentFP.Release()
	updatesFP, err := fingerprint.Build(mem, updates, opts.ValueColumns, opts.HashAlgorithm)
	if err != nil {
		return ChangeSet{}, err
	}
	defer updatesFP.Release()

	groups, err := group.Build(current, updates, opts.IDColumns)
	if err != nil {
		return ChangeSet{}, err
	}

	batchTime := opts.Clock()
	rOpts := reconcile.Options{
		Mode:              opts.Mode,
		AsOfTimestamp:     normalizeClock(batchTime, currentAxes.AsOfUnit),
		EffectiveCutover:  normalizeClock(batchTime, currentAxes.EffectiveUnit),
		EffectiveSentinel: core.SentinelFor(currentAxes.EffectiveUnit),
		AsOfSentinel:      core.SentinelFor(currentAxes.AsOfUnit),
		ConflateInputs:    opts.ConflateInputs,
	}

	totalRows := int(current.NumRows() + updates.NumRows())
	plans, err := schedule.Run(ctx, groups, totalRows, func(e *group.Entry) (reconcile.Plan, error) {
		return reconcile.Group(e, currentAxes, updatesAxes, currentFP, updatesFP, rOpts)
	})
	if err != nil {
		return ChangeSet{}, err
	}

	segments, expire := postprocess.Clean(plans)

	outSchema := outputSchemaFor(current.Schema())
	toInsert, err := batchio.Consolidate(mem, segments, current, updates, outSchema, currentAxes.EffectiveUnit, currentAxes.AsOfUnit, opts.TargetBatchRows)
	if err != nil {
		return ChangeSet{}, err
	}

	var expired arrow.Record
	if opts.IncludeExpiredRecords {
		expired, err = materializeExpired(mem, current, expire, currentAxes.AsOfUnit, rOpts.AsOfTimestamp)
		if err != nil {
			return ChangeSet{}, err
		}
	}

	return ChangeSet{ToExpire: expire, ToInsert: toInsert, ExpiredRecords: expired}, nil
}

// normalizeClock expresses t in unit's normalized representation: a day
// count for date32 columns, microseconds-since-epoch for any timestamp
// precision (internal/column always normalizes timestamps to microseconds).
func normalizeClock(t time.Time, unit core.TemporalUnit) int64 {
	if unit == core.UnitDate32 {
		return t.UTC().Unix() / 86400
	}
	return t.UnixMicro()
}

// outputSchemaFor returns schema unchanged if it already carries a
// value_hash field (the idempotence policy from C2), otherwise appends one.
func outputSchemaFor(schema *arrow.Schema) *arrow.Schema {
	if core.FieldIndex(schema, core.ColValueHash) >= 0 {
		return schema
	}
	fields := append(append([]arrow.Field{}, schema.Fields()...), arrow.Field{Name: core.ColValueHash, Type: arrow.BinaryTypes.String})
	return arrow.NewSchema(fields, nil)
}

// materializeExpired copies every row named by expire out of current,
// verbatim except for as_of_to which is overwritten to asOfTimestamp.
func materializeExpired(mem memory.Allocator, current arrow.Record, expire []int, asOfUnit core.TemporalUnit, asOfTimestamp int64) (arrow.Record, error) {
	schema := current.Schema()
	builder := array.NewRecordBuilder(mem, schema)
	defer builder.Release()

	asOfToIdx := core.FieldIndex(schema, core.ColAsOfTo)
	for _, row := range expire {
		for i := range schema.Fields() {
			fb := builder.Field(i)
			if i == asOfToIdx {
				if err := batchio.AppendTemporal(fb, asOfTimestamp, asOfUnit); err != nil {
					return nil, err
				}
				continue
			}
			if err := batchio.CopyScalar(fb, current.Column(i), row); err != nil {
				return nil, err
			}
		}
	}
	return builder.NewRecord(), nil
}
