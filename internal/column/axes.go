package column

import (
	"github.com/apache/arrow-go/v18/arrow"

	"chronoset/core"
)

// Axes holds the four normalized temporal columns of a batch, read once up
// front so every later stage compares effective and as-of bounds by row
// index against plain int64 slices instead of re-walking Arrow arrays.
type Axes struct {
	EffectiveFrom []int64
	EffectiveTo   []int64
	AsOfFrom      []int64
	AsOfTo        []int64

	EffectiveUnit core.TemporalUnit
	AsOfUnit      core.TemporalUnit
}

// ReadAxes normalizes rec's four temporal columns. The two effective-axis
// columns and the two as-of-axis columns are each expected to share an
// encoding (effective_from/effective_to both date32, say), but ReadAxes
// does not itself enforce that; core.ValidateMatchingSchemas does the
// cross-batch check before either batch reaches this far.
func ReadAxes(rec arrow.Record) (Axes, error) {
	ef, efUnit, err := readNamed(rec, core.ColEffectiveFrom)
	if err != nil {
		return Axes{}, err
	}
	et, _, err := readNamed(rec, core.ColEffectiveTo)
	if err != nil {
		return Axes{}, err
	}
	af, afUnit, err := readNamed(rec, core.ColAsOfFrom)
	if err != nil {
		return Axes{}, err
	}
	at, _, err := readNamed(rec, core.ColAsOfTo)
	if err != nil {
		return Axes{}, err
	}
	return Axes{
		EffectiveFrom: ef,
		EffectiveTo:   et,
		AsOfFrom:      af,
		AsOfTo:        at,
		EffectiveUnit: efUnit,
		AsOfUnit:      afUnit,
	}, nil
}

func readNamed(rec arrow.Record, name string) ([]int64, core.TemporalUnit, error) {
	idx := core.FieldIndex(rec.Schema(), name)
	if idx < 0 {
		return nil, 0, core.NewSchemaError(name, "required column missing from batch")
	}
	return ReadTemporalColumn(rec.Column(idx), name)
}
